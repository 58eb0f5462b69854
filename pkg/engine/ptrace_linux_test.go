//go:build linux && (amd64 || arm64)

package engine

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/blacktop/unicycle/pkg/paint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func runTraced(t *testing.T, ctx context.Context, target string, args ...string) (int, uint64, bool, error) {
	t.Helper()
	e, err := NewPtrace(&Config{Target: target, Args: args})
	require.NoError(t, err)
	var count uint64
	finished := false
	e.AddInstrumentFunction(func(ins paint.Instruction) {
		count++
		if count == 1 {
			b := make([]byte, 1)
			_, err := ins.Mem.ReadAt(b, int64(ins.Address))
			assert.NoError(t, err, "entry instruction is readable")
		}
	})
	e.AddFiniFunction(func() { finished = true })
	rc, err := e.Run(ctx)
	if errors.Is(err, unix.EPERM) || errors.Is(err, os.ErrPermission) {
		t.Skip("ptrace is not permitted here")
	}
	return rc, count, finished, err
}

func TestPtrace(t *testing.T) {
	if testing.Short() {
		t.Skip("single stepping a process is slow")
	}
	tests := []struct {
		name   string
		target string
		args   []string
		rc     int
	}{
		{"true", "true", nil, 0},
		{"false", "false", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, count, finished, err := runTraced(t, context.Background(), tt.target, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.rc, rc)
			assert.Greater(t, count, uint64(100))
			assert.True(t, finished)
		})
	}
}

func TestPtrace_Deterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("single stepping a process is slow")
	}
	_, first, _, err := runTraced(t, context.Background(), "true")
	require.NoError(t, err)
	_, second, _, err := runTraced(t, context.Background(), "true")
	require.NoError(t, err)
	// ASLR and the auxiliary vector shift a handful of loader branches
	assert.InDelta(t, float64(first), float64(second), float64(first)/20)
}

func TestPtrace_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, finished, err := runTraced(t, ctx, "sleep", "10")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, finished)
}

func TestPtrace_Missing(t *testing.T) {
	e, err := NewPtrace(&Config{Target: "/nonexistent/crackme"})
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.Error(t, err)

	_, err = NewPtrace(&Config{})
	assert.Error(t, err)
}

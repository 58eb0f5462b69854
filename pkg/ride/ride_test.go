//go:build linux || darwin

package ride

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		cmd        *Command
		wantStdout string
		wantStderr string
		wantCode   int
	}{
		{
			name:       "stdout and stderr",
			cmd:        &Command{Path: "/bin/sh", Args: []string{"-c", "echo out; echo err 1>&2"}},
			wantStdout: "out\n",
			wantStderr: "err\n",
		},
		{
			name:     "non-zero exit is a result",
			cmd:      &Command{Path: "/bin/sh", Args: []string{"-c", "exit 3"}},
			wantCode: 3,
		},
		{
			name:       "stdin is delivered",
			cmd:        &Command{Path: "/bin/cat", Stdin: []byte("CAT\n")},
			wantStdout: "CAT\n",
		},
		{
			name:       "working directory",
			cmd:        &Command{Path: "/bin/sh", Args: []string{"-c", "pwd"}, Dir: "/"},
			wantStdout: "/\n",
		},
		{
			name:       "extra environment",
			cmd:        &Command{Path: "/bin/sh", Args: []string{"-c", "printf %s \"$UNICYCLE_TEST\""}, Env: []string{"UNICYCLE_TEST=wheel"}},
			wantStdout: "wheel",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Run(context.Background(), tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStdout, string(got.Stdout))
			assert.Equal(t, tt.wantStderr, string(got.Stderr))
			assert.Equal(t, tt.wantCode, got.ExitCode)
		})
	}
}

func TestRun_SpawnError(t *testing.T) {
	_, err := Run(context.Background(), &Command{Path: "/nonexistent/unicycle-target"})
	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr), "got %v", err)
	assert.Equal(t, "/nonexistent/unicycle-target", spawnErr.Path)

	_, err = Run(context.Background(), &Command{})
	assert.True(t, errors.As(err, &spawnErr))
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), &Command{
		Path:    "/bin/sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, &Command{Path: "/bin/sh", Args: []string{"-c", "sleep 10"}})
	assert.Error(t, err)
}

func TestRun_Independent(t *testing.T) {
	// no state leaks from one ride into the next
	first, err := Run(context.Background(), &Command{Path: "/bin/cat", Stdin: []byte("first")})
	require.NoError(t, err)
	second, err := Run(context.Background(), &Command{Path: "/bin/cat"})
	require.NoError(t, err)
	assert.Equal(t, "first", string(first.Stdout))
	assert.Empty(t, second.Stdout)
}

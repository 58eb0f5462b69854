package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blacktop/unicycle/pkg/ride"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		want    int64
		wantErr bool
	}{
		{name: "only the count", stderr: "\n42", want: 42},
		{name: "noise before", stderr: "warning: x\nsome: 17\n\n1234", want: 1234},
		{name: "single trailing newline", stderr: "noise\n99\n", want: 99},
		{name: "crlf", stderr: "noise\r\n7\r\n", want: 7},
		{name: "no newline at all", stderr: "5", want: 5},
		{name: "negative", stderr: "\n-3", want: -3},
		{name: "empty", stderr: "", wantErr: true},
		{name: "blank last line", stderr: "12\n\n", wantErr: true},
		{name: "not a number", stderr: "\nwrong!", wantErr: true},
		{name: "hex is not base 10", stderr: "\n0x10", wantErr: true},
		{name: "trailing content", stderr: "\n10 instructions", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount([]byte(tt.stderr))
			if tt.wantErr {
				var malformed *MalformedSideChannelError
				assert.True(t, errors.As(err, &malformed), "ParseCount(%q) error = %v", tt.stderr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func stubRunner(stdout, stderr string, rc int, seen *[]*ride.Command) RunFunc {
	return func(ctx context.Context, cmd *ride.Command) (*ride.Result, error) {
		if seen != nil {
			*seen = append(*seen, cmd)
		}
		return &ride.Result{Stdout: []byte(stdout), Stderr: []byte(stderr), ExitCode: rc}, nil
	}
}

func TestQuery_RoundTrip(t *testing.T) {
	for _, prefix := range []string{"", "noise\n", "a\nb\nc: 1\n\n", "\n\n\n"} {
		const k = int64(918273)
		var seen []*ride.Command
		o := New(&Pin{Home: "/opt/pin"},
			WithRunner(stubRunner("Incorrect!\n", prefix+"\n918273", 1, &seen)),
			WithTimeout(time.Second),
			WithDir("/tmp"),
			WithEnv("LD_BIND_NOW=1"),
		)
		res, count, err := o.Query(context.Background(), &Query{
			Target:   "/bin/crackme",
			Args:     []string{"-v"},
			Observer: "icount.py",
			Stdin:    []byte("CAT\n"),
		})
		require.NoError(t, err)
		assert.Equal(t, k, count)
		assert.Equal(t, 1, res.ExitCode)
		assert.Equal(t, "Incorrect!\n", string(res.Stdout))

		require.Len(t, seen, 1)
		assert.Equal(t, "/opt/pin/pin", seen[0].Path)
		assert.Equal(t, []byte("CAT\n"), seen[0].Stdin)
		assert.Equal(t, time.Second, seen[0].Timeout)
		assert.Equal(t, "/tmp", seen[0].Dir)
		assert.Equal(t, []string{"LD_BIND_NOW=1"}, seen[0].Env)
	}
}

func TestQuery_Malformed(t *testing.T) {
	o := New(&Pin{Home: "/opt/pin"}, WithRunner(stubRunner("", "segfault\n", 139, nil)))
	res, _, err := o.Query(context.Background(), &Query{Target: "t", Observer: "o"})
	var malformed *MalformedSideChannelError
	require.True(t, errors.As(err, &malformed))
	require.NotNil(t, res, "result is still returned for inspection")
	assert.Equal(t, 139, res.ExitCode)
}

func TestQuery_RunnerError(t *testing.T) {
	spawnErr := &ride.SpawnError{Path: "/opt/pin/pin", Err: errors.New("no such file")}
	o := New(&Pin{Home: "/opt/pin"}, WithRunner(func(context.Context, *ride.Command) (*ride.Result, error) {
		return nil, spawnErr
	}))
	_, _, err := o.Query(context.Background(), &Query{Target: "t", Observer: "o"})
	assert.ErrorIs(t, err, spawnErr)
}

func TestQuery_Validation(t *testing.T) {
	o := New(&Pin{Home: "/opt/pin"}, WithRunner(stubRunner("", "\n1", 0, nil)))
	_, _, err := o.Query(context.Background(), &Query{Observer: "o"})
	assert.Error(t, err)
	_, _, err = o.Query(context.Background(), &Query{Target: "t"})
	assert.Error(t, err)

	unconfigured := New(&Pin{}, WithRunner(stubRunner("", "\n1", 0, nil)))
	_, _, err = unconfigured.Query(context.Background(), &Query{Target: "t", Observer: "o"})
	assert.ErrorIs(t, err, ErrEngineNotConfigured)
}

func TestQuery_RealProcess(t *testing.T) {
	o := New(shellLauncher{}, WithTimeout(5*time.Second))
	res, count, err := o.Query(context.Background(), &Query{
		Target:   "echo chatter 1>&2; cat; printf '\\n%d' 314",
		Observer: "unused",
		Stdin:    []byte("hello"),
	})
	if err != nil {
		var spawnErr *ride.SpawnError
		if errors.As(err, &spawnErr) {
			t.Skip("no /bin/sh")
		}
		t.Fatal(err)
	}
	assert.Equal(t, int64(314), count)
	assert.Equal(t, "hello", string(res.Stdout))
}

// shellLauncher runs the target as a shell script.
type shellLauncher struct{}

func (shellLauncher) Command(target string, args []string, observer string) (string, []string, error) {
	return "/bin/sh", []string{"-c", target}, nil
}

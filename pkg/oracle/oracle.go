// Package oracle runs a target under an instrumentation engine and reads the
// side-channel value the observer left on the last line of stderr.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/pkg/ride"
	"golang.org/x/time/rate"
)

// MalformedSideChannelError is returned when the last stderr line is not a base-10 integer.
type MalformedSideChannelError struct {
	Line string
	Err  error
}

func (e *MalformedSideChannelError) Error() string {
	if e.Line == "" {
		return "malformed side channel: last stderr line is empty"
	}
	return fmt.Sprintf("malformed side channel: last stderr line %q: %v", e.Line, e.Err)
}

func (e *MalformedSideChannelError) Unwrap() error { return e.Err }

// Query is one ride of a target under an observer.
type Query struct {
	Target   string
	Args     []string
	Observer string
	Stdin    []byte
}

// RunFunc executes a process; ride.Run in production.
type RunFunc func(ctx context.Context, cmd *ride.Command) (*ride.Result, error)

// Option configures an Oracle.
type Option func(*Oracle)

// WithRunner replaces the process runner.
func WithRunner(run RunFunc) Option {
	return func(o *Oracle) { o.run = run }
}

// WithTimeout bounds every ride.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Oracle) { o.timeout = timeout }
}

// WithRateLimit caps how many rides start per second.
func WithRateLimit(perSecond float64) Option {
	return func(o *Oracle) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithDir sets the working directory of every ride.
func WithDir(dir string) Option {
	return func(o *Oracle) { o.dir = dir }
}

// WithEnv adds environment variables to every ride.
func WithEnv(env ...string) Option {
	return func(o *Oracle) { o.env = append(o.env, env...) }
}

// Oracle scores inputs by riding the target through an engine.
// It holds no per-query state and is safe for concurrent use.
type Oracle struct {
	launcher Launcher
	run      RunFunc
	timeout  time.Duration
	dir      string
	env      []string
	limiter  *rate.Limiter
}

// New returns an oracle that builds its engine invocations with l.
func New(l Launcher, opts ...Option) *Oracle {
	o := &Oracle{
		launcher: l,
		run:      ride.Run,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Command returns the engine invocation for q without running it.
func (o *Oracle) Command(q *Query) (*ride.Command, error) {
	if q.Target == "" {
		return nil, fmt.Errorf("no target binary")
	}
	if q.Observer == "" {
		return nil, fmt.Errorf("no observer")
	}
	exe, args, err := o.launcher.Command(q.Target, q.Args, q.Observer)
	if err != nil {
		return nil, err
	}
	return &ride.Command{
		Path:    exe,
		Args:    args,
		Dir:     o.dir,
		Stdin:   q.Stdin,
		Env:     o.env,
		Timeout: o.timeout,
	}, nil
}

// Query rides the target once and returns the result and the parsed side-channel value.
func (o *Oracle) Query(ctx context.Context, q *Query) (*ride.Result, int64, error) {
	cmd, err := o.Command(q)
	if err != nil {
		return nil, 0, err
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	res, err := o.run(ctx, cmd)
	if err != nil {
		return nil, 0, err
	}
	count, err := ParseCount(res.Stderr)
	if err != nil {
		log.WithFields(log.Fields{
			"rc":     res.ExitCode,
			"stderr": string(res.Stderr),
		}).Debug("Unparsable ride")
		return res, 0, err
	}
	return res, count, nil
}

// ParseCount parses the last newline-delimited line of stderr as a base-10
// integer. A single trailing line ending is ignored.
func ParseCount(stderr []byte) (int64, error) {
	stderr = bytes.TrimSuffix(stderr, []byte("\n"))
	stderr = bytes.TrimSuffix(stderr, []byte("\r"))
	line := stderr
	if idx := bytes.LastIndexByte(stderr, '\n'); idx >= 0 {
		line = stderr[idx+1:]
	}
	if len(line) == 0 {
		return 0, &MalformedSideChannelError{}
	}
	count, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &MalformedSideChannelError{Line: string(line), Err: err}
	}
	return count, nil
}

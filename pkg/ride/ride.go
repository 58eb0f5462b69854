// Package ride runs a single process to completion and captures what it left behind.
package ride

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/apex/log"
)

// Command describes one process invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string   // inherited when empty
	Stdin   []byte   // nil means no input
	Env     []string // appended to the current environment
	Timeout time.Duration
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result is the captured output of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// SpawnError is returned when the executable could not be located or started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError is returned when the process outlived Command.Timeout and was killed.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s: %s", e.Timeout, e.Path)
}

// Run spawns cmd, feeds it Stdin and blocks until it exits.
// A non-zero exit code is not an error.
func Run(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil || cmd.Path == "" {
		return nil, &SpawnError{Err: exec.ErrNotFound}
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}
	c.Stdout = &stdout
	c.Stderr = &stderr
	setProcessGroup(c)
	c.WaitDelay = time.Second

	log.WithField("cmd", cmd.String()).Debug("Riding")

	if err := c.Start(); err != nil {
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}

	err := c.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &TimeoutError{Path: cmd.Path, Timeout: cmd.Timeout}
	}

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
			return nil, fmt.Errorf("failed to wait for %s: %w", cmd.Path, err)
		}
	}

	return res, nil
}

//go:build linux && (amd64 || arm64)

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/pkg/paint"
	"golang.org/x/sys/unix"
)

func init() {
	Register("ptrace", NewPtrace)
}

// Ptrace single-steps the main thread of a native process.
// Threads spawned by the target are not followed.
type Ptrace struct {
	hooks
	conf *Config
}

// NewPtrace returns a ptrace engine for conf.Target.
func NewPtrace(conf *Config) (Engine, error) {
	if conf.Target == "" {
		return nil, fmt.Errorf("no target")
	}
	return &Ptrace{conf: conf}, nil
}

// peeker reads tracee memory.
type peeker int

func (p peeker) ReadAt(b []byte, off int64) (int, error) {
	return unix.PtracePeekText(int(p), uintptr(off), b)
}

func (p *Ptrace) Run(ctx context.Context) (int, error) {
	// every ptrace request must come from the thread that started the tracee
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	path := p.conf.Target
	if filepath.Base(path) == path {
		if lp, err := exec.LookPath(path); err == nil {
			path = lp
		}
	}
	in, out, errOut := p.conf.stdio()
	proc, err := os.StartProcess(path, append([]string{p.conf.Target}, p.conf.Args...), &os.ProcAttr{
		Dir:   p.conf.Dir,
		Env:   p.conf.env(),
		Files: []*os.File{in, out, errOut},
		Sys:   &syscall.SysProcAttr{Ptrace: true, Pdeathsig: syscall.SIGKILL},
	})
	if err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", p.conf.Target, err)
	}
	pid := proc.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			unix.Kill(pid, unix.SIGKILL)
		case <-done:
		}
	}()

	var (
		ws      unix.WaitStatus
		regs    syscall.PtraceRegs
		first   = true
		mem     = peeker(pid)
		stepped uint64
	)
	for {
		if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
			if err == unix.EINTR {
				continue
			}
			return -1, fmt.Errorf("failed to wait for %d: %w", pid, err)
		}
		switch {
		case ws.Exited():
			return p.exit(ctx, ws.ExitStatus(), stepped)
		case ws.Signaled():
			return p.exit(ctx, 128+int(ws.Signal()), stepped)
		case !ws.Stopped():
			continue
		}

		if first {
			first = false
			if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_EXITKILL); err != nil {
				log.WithError(err).Debug("ptrace: failed to set PTRACE_O_EXITKILL")
			}
		}

		sig := ws.StopSignal()
		if sig == unix.SIGTRAP {
			sig = 0
			if err := syscall.PtraceGetRegs(pid, &regs); err != nil {
				return -1, fmt.Errorf("failed to read registers of %d: %w", pid, err)
			}
			p.fire(paint.Instruction{Address: regs.PC(), Mem: mem})
			stepped++
		}
		if err := singleStep(pid, sig); err != nil {
			if err == unix.ESRCH {
				// killed between the stop and the step; the next wait reports it
				continue
			}
			return -1, fmt.Errorf("failed to single step %d: %w", pid, err)
		}
	}
}

func (p *Ptrace) exit(ctx context.Context, code int, stepped uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return code, err
	}
	log.WithFields(log.Fields{
		"target": p.conf.Target,
		"steps":  stepped,
		"rc":     code,
	}).Debug("ptrace: target exited")
	p.finish()
	return code, nil
}

// singleStep resumes pid for one instruction, delivering sig if non zero.
func singleStep(pid int, sig syscall.Signal) error {
	if sig == 0 {
		return unix.PtraceSingleStep(pid)
	}
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SINGLESTEP, uintptr(pid), 0, uintptr(sig), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

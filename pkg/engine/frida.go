//go:build frida

package engine

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/pkg/paint"
	"github.com/frida/frida-go/frida"
	"github.com/mitchellh/mapstructure"
)

//go:embed data/stalker.js
var stalkerScript string

func init() {
	Register("frida", NewStalker)
}

// Stalker follows the main thread of a spawned process with frida's Stalker.
// Instruction memory is not exposed, so Instruction.Mem is always nil.
type Stalker struct {
	hooks
	conf *Config

	mu       sync.Mutex
	exitCode int
	exited   bool
}

// NewStalker returns a frida engine running on the local device.
func NewStalker(conf *Config) (Engine, error) {
	if conf.Target == "" {
		return nil, fmt.Errorf("no target")
	}
	return &Stalker{conf: conf}, nil
}

type execPayload struct {
	Kind  string   `mapstructure:"kind"`
	Addrs []string `mapstructure:"addrs"`
	Code  int      `mapstructure:"code"`
}

func (s *Stalker) onMessage(data string, done chan<- struct{}) {
	msg, err := frida.ScriptMessageToMessage(data)
	if err != nil {
		log.Errorf("error parsing script message: %v", err)
		return
	}
	switch msg.Type {
	case frida.MessageTypeError:
		log.WithFields(log.Fields{
			"line":   msg.LineNumber,
			"column": msg.ColumnNumber,
		}).Errorf("frida: script error - %v", msg.Description)
	case frida.MessageTypeSend:
		if !msg.IsPayloadMap {
			log.Debugf("frida: unexpected payload %v", msg.Payload)
			return
		}
		var p execPayload
		if err := mapstructure.Decode(msg.Payload, &p); err != nil {
			log.Errorf("error decoding payload: %v", err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		switch p.Kind {
		case "exec":
			for _, a := range p.Addrs {
				addr, err := strconv.ParseUint(a, 0, 64)
				if err != nil {
					log.WithError(err).Warnf("frida: bad address %q", a)
					continue
				}
				s.fire(paint.Instruction{Address: addr})
			}
		case "exit":
			if !s.exited {
				s.exited = true
				s.exitCode = p.Code
				close(done)
			}
		}
	case frida.MessageTypeLog:
		log.Debugf("frida: %v", msg.Payload)
	}
}

func (s *Stalker) Run(ctx context.Context) (int, error) {
	dev := frida.LocalDevice()
	if dev == nil {
		return -1, fmt.Errorf("failed to get local frida device")
	}

	opts := frida.NewSpawnOptions()
	opts.SetArgv(append([]string{s.conf.Target}, s.conf.Args...))
	opts.SetStdio(frida.StdioInherit)
	if s.conf.Dir != "" {
		opts.SetCwd(s.conf.Dir)
	}

	pid, err := dev.Spawn(s.conf.Target, opts)
	if err != nil {
		return -1, fmt.Errorf("failed to spawn process: %v", err)
	}
	session, err := dev.Attach(pid, nil)
	if err != nil {
		dev.Kill(pid)
		return -1, fmt.Errorf("failed to attach to PID %d: %v", pid, err)
	}
	defer session.Detach()

	script, err := session.CreateScript(stalkerScript)
	if err != nil {
		dev.Kill(pid)
		return -1, fmt.Errorf("error ocurred creating script: %v", err)
	}

	done := make(chan struct{})
	detached := make(chan struct{})
	var detachOnce sync.Once
	script.On("message", func(data string) {
		s.onMessage(data, done)
	})
	session.On("detached", func(reason frida.SessionDetachReason) {
		log.WithField("reason", reason).Debug("frida: session detached")
		detachOnce.Do(func() { close(detached) })
	})

	if err := script.Load(); err != nil {
		dev.Kill(pid)
		return -1, fmt.Errorf("error loading script: %v", err)
	}
	if err := dev.Resume(pid); err != nil {
		dev.Kill(pid)
		return -1, fmt.Errorf("failed to resume PID %d: %v", pid, err)
	}

	select {
	case <-ctx.Done():
		dev.Kill(pid)
		return -1, ctx.Err()
	case <-done:
	case <-detached:
	}

	s.mu.Lock()
	code, exited := s.exitCode, s.exited
	s.mu.Unlock()
	if !exited {
		log.Warn("frida: target detached without calling exit")
	}
	s.finish()
	return code, nil
}

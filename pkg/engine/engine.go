// Package engine runs a target process under instruction level
// instrumentation and feeds every executed instruction to the callbacks
// registered through paint.Engine.
package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/blacktop/unicycle/pkg/paint"
)

// Config describes one instrumented run.
type Config struct {
	Target string
	Args   []string
	Dir    string
	Env    []string // defaults to os.Environ()

	Stdin  *os.File // defaults to os.Stdin
	Stdout *os.File // defaults to os.Stdout
	Stderr *os.File // defaults to os.Stderr

	// emulator only
	Arch  string // "amd64" or "arm64"
	Base  uint64 // load address of the code blob
	Entry uint64 // offset of the entry point inside the blob
	Until uint64 // stop address; 0 returns to a sentinel after the entry function
}

func (c *Config) stdio() (*os.File, *os.File, *os.File) {
	in, out, errOut := c.Stdin, c.Stdout, c.Stderr
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return in, out, errOut
}

func (c *Config) env() []string {
	if c.Env != nil {
		return c.Env
	}
	return os.Environ()
}

// Engine is an instrumentation engine that can run its target once.
type Engine interface {
	paint.Engine
	// Run executes the target to completion and returns its exit code.
	// End-of-run callbacks fire only when the target finished on its own.
	Run(ctx context.Context) (int, error)
}

// Factory builds an engine for one run.
type Factory func(conf *Config) (Engine, error)

var (
	regMu    sync.Mutex
	registry = map[string]Factory{}
)

// Register makes an engine available under name.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Factory, error) {
	regMu.Lock()
	defer regMu.Unlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available in this build: %v)", name, names())
	}
	return f, nil
}

// Names lists the engines compiled into this binary.
func Names() []string {
	regMu.Lock()
	defer regMu.Unlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// hooks implements the paint.Engine half shared by every engine.
type hooks struct {
	instrument []func(paint.Instruction)
	fini       []func()
	finiOnce   sync.Once
}

func (h *hooks) AddInstrumentFunction(fn func(paint.Instruction)) {
	h.instrument = append(h.instrument, fn)
}

func (h *hooks) AddFiniFunction(fn func()) {
	h.fini = append(h.fini, fn)
}

func (h *hooks) fire(ins paint.Instruction) {
	for _, fn := range h.instrument {
		fn(ins)
	}
}

func (h *hooks) finish() {
	h.finiOnce.Do(func() {
		for _, fn := range h.fini {
			fn()
		}
	})
}

// Package observer contains the observers a native engine can run inside an
// instrumented process, and a registry to look them up by name.
package observer

import (
	"fmt"
	"io"
	"sort"

	"github.com/blacktop/unicycle/pkg/paint"
)

// Observer is anything that can hook itself into an engine for one run.
type Observer interface {
	Activate(e paint.Engine) error
}

// Options configure an observer created from the registry.
type Options struct {
	Start uint64
	End   uint64
	// SideChannel receives the reported value (stderr for a real run).
	SideChannel io.Writer
	// Arch selects the disassembler for tracing observers ("amd64" or "arm64").
	Arch string
}

// Factory builds a fresh observer for one run.
type Factory func(opts *Options) (Observer, error)

var registry = map[string]Factory{
	"icount": func(opts *Options) (Observer, error) {
		return NewInstructionCounter(opts.SideChannel, opts.Start, opts.End)
	},
	"itrace": func(opts *Options) (Observer, error) {
		return NewTracer(opts)
	},
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown observer %q (available: %v)", name, Names())
	}
	return f, nil
}

// Names lists the registered observers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

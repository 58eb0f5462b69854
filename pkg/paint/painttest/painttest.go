// Package painttest provides an in-memory engine that replays a synthetic
// instruction stream through activated dispatchers.
package painttest

import "github.com/blacktop/unicycle/pkg/paint"

// Engine records the hooks it is given and replays addresses through them.
type Engine struct {
	instrument []func(paint.Instruction)
	fini       []func()
}

func (e *Engine) AddInstrumentFunction(fn func(paint.Instruction)) {
	e.instrument = append(e.instrument, fn)
}

func (e *Engine) AddFiniFunction(fn func()) {
	e.fini = append(e.fini, fn)
}

// Step delivers a single executed address.
func (e *Engine) Step(addr uint64) {
	ins := paint.Instruction{Address: addr}
	for _, fn := range e.instrument {
		fn(ins)
	}
}

// Exit runs the end-of-run hooks.
func (e *Engine) Exit() {
	for _, fn := range e.fini {
		fn()
	}
}

// Run steps through addrs and then exits.
func (e *Engine) Run(addrs ...uint64) {
	for _, addr := range addrs {
		e.Step(addr)
	}
	e.Exit()
}

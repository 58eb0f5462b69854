// Package paint associates executed instruction addresses with observer actions.
//
// A Dispatcher holds an ordered list of paintings. Each painting covers an
// inclusive address range, optionally narrowed by a predicate over the
// address, and carries the action to run whenever an instruction inside it
// executes. An address may match any number of paintings; every match fires,
// in the order the paintings were registered, so independent observers can be
// stacked on the same code.
//
// The dispatcher never talks to an instrumentation engine directly. Activate
// hands it to anything implementing Engine.
package paint

import (
	"fmt"
	"io"
	"sync"
)

// Instruction describes an executed instruction as reported by an engine.
type Instruction struct {
	Address uint64
	Size    uint32      // 0 when the engine does not know
	Mem     io.ReaderAt // target memory, nil when the engine does not expose it
}

// Action is run for every matching executed instruction.
type Action func(Instruction)

// Predicate narrows a painting to the addresses it returns true for.
type Predicate func(addr uint64) bool

// Engine is an instrumentation engine able to call back for every executed
// instruction and once when the instrumented process has exited.
type Engine interface {
	AddInstrumentFunction(fn func(Instruction))
	AddFiniFunction(fn func())
}

// Painting is a registered association between an address range and an action.
type Painting struct {
	Start     uint64
	End       uint64
	Predicate Predicate
	Action    Action
}

// Matches reports whether addr falls inside the painting.
func (p Painting) Matches(addr uint64) bool {
	if addr < p.Start || addr > p.End {
		return false
	}
	if p.Predicate != nil {
		return p.Predicate(addr)
	}
	return true
}

func (p Painting) String() string {
	return fmt.Sprintf("PAINTING(%#x,%#x)", p.Start, p.End)
}

// InvalidRangeError is returned by Paint when start > end.
type InvalidRangeError struct {
	Start uint64
	End   uint64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid painting range: start %#x is above end %#x", e.Start, e.End)
}

// Dispatcher maps executed addresses to painted actions.
// Paintings are registered during setup; Dispatch and Fire only read them.
type Dispatcher struct {
	paintings []Painting
	finalize  func()
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Paint registers action for every executed instruction in [start, end].
// pred may be nil.
func (d *Dispatcher) Paint(start, end uint64, action Action, pred Predicate) error {
	if start > end {
		return &InvalidRangeError{Start: start, End: end}
	}
	if action == nil {
		return fmt.Errorf("painting %#x-%#x has no action", start, end)
	}
	d.paintings = append(d.paintings, Painting{
		Start:     start,
		End:       end,
		Predicate: pred,
		Action:    action,
	})
	return nil
}

// Paintings returns a copy of the registered paintings in registration order.
func (d *Dispatcher) Paintings() []Painting {
	out := make([]Painting, len(d.paintings))
	copy(out, d.paintings)
	return out
}

// Dispatch returns the actions painted over addr, in registration order.
func (d *Dispatcher) Dispatch(addr uint64) []Action {
	var actions []Action
	for _, p := range d.paintings {
		if p.Matches(addr) {
			actions = append(actions, p.Action)
		}
	}
	return actions
}

// Fire runs every action painted over ins.Address.
func (d *Dispatcher) Fire(ins Instruction) {
	for _, p := range d.paintings {
		if p.Matches(ins.Address) {
			p.Action(ins)
		}
	}
}

// OnFinalize sets the function run once the instrumented process has exited.
// A later call replaces an earlier one.
func (d *Dispatcher) OnFinalize(fn func()) {
	d.finalize = fn
}

// Activate registers the dispatcher with e.
func (d *Dispatcher) Activate(e Engine) error {
	if e == nil {
		return fmt.Errorf("cannot activate dispatcher: no engine")
	}
	e.AddInstrumentFunction(d.Fire)
	if d.finalize != nil {
		var once sync.Once
		fini := d.finalize
		e.AddFiniFunction(func() { once.Do(fini) })
	}
	return nil
}

package observer

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/blacktop/unicycle/pkg/paint"
)

// RangeStart and RangeEnd span the whole address space.
const (
	RangeStart uint64 = 0
	RangeEnd   uint64 = ^uint64(0)
)

// ErrReused is returned when an observer is activated for a second run.
var ErrReused = errors.New("observer already activated: create a new one per run")

type state int32

const (
	stateIdle state = iota
	stateCounting
	stateReported
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCounting:
		return "counting"
	case stateReported:
		return "reported"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// InstructionCounter counts executed instructions inside one address range and
// reports the total as the final line written to its side channel.
type InstructionCounter struct {
	d     *paint.Dispatcher
	w     io.Writer
	count atomic.Uint64
	state atomic.Int32
	err   error
}

// NewInstructionCounter returns a counter over [start, end] that reports to w
// (normally os.Stderr).
func NewInstructionCounter(w io.Writer, start, end uint64) (*InstructionCounter, error) {
	c := &InstructionCounter{
		d: paint.New(),
		w: w,
	}
	if err := c.d.Paint(start, end, c.count1, nil); err != nil {
		return nil, err
	}
	c.d.OnFinalize(c.report)
	return c, nil
}

func (c *InstructionCounter) count1(paint.Instruction) {
	c.count.Add(1)
}

// report writes "\n<count>" so the count is the last line, with nothing after it.
func (c *InstructionCounter) report() {
	if !c.state.CompareAndSwap(int32(stateCounting), int32(stateReported)) {
		return
	}
	_, c.err = fmt.Fprintf(c.w, "\n%d", c.count.Load())
}

// Dispatcher exposes the underlying dispatcher so more paintings can be stacked
// on the same run.
func (c *InstructionCounter) Dispatcher() *paint.Dispatcher {
	return c.d
}

// Activate starts counting on e.
func (c *InstructionCounter) Activate(e paint.Engine) error {
	if !c.state.CompareAndSwap(int32(stateIdle), int32(stateCounting)) {
		return ErrReused
	}
	return c.d.Activate(e)
}

// Count returns the number of instructions counted so far.
func (c *InstructionCounter) Count() uint64 {
	return c.count.Load()
}

// Reported reports whether the final count has been written.
func (c *InstructionCounter) Reported() bool {
	return state(c.state.Load()) == stateReported
}

// Err returns the error, if any, hit while writing the report.
func (c *InstructionCounter) Err() error {
	return c.err
}

func (c *InstructionCounter) String() string {
	return fmt.Sprintf("icount[%s]=%d", state(c.state.Load()), c.count.Load())
}

package observer

import (
	"fmt"
	"runtime"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/pkg/paint"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

const maxInstructionSize = 15 // longest x86 encoding

// Tracer counts like InstructionCounter and also logs the disassembly of every
// counted instruction at debug level.
type Tracer struct {
	*InstructionCounter
	arch string
}

// NewTracer returns a tracing counter for opts.
func NewTracer(opts *Options) (*Tracer, error) {
	c, err := NewInstructionCounter(opts.SideChannel, opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	t := &Tracer{InstructionCounter: c, arch: opts.Arch}
	if t.arch == "" {
		t.arch = runtime.GOARCH
	}
	if err := c.Dispatcher().Paint(opts.Start, opts.End, t.trace, nil); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracer) trace(ins paint.Instruction) {
	if ins.Mem == nil {
		log.WithField("addr", fmt.Sprintf("%#x", ins.Address)).Debug("<no memory>")
		return
	}
	text, err := Disassemble(t.arch, ins)
	if err != nil {
		log.WithField("addr", fmt.Sprintf("%#x", ins.Address)).Debugf("<%v>", err)
		return
	}
	log.WithField("addr", fmt.Sprintf("%#x", ins.Address)).Debug(text)
}

// Disassemble decodes the instruction at ins.Address from ins.Mem.
func Disassemble(arch string, ins paint.Instruction) (string, error) {
	size := ins.Size
	switch arch {
	case "amd64", "x86_64":
		if size == 0 || size > maxInstructionSize {
			size = maxInstructionSize
		}
		code := make([]byte, size)
		n, err := ins.Mem.ReadAt(code, int64(ins.Address))
		if n == 0 {
			return "", fmt.Errorf("failed to read code at %#x: %v", ins.Address, err)
		}
		inst, err := x86asm.Decode(code[:n], 64)
		if err != nil {
			return "", fmt.Errorf("failed to decode at %#x: %v", ins.Address, err)
		}
		return x86asm.IntelSyntax(inst, ins.Address, nil), nil
	case "arm64", "aarch64":
		code := make([]byte, 4)
		if _, err := ins.Mem.ReadAt(code, int64(ins.Address)); err != nil {
			return "", fmt.Errorf("failed to read code at %#x: %v", ins.Address, err)
		}
		inst, err := arm64asm.Decode(code)
		if err != nil {
			return "", fmt.Errorf("failed to decode at %#x: %v", ins.Address, err)
		}
		return arm64asm.GNUSyntax(inst), nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", arch)
	}
}

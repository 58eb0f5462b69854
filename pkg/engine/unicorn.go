//go:build unicorn

package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/unicycle/pkg/paint"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

func init() {
	Register("unicorn", NewEmulator)
}

// Emulator runs a raw code blob as a function taking (input, length) and
// reports its return value. The blob is read from Config.Target and the input
// from Config.Stdin.
type Emulator struct {
	hooks
	conf *Config
}

// NewEmulator returns an emulator engine for conf.Arch.
func NewEmulator(conf *Config) (Engine, error) {
	switch conf.Arch {
	case "amd64", "x86_64", "arm64", "aarch64":
	default:
		return nil, fmt.Errorf("unsupported emulator arch %q", conf.Arch)
	}
	return &Emulator{conf: conf}, nil
}

type archRegs struct {
	arch, mode       int
	arg0, arg1       int
	ret, sp, retAddr int // retAddr < 0 means the return address lives on the stack
}

func regsFor(arch string) archRegs {
	if arch == "arm64" || arch == "aarch64" {
		return archRegs{
			arch: uc.ARCH_ARM64, mode: uc.MODE_ARM,
			arg0: uc.ARM64_REG_X0, arg1: uc.ARM64_REG_X1,
			ret: uc.ARM64_REG_X0, sp: uc.ARM64_REG_SP, retAddr: uc.ARM64_REG_LR,
		}
	}
	return archRegs{
		arch: uc.ARCH_X86, mode: uc.MODE_64,
		arg0: uc.X86_REG_RDI, arg1: uc.X86_REG_RSI,
		ret: uc.X86_REG_RAX, sp: uc.X86_REG_RSP, retAddr: -1,
	}
}

// ucMem reads emulator memory.
type ucMem struct {
	mu uc.Unicorn
}

func (m ucMem) ReadAt(p []byte, off int64) (int, error) {
	data, err := m.mu.MemRead(uint64(off), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

func (e *Emulator) Run(ctx context.Context) (int, error) {
	blob, err := os.ReadFile(e.conf.Target)
	if err != nil {
		return -1, fmt.Errorf("failed to read code blob: %w", err)
	}
	in, out, _ := e.conf.stdio()
	input, err := io.ReadAll(in)
	if err != nil {
		return -1, fmt.Errorf("failed to read input: %w", err)
	}
	l, err := newLayout(e.conf, len(blob), len(input))
	if err != nil {
		return -1, err
	}
	r := regsFor(e.conf.Arch)

	mu, err := uc.NewUnicorn(r.arch, r.mode)
	if err != nil {
		return -1, fmt.Errorf("failed to create new unicorn instance: %v", err)
	}
	defer mu.Close()

	if err := mu.MemMap(l.codeAddr, l.codeSize); err != nil {
		return -1, fmt.Errorf("failed to memmap code at %#x: %v", l.codeAddr, err)
	}
	if err := mu.MemWrite(l.base, blob); err != nil {
		return -1, fmt.Errorf("failed to write code blob: %v", err)
	}
	if err := mu.MemMap(l.stackAddr, l.stackSize); err != nil {
		return -1, fmt.Errorf("failed to memmap stack at %#x: %v", l.stackAddr, err)
	}
	if err := mu.MemMap(l.inputAddr, l.inputSize); err != nil {
		return -1, fmt.Errorf("failed to memmap input at %#x: %v", l.inputAddr, err)
	}
	if len(input) > 0 {
		if err := mu.MemWrite(l.inputAddr, input); err != nil {
			return -1, fmt.Errorf("failed to write input: %v", err)
		}
	}

	sp := l.stackAddr + l.stackSize - 0x100
	if r.retAddr < 0 {
		sp -= 8
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, l.stop)
		if err := mu.MemWrite(sp, buf.Bytes()); err != nil {
			return -1, fmt.Errorf("failed to push return address: %v", err)
		}
	} else if err := mu.RegWrite(r.retAddr, l.stop); err != nil {
		return -1, fmt.Errorf("failed to set return address: %v", err)
	}
	for reg, val := range map[int]uint64{
		r.sp:   sp,
		r.arg0: l.inputAddr,
		r.arg1: uint64(len(input)),
	} {
		if err := mu.RegWrite(reg, val); err != nil {
			return -1, fmt.Errorf("failed to set register %d to %#x: %v", reg, val, err)
		}
	}

	mem := ucMem{mu: mu}
	if _, err := mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		e.fire(paint.Instruction{Address: addr, Size: size, Mem: mem})
	}, 1, 0); err != nil {
		return -1, fmt.Errorf("failed to add code hook: %v", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mu.Stop()
		case <-done:
		}
	}()

	log.WithFields(log.Fields{
		"entry": fmt.Sprintf("%#x", l.entry),
		"stop":  fmt.Sprintf("%#x", l.stop),
		"input": fmt.Sprintf("%#x", l.inputAddr),
	}).Debug("unicorn: starting emulation")
	if err := mu.Start(l.entry, l.stop); err != nil {
		pc, _ := mu.RegRead(pcReg(r))
		return -1, fmt.Errorf("emulation failed at %#x: %v", pc, err)
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	ret, err := mu.RegRead(r.ret)
	if err != nil {
		return -1, fmt.Errorf("failed to read return value: %v", err)
	}
	fmt.Fprintf(out, "%d\n", ret)
	e.finish()
	return int(ret & 0xff), nil
}

func pcReg(r archRegs) int {
	if r.arch == uc.ARCH_ARM64 {
		return uc.ARM64_REG_PC
	}
	return uc.X86_REG_RIP
}

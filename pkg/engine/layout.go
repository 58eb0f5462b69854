package engine

import "fmt"

const (
	pageSize = 0x1000

	defaultBase = 0x100000
	stackBase   = 0x60000000
	stackSize   = 0x800000
	inputBase   = 0x70000000
)

// Align rounds [addr, addr+size) out to page boundaries.
func Align(addr, size uint64) (uint64, uint64) {
	mask := ^uint64(pageSize - 1)
	right := (addr + size + pageSize - 1) & mask
	addr &= mask
	if right == addr {
		right += pageSize
	}
	return addr, right - addr
}

// layout is where an emulated run places code, stack and input.
type layout struct {
	base                 uint64
	codeAddr, codeSize   uint64
	entry                uint64
	stop                 uint64 // sentinel return address, inside the code mapping
	stackAddr, stackSize uint64
	inputAddr, inputSize uint64
}

func newLayout(conf *Config, blobLen, inputLen int) (*layout, error) {
	if blobLen == 0 {
		return nil, fmt.Errorf("empty code blob")
	}
	base := conf.Base
	if base == 0 {
		base = defaultBase
	}
	if base%pageSize != 0 {
		return nil, fmt.Errorf("base %#x is not page aligned", base)
	}
	if conf.Entry >= uint64(blobLen) {
		return nil, fmt.Errorf("entry offset %#x is outside the %d byte blob", conf.Entry, blobLen)
	}
	// one spare page after the blob holds the sentinel return address
	codeAddr, codeSize := Align(base, uint64(blobLen)+pageSize)
	l := &layout{
		base:      base,
		codeAddr:  codeAddr,
		codeSize:  codeSize,
		entry:     base + conf.Entry,
		stop:      codeAddr + codeSize - pageSize,
		stackAddr: stackBase,
		stackSize: stackSize,
	}
	if conf.Until != 0 {
		l.stop = conf.Until
	}
	l.inputAddr, l.inputSize = Align(inputBase, uint64(inputLen))
	if l.codeAddr < l.stackAddr+l.stackSize && l.stackAddr < l.codeAddr+l.codeSize {
		return nil, fmt.Errorf("code at %#x overlaps the stack", l.codeAddr)
	}
	if l.codeAddr < l.inputAddr+l.inputSize && l.inputAddr < l.codeAddr+l.codeSize {
		return nil, fmt.Errorf("code at %#x overlaps the input buffer", l.codeAddr)
	}
	return l, nil
}

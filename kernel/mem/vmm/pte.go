package vmm

import "github.com/blitzos/kernel/kernel/mem/pmm"

// PTEFlag is a bitmask of page-table entry attribute bits.
type PTEFlag uint64

// Page-table entry flag bits, as defined by the x86-64 architecture.
const (
	FlagPresent PTEFlag = 1 << iota
	FlagWritable
	FlagUser
	FlagWriteThrough
	FlagCacheDisable
	FlagAccessed
	FlagDirty
	FlagHugePage
	FlagGlobal
	_ // bits 9-11 are available to software; unused here
	_
	_
)

// FlagNoExecute is bit 63, set separately from the low flag group above.
const FlagNoExecute PTEFlag = 1 << 63

const pteFrameMask = 0x000ffffffffff000

// pageTableEntry is a single slot in any of the four page-table levels: the
// low 12 bits hold flags, the high bit holds the no-execute flag, and the
// bits in between hold the physical frame address this entry points at.
type pageTableEntry uint64

func (e *pageTableEntry) HasFlags(flags PTEFlag) bool {
	return PTEFlag(*e)&flags == flags
}

func (e *pageTableEntry) HasAnyFlag(flags PTEFlag) bool {
	return PTEFlag(*e)&flags != 0
}

func (e *pageTableEntry) SetFlags(flags PTEFlag) {
	*e = pageTableEntry(PTEFlag(*e) | flags)
}

func (e *pageTableEntry) ClearFlags(flags PTEFlag) {
	*e = pageTableEntry(PTEFlag(*e) &^ flags)
}

// Frame returns the physical frame this entry points at.
func (e *pageTableEntry) Frame() pmm.Frame {
	return pmm.FrameFromAddress(uintptr(uint64(*e) & pteFrameMask))
}

// SetFrame points this entry at the given physical frame, leaving its flag
// bits untouched.
func (e *pageTableEntry) SetFrame(f pmm.Frame) {
	*e = pageTableEntry((uint64(*e) &^ pteFrameMask) | (uint64(f.Address()) & pteFrameMask))
}

// Package vmm maps and unmaps virtual pages against the currently active
// 4-level page table. It treats every physical address as directly
// dereferenceable: the kernel never isolates address spaces from one
// another, so page-table pages (and every frame they describe) live at an
// identity-mapped physical address the kernel can read and write without
// an extra translation step.
package vmm

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel/cpu"
	kernelerrors "github.com/blitzos/kernel/kernel/errors"
	"github.com/blitzos/kernel/kernel/mem/pmm"
)

// table is one level of the page-table hierarchy: 512 eight-byte entries.
type table [512]pageTableEntry

// FrameAllocatorFn reserves a new physical frame, used to back newly
// created intermediate page-table levels.
type FrameAllocatorFn func() (pmm.Frame, error)

// AddressSpace names the physical frame holding an L4 (PML4) table root.
type AddressSpace struct {
	Root pmm.Frame
}

// tableAtFn resolves a physical frame to the page-table it holds. In
// production this is a direct cast of the (identity-mapped) physical
// address; tests override it to redirect frame lookups into ordinary Go
// arrays standing in for physical memory.
var tableAtFn = func(f pmm.Frame) *table {
	return (*table)(unsafe.Pointer(f.Address()))
}

// flushTLBEntryFn and switchPDTFn indirect onto the cpu package so tests can
// intercept calls that would otherwise require real hardware.
var (
	flushTLBEntryFn = cpu.FlushTLBEntry
	switchPDTFn     = cpu.SwitchPDT
	activePDTFn     = cpu.ActivePDT
)

// kernelRoot is the address space Init recorded as the kernel's own.
// CreateAddressSpace copies its upper-half entries into every new address
// space so kernel mappings stay reachable regardless of which process's
// tables are active; see kernelHalfIndex.
var kernelRoot *AddressSpace

// kernelHalfIndex is the first L4 index covering the upper (kernel) half of
// a 48-bit virtual address space: L4 entries 256-511 each cover 512 GiB
// starting at 0xFFFF800000000000.
const kernelHalfIndex = 256

// Init reads the page-table root active at boot (the boot stub's own
// identity-mapped tables, per the boot contract) and records it as the
// kernel root. Must run once, before any call to CreateAddressSpace.
func Init() {
	kernelRoot = Active()
}

// CreateAddressSpace allocates a fresh L4 table, zeroes its lower half and
// copies the upper half from the kernel root recorded by Init so the new
// address space shares kernel mappings, per §4.3.
func CreateAddressSpace(allocFrame FrameAllocatorFn) (*AddressSpace, error) {
	root, err := allocFrame()
	if err != nil {
		return nil, err
	}

	l4 := tableAtFn(root)
	for i := 0; i < kernelHalfIndex; i++ {
		l4[i] = 0
	}

	if kernelRoot != nil {
		kernelL4 := tableAtFn(kernelRoot.Root)
		copy(l4[kernelHalfIndex:], kernelL4[kernelHalfIndex:])
	} else {
		for i := kernelHalfIndex; i < len(l4); i++ {
			l4[i] = 0
		}
	}

	return &AddressSpace{Root: root}, nil
}

// SwitchTo loads as as the active address space.
func SwitchTo(as *AddressSpace) {
	switchPDTFn(as.Root.Address())
}

// Active returns the address space currently loaded in cr3.
func Active() *AddressSpace {
	return &AddressSpace{Root: pmm.FrameFromAddress(activePDTFn())}
}

// Map installs a mapping from virtAddr's containing page to frame with the
// given flags, in as. Intermediate page-table levels are allocated via
// allocFrame as needed; FlagPresent is always implied regardless of flags.
func Map(as *AddressSpace, virtAddr uintptr, frame pmm.Frame, flags PTEFlag, allocFrame FrameAllocatorFn) error {
	pte, err := walk(as, PageFromAddress(virtAddr), allocFrame)
	if err != nil {
		return err
	}

	pte.SetFrame(frame)
	pte.SetFlags(flags | FlagPresent)
	flushTLBEntryFn(virtAddr)
	return nil
}

// Unmap clears the mapping for virtAddr's containing page. Unmapping an
// address with no existing mapping returns ErrInvalidMapping.
func Unmap(as *AddressSpace, virtAddr uintptr) error {
	pte, err := walk(as, PageFromAddress(virtAddr), nil)
	if err != nil {
		return err
	}
	if !pte.HasFlags(FlagPresent) {
		return kernelerrors.ErrInvalidMapping
	}

	*pte = 0
	flushTLBEntryFn(virtAddr)
	return nil
}

// Translate returns the physical frame virtAddr's containing page is
// mapped to, or ErrInvalidMapping if it is not mapped.
func Translate(as *AddressSpace, virtAddr uintptr) (pmm.Frame, error) {
	pte, err := walk(as, PageFromAddress(virtAddr), nil)
	if err != nil {
		return pmm.InvalidFrame, err
	}
	if !pte.HasFlags(FlagPresent) {
		return pmm.InvalidFrame, kernelerrors.ErrInvalidMapping
	}

	return pte.Frame(), nil
}

// walk descends the four page-table levels for page, returning a pointer
// to its L1 entry. If allocFrame is non-nil, missing intermediate tables
// are allocated and linked in; if nil, a missing intermediate table is
// reported as ErrInvalidMapping instead.
func walk(as *AddressSpace, page Page, allocFrame FrameAllocatorFn) (*pageTableEntry, error) {
	cur := tableAtFn(as.Root)

	indices := [3]uint16{page.l4Index(), page.l3Index(), page.l2Index()}
	for _, idx := range indices {
		entry := &cur[idx]

		if entry.HasAnyFlag(FlagHugePage) {
			return nil, kernelerrors.ErrHugePageUnsupported
		}

		if !entry.HasFlags(FlagPresent) {
			if allocFrame == nil {
				return nil, kernelerrors.ErrInvalidMapping
			}

			next, err := allocFrame()
			if err != nil {
				return nil, err
			}

			nextTable := tableAtFn(next)
			for i := range nextTable {
				nextTable[i] = 0
			}

			entry.SetFrame(next)
			entry.SetFlags(FlagPresent | FlagWritable)
		}

		cur = tableAtFn(entry.Frame())
	}

	return &cur[page.l1Index()], nil
}

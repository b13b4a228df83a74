// Package pmm contains types describing physical memory frames, shared by
// the bitmap allocator and the virtual memory mapper.
package pmm

import (
	"math"

	"github.com/blitzos/kernel/kernel/mem"
)

// Frame describes a physical memory frame index (a physical address shifted
// right by mem.PageShift).
type Frame uint64

// InvalidFrame is returned by allocators that fail to reserve a frame.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is not the sentinel InvalidFrame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical address for this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address, rounding down if the address is not frame-aligned.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}

// Package allocator implements the kernel's physical frame allocator: a
// single bitmap covering every 4 KiB frame reported by the boot loader.
package allocator

import (
	"reflect"
	"unsafe"

	"github.com/blitzos/kernel/kernel"
	"github.com/blitzos/kernel/kernel/hal/multiboot"
	"github.com/blitzos/kernel/kernel/kfmt/early"
	"github.com/blitzos/kernel/kernel/mem"
	"github.com/blitzos/kernel/kernel/mem/pmm"
)

// FrameAllocator is the kernel-wide physical frame allocator instance.
var FrameAllocator BitmapAllocator

// ErrOutOfMemory is returned by Alloc when no free frame remains.
var ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

const bitsPerWord = 64

// BitmapAllocator tracks frame reservations for every physical frame up to
// the highest address reported by the boot loader's memory map, using one
// bit per frame (1 = allocated, 0 = free).
type BitmapAllocator struct {
	totalFrames uint64
	usedFrames  uint64

	bitmap    []uint64
	bitmapHdr reflect.SliceHeader
}

// Init places the bitmap immediately after the kernel image, marks every
// frame allocated, clears the bits for frames wholly contained in an
// available memory region, then re-marks the frames occupied by the kernel
// image and by the bitmap itself as allocated.
//
// Because the boot stub identity-maps physical memory, the bitmap's
// backing storage can be addressed directly without going through the
// virtual memory mapper, which does not exist yet at this point in boot.
func (alloc *BitmapAllocator) Init(kernelEnd uintptr) *kernel.Error {
	var highestAddr uint64
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if end := region.PhysAddress + region.Length; end > highestAddr {
			highestAddr = end
		}
		return true
	})

	totalFrames := (highestAddr + uint64(mem.PageSize) - 1) >> mem.PageShift
	bitmapWords := (totalFrames + bitsPerWord - 1) / bitsPerWord
	bitmapBytes := bitmapWords * 8

	bitmapStart := (uint64(kernelEnd) + uint64(mem.PageSize) - 1) &^ (uint64(mem.PageSize) - 1)

	alloc.bitmapHdr = reflect.SliceHeader{
		Data: uintptr(bitmapStart),
		Len:  int(bitmapWords),
		Cap:  int(bitmapWords),
	}
	bitmap := *(*[]uint64)(unsafe.Pointer(&alloc.bitmapHdr))

	kernelStartFrame := uint64(0x100000) >> mem.PageShift
	kernelEndFrame := (uint64(kernelEnd) + uint64(mem.PageSize) - 1) >> mem.PageShift
	bitmapStartFrame := bitmapStart >> mem.PageShift
	bitmapEndFrame := (bitmapStart + bitmapBytes + uint64(mem.PageSize) - 1) >> mem.PageShift

	alloc.populate(bitmap, totalFrames, kernelStartFrame, kernelEndFrame, bitmapStartFrame, bitmapEndFrame)
	alloc.printStats()
	return nil
}

// populate does the actual bit twiddling for Init against an
// already-backed bitmap slice, independent of how that slice is stored.
// Kept separate from Init so tests can drive it with an ordinary Go slice
// instead of a raw-memory overlay.
func (alloc *BitmapAllocator) populate(bitmap []uint64, totalFrames, kernelStartFrame, kernelEndFrame, bitmapStartFrame, bitmapEndFrame uint64) {
	alloc.bitmap = bitmap
	alloc.totalFrames = totalFrames

	// Mark every frame allocated, then clear ones that fall in an
	// available region.
	for i := range alloc.bitmap {
		alloc.bitmap[i] = ^uint64(0)
	}
	alloc.usedFrames = totalFrames

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		startFrame := (region.PhysAddress + uint64(mem.PageSize) - 1) >> mem.PageShift
		endFrame := (region.PhysAddress + region.Length) >> mem.PageShift
		for f := startFrame; f < endFrame && f < totalFrames; f++ {
			alloc.clearBit(f)
		}
		return true
	})

	// Re-reserve the kernel image and the bitmap's own storage, which
	// both overlap regions we just freed above.
	for f := kernelStartFrame; f < kernelEndFrame; f++ {
		alloc.setBit(f)
	}
	for f := bitmapStartFrame; f < bitmapEndFrame; f++ {
		alloc.setBit(f)
	}
}

// Alloc returns the lowest-indexed free frame, marking it allocated, or
// ErrOutOfMemory if none remain. Allocated frames are not zeroed; callers
// that need zeroed memory (e.g. a fresh page table) must do so themselves.
func (alloc *BitmapAllocator) Alloc() (pmm.Frame, *kernel.Error) {
	for wordIndex, word := range alloc.bitmap {
		if word == ^uint64(0) {
			continue
		}

		for bit := 0; bit < bitsPerWord; bit++ {
			frame := uint64(wordIndex)*bitsPerWord + uint64(bit)
			if frame >= alloc.totalFrames {
				break
			}
			if word&(1<<uint(bit)) == 0 {
				alloc.setBit(frame)
				return pmm.Frame(frame), nil
			}
		}
	}

	return pmm.InvalidFrame, ErrOutOfMemory
}

// Free clears the bit for frame. Freeing a frame that is
// out-of-range or already free is a silent no-op, tolerating double-free
// the same way the heap reports but does not crash on it.
func (alloc *BitmapAllocator) Free(frame pmm.Frame) {
	f := uint64(frame)
	if f >= alloc.totalFrames || !alloc.testBit(f) {
		return
	}
	alloc.clearBit(f)
}

// UsedCount returns the number of frames currently marked allocated.
func (alloc *BitmapAllocator) UsedCount() uint64 { return alloc.usedFrames }

// TotalCount returns the total number of frames tracked by the bitmap.
func (alloc *BitmapAllocator) TotalCount() uint64 { return alloc.totalFrames }

func (alloc *BitmapAllocator) setBit(frame uint64) {
	if alloc.testBit(frame) {
		return
	}
	alloc.bitmap[frame/bitsPerWord] |= 1 << (frame % bitsPerWord)
	alloc.usedFrames++
}

func (alloc *BitmapAllocator) clearBit(frame uint64) {
	if !alloc.testBit(frame) {
		return
	}
	alloc.bitmap[frame/bitsPerWord] &^= 1 << (frame % bitsPerWord)
	alloc.usedFrames--
}

func (alloc *BitmapAllocator) testBit(frame uint64) bool {
	return alloc.bitmap[frame/bitsPerWord]&(1<<(frame%bitsPerWord)) != 0
}

func (alloc *BitmapAllocator) printStats() {
	early.Printf(
		"[pmm] frame stats: free %d/%d (%d reserved)\n",
		alloc.totalFrames-alloc.usedFrames,
		alloc.totalFrames,
		alloc.usedFrames,
	)
}

// Init sets up the kernel-wide physical memory allocator.
func Init(kernelEnd uintptr) *kernel.Error {
	return FrameAllocator.Init(kernelEnd)
}

// AllocFrame is a package-level convenience that delegates to the global
// FrameAllocator; used as the FrameAllocatorFn passed to heap.Init.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return FrameAllocator.Alloc()
}

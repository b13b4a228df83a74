// Package heap implements the kernel's general-purpose dynamic memory
// allocator: a first-fit, eagerly-coalescing allocator built on top of
// frames handed out by the physical frame allocator.
package heap

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel"
	"github.com/blitzos/kernel/kernel/kfmt/early"
	"github.com/blitzos/kernel/kernel/mem"
	"github.com/blitzos/kernel/kernel/mem/pmm"
)

// FrameAllocatorFn reserves a new physical frame to back heap expansion.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// ErrOutOfMemory is returned when the heap cannot be expanded to satisfy
// an allocation.
var ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

// errBadAlignment is returned by AllocAligned when alignment is not a
// power of two.
var errBadAlignment = &kernel.Error{Module: "heap", Message: "alignment must be a power of two"}

const (
	expandPages   = 4
	expandSize    = uint64(expandPages) * uint64(mem.PageSize)
	minBlockSize  = 16
	alignBoundary = 8
)

type blockHeader struct {
	size   uint64
	isFree bool
	next   *blockHeader
	prev   *blockHeader
}

var blockHeaderSize = uint64(unsafe.Sizeof(blockHeader{}))

// Heap is a linked list of blocks, each either free or in use, backed by
// physical frames obtained on demand.
type Heap struct {
	head       *blockHeader
	totalSize  uint64
	usedSize   uint64
	allocFrame FrameAllocatorFn
}

func alignUp(size, alignment uint64) uint64 {
	return (size + alignment - 1) &^ (alignment - 1)
}

func headerAt(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

func headerFromData(dataAddr uintptr) *blockHeader {
	return headerAt(dataAddr - uintptr(blockHeaderSize))
}

func dataAddr(h *blockHeader) uintptr {
	return uintptr(unsafe.Pointer(h)) + uintptr(blockHeaderSize)
}

// Init reserves the heap's first chunk of frames. allocFrame is retained
// for later on-demand growth.
func (h *Heap) Init(allocFrame FrameAllocatorFn) *kernel.Error {
	h.allocFrame = allocFrame

	first, err := h.expand(expandSize)
	if err != nil {
		early.Printf("[heap] failed to initialize: %s\n", err.Message)
		return err
	}

	h.head = first
	early.Printf("[heap] initialized with %d bytes\n", h.totalSize)
	return nil
}

// expand grows the heap by at least minSize bytes (rounded up to a whole
// number of pages, and to expandSize if smaller), appending a new free
// block to the end of the block list. It assumes allocFrame returns
// ascending, contiguous frames, which holds for the bitmap allocator as
// long as the region it is drawing from is unfragmented.
func (h *Heap) expand(minSize uint64) (*blockHeader, *kernel.Error) {
	size := expandSize
	if minSize > size {
		size = alignUp(minSize, uint64(mem.PageSize))
	}

	numPages := size / uint64(mem.PageSize)
	var base pmm.Frame
	for i := uint64(0); i < numPages; i++ {
		frame, err := h.allocFrame()
		if err != nil {
			early.Printf("[heap] failed to allocate page for heap expansion\n")
			return nil, err
		}
		if i == 0 {
			base = frame
		}
	}

	block := headerAt(base.Address())
	block.size = size - blockHeaderSize
	block.isFree = true
	block.next = nil
	block.prev = nil

	h.totalSize += size

	if h.head == nil {
		return block, nil
	}

	tail := h.head
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = block
	block.prev = tail

	return block, nil
}

// splitBlock carves a used region of the given size off the front of
// block, leaving the remainder as a new free block, when the remainder
// would be large enough to be worth tracking on its own.
func splitBlock(block *blockHeader, size uint64) {
	if block.size < size+blockHeaderSize+minBlockSize {
		return
	}

	remaining := block.size - size - blockHeaderSize
	block.size = size

	newBlock := headerAt(dataAddr(block) + uintptr(size))
	newBlock.size = remaining
	newBlock.isFree = true
	newBlock.next = block.next
	newBlock.prev = block

	if block.next != nil {
		block.next.prev = newBlock
	}
	block.next = newBlock
}

// coalesce merges block with an adjacent free neighbor, in both directions.
func coalesce(block *blockHeader) {
	if block.next != nil && block.next.isFree {
		block.size += blockHeaderSize + block.next.size
		block.next = block.next.next
		if block.next != nil {
			block.next.prev = block
		}
	}

	if block.prev != nil && block.prev.isFree {
		block.prev.size += blockHeaderSize + block.size
		block.prev.next = block.next
		if block.next != nil {
			block.next.prev = block.prev
		}
	}
}

// Alloc returns size bytes of memory, not zeroed, or
// ErrOutOfMemory if the heap could not be grown to satisfy the request.
// Alloc(0) returns (0, nil).
func (h *Heap) Alloc(size uint64) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, nil
	}
	size = alignUp(size, alignBoundary)

	for cur := h.head; cur != nil; cur = cur.next {
		if cur.isFree && cur.size >= size {
			splitBlock(cur, size)
			cur.isFree = false
			h.usedSize += cur.size + blockHeaderSize
			return dataAddr(cur), nil
		}
	}

	newBlock, err := h.expand(size + blockHeaderSize)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	splitBlock(newBlock, size)
	newBlock.isFree = false
	h.usedSize += newBlock.size + blockHeaderSize
	return dataAddr(newBlock), nil
}

// Free returns a block allocated by Alloc to the heap. Freeing the zero
// address is a no-op; freeing a block that is already free prints a
// warning and changes nothing.
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}

	block := headerFromData(ptr)
	if block.isFree {
		early.Printf("[heap] warning: double free detected\n")
		return
	}

	block.isFree = true
	h.usedSize -= block.size + blockHeaderSize
	coalesce(block)
}

// AllocAligned returns size bytes whose address is a multiple of
// alignment, which must be a power of two. The pointer actually handed to
// the underlying allocator is recovered from a one-word offset stored
// immediately before the address returned to the caller, so FreeAligned
// can find it again.
func (h *Heap) AllocAligned(size, alignment uint64) (uintptr, *kernel.Error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return 0, errBadAlignment
	}

	raw, err := h.Alloc(size + alignment + 8)
	if err != nil {
		return 0, err
	}

	aligned := uintptr(alignUp(uint64(raw)+8, alignment))
	*(*uint64)(unsafe.Pointer(aligned - 8)) = uint64(aligned - raw)
	return aligned, nil
}

// FreeAligned releases memory obtained from AllocAligned.
func (h *Heap) FreeAligned(ptr uintptr) {
	if ptr == 0 {
		return
	}
	offset := *(*uint64)(unsafe.Pointer(ptr - 8))
	h.Free(ptr - uintptr(offset))
}

// Stats reports the heap's current size breakdown, used for the
// diagnostic banner and for tests.
type Stats struct {
	TotalSize  uint64
	UsedSize   uint64
	FreeBlocks int
	UsedBlocks int
}

// Stats walks the block list and reports current heap usage.
func (h *Heap) Stats() Stats {
	s := Stats{TotalSize: h.totalSize, UsedSize: h.usedSize}
	for cur := h.head; cur != nil; cur = cur.next {
		if cur.isFree {
			s.FreeBlocks++
		} else {
			s.UsedBlocks++
		}
	}
	return s
}

// PrintStats writes a human-readable heap usage banner via early.Printf.
func (h *Heap) PrintStats() {
	s := h.Stats()
	early.Printf("[heap] total %d used %d free %d (blocks: %d used, %d free)\n",
		s.TotalSize, s.UsedSize, s.TotalSize-s.UsedSize, s.UsedBlocks, s.FreeBlocks)
}

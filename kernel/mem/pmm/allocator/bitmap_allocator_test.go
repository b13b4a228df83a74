package allocator

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/blitzos/kernel/kernel/hal/multiboot"
	"github.com/blitzos/kernel/kernel/mem/pmm"
)

// buildTestBlob assembles a Multiboot2 info blob with a single memory-map
// tag describing one 16-frame available region followed by one reserved
// region, mirroring the fixture technique used by the multiboot package's
// own tests.
func buildTestBlob() []byte {
	var buf []byte
	put32 := func(v uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	put64 := func(v uint64) {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}

	put32(0) // total_size placeholder
	put32(0) // reserved

	// memory map tag: one available region [0, 16 frames), one reserved
	// region [16, 24 frames).
	put32(6) // tagMemoryMap
	put32(16 + 2*24)
	put32(24)
	put32(0)
	put64(0)
	put64(16 * 4096)
	put32(uint32(multiboot.MemAvailable))
	put32(0)
	put64(16 * 4096)
	put64(8 * 4096)
	put32(uint32(multiboot.MemReserved))
	put32(0)

	put32(0) // end tag type
	put32(8) // end tag size

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	return buf
}

func TestBitmapAllocatorAllocFree(t *testing.T) {
	blob := buildTestBlob()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&blob[0])))

	var alloc BitmapAllocator
	bitmap := make([]uint64, 1)
	// 24 total frames, frames [0,4) reserved as "kernel", frames [20,24)
	// reserved as "bitmap storage", leaving [4,16) free (12 frames).
	alloc.populate(bitmap, 24, 0, 4, 20, 24)

	if got := alloc.TotalCount(); got != 24 {
		t.Fatalf("expected 24 total frames; got %d", got)
	}

	freeBefore := alloc.TotalCount() - alloc.UsedCount()
	if freeBefore != 12 {
		t.Fatalf("expected 12 free frames; got %d", freeBefore)
	}

	f, err := alloc.Alloc()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != pmm.Frame(4) {
		t.Fatalf("expected first-fit to return frame 4; got %d", f)
	}

	if freeAfter := alloc.TotalCount() - alloc.UsedCount(); freeAfter != freeBefore-1 {
		t.Fatalf("expected free count to drop by one; got %d", freeAfter)
	}

	alloc.Free(f)
	if freeAfter := alloc.TotalCount() - alloc.UsedCount(); freeAfter != freeBefore {
		t.Fatalf("expected free count restored after Free; got %d", freeAfter)
	}

	// Double-free and out-of-range free must be silent no-ops.
	alloc.Free(f)
	alloc.Free(pmm.Frame(9999))
	if freeAfter := alloc.TotalCount() - alloc.UsedCount(); freeAfter != freeBefore {
		t.Fatalf("expected double-free to be a no-op; got %d", freeAfter)
	}
}

func TestBitmapAllocatorExhaustion(t *testing.T) {
	blob := buildTestBlob()
	multiboot.SetInfoPtr(uintptr(unsafe.Pointer(&blob[0])))

	var alloc BitmapAllocator
	bitmap := make([]uint64, 1)
	// Only frame 5 is free.
	alloc.populate(bitmap, 8, 0, 5, 6, 8)

	f, err := alloc.Alloc()
	if err != nil {
		t.Fatalf("unexpected error allocating the only free frame: %v", err)
	}
	if f != pmm.Frame(5) {
		t.Fatalf("expected frame 5; got %d", f)
	}

	if _, err := alloc.Alloc(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory once exhausted; got %v", err)
	}
}

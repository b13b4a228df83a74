// Package multiboot parses the tagged information blob a Multiboot2-
// compliant loader hands to the kernel entry point.
package multiboot

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel"
)

// Magic is the value the loader must leave in the magic register for the
// boot-info blob to be considered valid.
const Magic = 0x36d76289

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the header that precedes the tag sequence.
type info struct {
	totalSize uint32
	reserved  uint32
}

// tagHeader precedes every tag; size includes the header but not padding.
// Each tag starts at an 8-byte aligned offset.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// mmapHeader precedes the array of MemoryMapEntry values in the memory-map
// tag.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// basicMemInfo mirrors the basic-memory-info tag payload.
type basicMemInfo struct {
	LowerKB uint32
	UpperKB uint32
}

// MemoryEntryType classifies a MemoryMapEntry.
type MemoryEntryType uint32

// The memory region classifications defined by the Multiboot2 spec.
const (
	MemAvailable MemoryEntryType = iota + 1
	MemReserved
	MemAcpiReclaimable
	MemNvs

	// memUnknown and anything at or above it is folded into MemReserved.
	memUnknown
)

// MemoryMapEntry describes one physical memory region.
type MemoryMapEntry struct {
	PhysAddress uint64
	Length      uint64
	Type        MemoryEntryType
	reserved    uint32
}

// FramebufferInfo describes the framebuffer set up by the loader.
type FramebufferInfo struct {
	PhysAddr uint64
	Pitch    uint32
	Width    uint32
	Height   uint32
	Bpp      uint8
}

var infoData uintptr

// ErrBadMagic is returned by CheckMagic when the boot stub's magic value
// does not match the documented Multiboot2 constant.
var ErrBadMagic = &kernel.Error{Module: "multiboot", Message: "bad boot magic value"}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region; it
// returns true to keep scanning or false to stop early.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr records the physical address of the boot-info blob. Must be
// called before any other function in this package, and after validating
// the magic value with CheckMagic.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// CheckMagic verifies that magic matches the documented Multiboot2 constant.
func CheckMagic(magic uint32) *kernel.Error {
	if magic != Magic {
		return ErrBadMagic
	}
	return nil
}

// VisitMemRegions invokes visitor once per memory-map entry reported by the
// loader. Unknown entry types are normalized to MemReserved before the
// visitor sees them.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry *MemoryMapEntry
	for curPtr != endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// BasicMemory returns the lower/upper KiB counts reported by the
// basic-memory-info tag, and false if the tag is absent.
func BasicMemory() (lowerKB, upperKB uint32, ok bool) {
	curPtr, size := findTagByType(tagBasicMemoryInfo)
	if size == 0 {
		return 0, 0, false
	}

	bmi := (*basicMemInfo)(unsafe.Pointer(curPtr))
	return bmi.LowerKB, bmi.UpperKB, true
}

// BootLoaderName returns the loader-supplied name string, if present.
func BootLoaderName() (string, bool) {
	curPtr, size := findTagByType(tagBootLoaderName)
	if size == 0 {
		return "", false
	}

	raw := *(*[]byte)(unsafe.Pointer(&sliceHeader{Data: curPtr, Len: int(size), Cap: int(size)}))
	// The payload is a NUL-terminated string; trim at the terminator.
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i]), true
		}
	}
	return string(raw), true
}

// GetFramebufferInfo returns the framebuffer set up by the loader, or nil
// if no framebuffer tag is present.
func GetFramebufferInfo() *FramebufferInfo {
	curPtr, size := findTagByType(tagFramebufferInfo)
	if size == 0 {
		return nil
	}
	return (*FramebufferInfo)(unsafe.Pointer(curPtr))
}

// findTagByType scans the tag sequence for the first tag of the given type,
// returning a pointer to its payload (past the 8-byte header) and the
// payload length. Returns (0, 0) if no such tag exists.
func findTagByType(tt tagType) (uintptr, uint32) {
	var hdr *tagHeader

	curPtr := infoData + 8
	for hdr = (*tagHeader)(unsafe.Pointer(curPtr)); hdr.tagType != tagMbSectionEnd; hdr = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if hdr.tagType == tt {
			return curPtr + 8, hdr.size - 8
		}

		// Tags are 8-byte aligned.
		curPtr += uintptr((hdr.size + 7) &^ 7)
	}

	return 0, 0
}

// sliceHeader mirrors reflect.SliceHeader; defined locally so this file
// only needs unsafe, not unsafe+reflect.
type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

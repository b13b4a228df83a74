package multiboot

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// buildInfoBlob assembles a minimal, well-formed Multiboot2 info blob
// containing a bootloader-name tag, a basic-memory-info tag and a
// memory-map tag with two entries, terminated by the end tag.
func buildInfoBlob() []byte {
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
	align8 := func() {
		for len(buf)%8 != 0 {
			buf = append(buf, 0)
		}
	}

	// info header: total_size placeholder, reserved
	put32(0)
	put32(0)

	// bootloader name tag: type=2, size=8+len("go")+1=11 -> pad to 16
	name := "go\x00"
	put32(uint32(tagBootLoaderName))
	put32(uint32(8 + len(name)))
	buf = append(buf, name...)
	align8()

	// basic memory info tag: type=4, size=16
	put32(uint32(tagBasicMemoryInfo))
	put32(16)
	put32(640)   // lower KB
	put32(65536) // upper KB

	// memory map tag: type=6, size = 16(header+mmapHeader) + 2*24
	put32(uint32(tagMemoryMap))
	put32(16 + 2*24)
	put32(24) // entry size
	put32(0)  // entry version
	put64(0)
	put64(0x100000)
	put32(uint32(MemAvailable))
	put32(0)
	put64(0x100000)
	put64(0x1000)
	put32(9999) // unknown type, should normalize to MemReserved
	put32(0)

	// end tag: type=0, size=8
	put32(0)
	put32(8)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	return buf
}

func TestCheckMagic(t *testing.T) {
	if err := CheckMagic(Magic); err != nil {
		t.Fatalf("expected correct magic to pass; got %v", err)
	}
	if err := CheckMagic(0xdeadbeef); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic for bad magic; got %v", err)
	}
}

func TestBootLoaderName(t *testing.T) {
	blob := buildInfoBlob()
	SetInfoPtr(uintptr(unsafe.Pointer(&blob[0])))

	name, ok := BootLoaderName()
	if !ok {
		t.Fatal("expected bootloader name tag to be present")
	}
	if name != "go" {
		t.Fatalf("expected bootloader name %q; got %q", "go", name)
	}
}

func TestBasicMemory(t *testing.T) {
	blob := buildInfoBlob()
	SetInfoPtr(uintptr(unsafe.Pointer(&blob[0])))

	lower, upper, ok := BasicMemory()
	if !ok {
		t.Fatal("expected basic memory info tag to be present")
	}
	if lower != 640 || upper != 65536 {
		t.Fatalf("expected (640, 65536); got (%d, %d)", lower, upper)
	}
}

func TestVisitMemRegionsNormalizesUnknownType(t *testing.T) {
	blob := buildInfoBlob()
	SetInfoPtr(uintptr(unsafe.Pointer(&blob[0])))

	var seen []MemoryMapEntry
	VisitMemRegions(func(e *MemoryMapEntry) bool {
		seen = append(seen, *e)
		return true
	})

	if len(seen) != 2 {
		t.Fatalf("expected 2 memory map entries; got %d", len(seen))
	}
	if seen[0].Type != MemAvailable {
		t.Fatalf("expected first entry to be MemAvailable; got %d", seen[0].Type)
	}
	if seen[1].Type != MemReserved {
		t.Fatalf("expected unknown type to normalize to MemReserved; got %d", seen[1].Type)
	}
}

func TestVisitMemRegionsMissingTag(t *testing.T) {
	// A blob with only the end tag has no memory map.
	var buf []byte
	put32 := func(v uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	put32(16)
	put32(0)
	put32(0)
	put32(8)

	SetInfoPtr(uintptr(unsafe.Pointer(&buf[0])))

	visited := false
	VisitMemRegions(func(e *MemoryMapEntry) bool {
		visited = true
		return true
	})
	if visited {
		t.Fatal("expected no regions to be visited when the memory map tag is absent")
	}
}

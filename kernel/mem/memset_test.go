package mem

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// A zero-size memset must be a no-op.
	Memset(uintptr(0), 0x00, 0)

	buf := make([]byte, 37)
	for i := range buf {
		buf[i] = 0xFE
	}

	Memset(uintptr(unsafe.Pointer(&buf[0])), 0xAB, Size(len(buf)))

	for i, b := range buf {
		if b != 0xAB {
			t.Errorf("expected byte %d to be 0xAB; got 0x%x", i, b)
		}
	}
}

func TestMemcopy(t *testing.T) {
	src := []byte("the quick brown fox")
	dst := make([]byte, len(src))

	Memcopy(uintptr(unsafe.Pointer(&src[0])), uintptr(unsafe.Pointer(&dst[0])), Size(len(src)))

	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("expected dst[%d] = %q; got %q", i, src[i], dst[i])
		}
	}
}

package keyboard

import "testing"

func TestFeedPressAndRelease(t *testing.T) {
	d := New()
	d.Feed(0x1E) // press a
	if !d.HasInput() {
		t.Fatal("expected a pending character after pressing 'a'")
	}
	if got := d.GetChar(); got != 'a' {
		t.Fatalf("got %q, want 'a'", got)
	}
}

func TestFeedModifiersDoNotEnqueue(t *testing.T) {
	d := New()
	d.Feed(keyLShift)
	d.Feed(keyLShift | 0x80)
	d.Feed(keyLCtrl)
	d.Feed(keyLAlt)
	if d.HasInput() {
		t.Fatal("modifier-only scancodes must not produce characters")
	}
}

// TestScancodeSequence replays [press a, press b, press c, release a,
// press shift, press a, release shift] and expects 'a', 'b', 'c', 'A'.
func TestScancodeSequence(t *testing.T) {
	d := New()
	seq := []byte{0x1E, 0x30, 0x2E, 0x9E, 0x2A, 0x1E, 0xAA}
	for _, sc := range seq {
		d.Feed(sc)
	}

	want := "abcA"
	for i := 0; i < len(want); i++ {
		if !d.HasInput() {
			t.Fatalf("expected more input at index %d", i)
		}
		if got := d.GetChar(); got != want[i] {
			t.Fatalf("char %d: got %q, want %q", i, got, want[i])
		}
	}
	if d.HasInput() {
		t.Fatal("expected buffer to be drained")
	}
}

func TestShiftedSymbol(t *testing.T) {
	d := New()
	d.Feed(keyLShift)
	d.Feed(0x02) // '1' unshifted, '!' shifted
	if got := d.GetChar(); got != '!' {
		t.Fatalf("got %q, want '!'", got)
	}
}

func TestRingBufferFullDropsExcess(t *testing.T) {
	var rb RingBuffer
	for i := 0; i < bufferSize+10; i++ {
		rb.push('x')
	}
	count := 0
	for !rb.Empty() {
		rb.Pop()
		count++
	}
	if count != bufferSize-1 {
		t.Fatalf("expected %d characters retained (one slot sacrificed), got %d", bufferSize-1, count)
	}
}

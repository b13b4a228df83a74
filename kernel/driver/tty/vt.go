// Package tty implements a minimal line-discipline terminal layered over a
// text-mode console device.
package tty

import "github.com/blitzos/kernel/kernel/driver/video/console"

const (
	defaultFg = console.LightGrey
	defaultBg = console.Black
	tabWidth  = 4
)

// Vt implements a simple terminal that understands CR, LF, tab and
// backspace. It writes through a concrete *console.Vga rather than the
// Console interface: before the heap exists, interface dispatch through an
// itable is something we would rather not depend on, and this kernel only
// ever has one physical console.
type Vt struct {
	cons *console.Vga

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr console.Attr
}

// AttachTo links the terminal with the specified console device and adopts
// its dimensions.
func (t *Vt) AttachTo(cons *console.Vga) {
	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.curX, t.curY = 0, 0
	t.curAttr = makeAttr(defaultFg, defaultBg)
}

// Clear clears the terminal and homes the cursor.
func (t *Vt) Clear() {
	t.clear()
	t.curX, t.curY = 0, 0
}

// Position returns the current cursor position (x, y).
func (t *Vt) Position() (uint16, uint16) {
	return t.curX, t.curY
}

// SetPosition moves the cursor, clamping to the visible area.
func (t *Vt) SetPosition(x, y uint16) {
	if x >= t.width {
		x = t.width - 1
	}
	if y >= t.height {
		y = t.height - 1
	}
	t.curX, t.curY = x, y
}

// SetForeground changes the foreground color used by subsequent writes.
func (t *Vt) SetForeground(fg console.Attr) {
	t.curAttr = makeAttr(fg, t.curAttr>>4)
}

// Write implements io.Writer.
func (t *Vt) Write(data []byte) (int, error) {
	for _, b := range data {
		t.WriteByte(b)
	}
	return len(data), nil
}

// WriteByte implements io.ByteWriter. Bytes written before AttachTo has
// linked a console are dropped.
func (t *Vt) WriteByte(b byte) error {
	if t.cons == nil {
		return nil
	}

	switch b {
	case '\r':
		t.cr()
	case '\n':
		t.cr()
		t.lf()
	case '\b':
		if t.curX > 0 {
			t.curX--
			t.cons.Write(' ', t.curAttr, t.curX, t.curY)
		}
	case '\t':
		spaces := tabWidth - (t.curX % tabWidth)
		for i := uint16(0); i < spaces; i++ {
			t.cons.Write(' ', t.curAttr, t.curX, t.curY)
			t.curX++
			if t.curX == t.width {
				t.cr()
				t.lf()
			}
		}
	default:
		t.cons.Write(b, t.curAttr, t.curX, t.curY)
		t.curX++
		if t.curX == t.width {
			t.cr()
			t.lf()
		}
	}

	return nil
}

// WriteString writes a NUL-terminated or fixed-length run of bytes using
// the given foreground color without disturbing the terminal's default
// color, as used by the WRITE syscall for stdout/stderr.
func (t *Vt) WriteString(s []byte, fg console.Attr) int {
	saved := t.curAttr
	t.curAttr = makeAttr(fg, saved>>4)

	n := 0
	for _, b := range s {
		if b == 0 {
			break
		}
		t.WriteByte(b)
		n++
	}

	t.curAttr = saved
	return n
}

func (t *Vt) clear() {
	t.cons.Clear(0, 0, t.width, t.height)
}

// FillScreen overwrites every cell with a blank character in the given
// background color, without moving the cursor. Used by display effects
// (screen blink) that flash the whole console rather than print through it.
func (t *Vt) FillScreen(bg console.Attr) {
	attr := makeAttr(defaultFg, bg)
	for y := uint16(0); y < t.height; y++ {
		for x := uint16(0); x < t.width; x++ {
			t.cons.Write(' ', attr, x, y)
		}
	}
}

func (t *Vt) cr() {
	t.curX = 0
}

func (t *Vt) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}

	t.cons.Scroll(console.Up, 1)
}

func makeAttr(fg, bg console.Attr) console.Attr {
	return (bg << 4) | (fg & 0xF)
}

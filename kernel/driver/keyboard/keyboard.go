// Package keyboard decodes scancode set 1 from the PS/2 keyboard controller
// into ASCII and feeds typed characters into a fixed-capacity ring buffer
// for blocking readers.
package keyboard

import "github.com/blitzos/kernel/kernel/cpu"

const (
	dataPort   = 0x60
	statusPort = 0x64

	statusOutputFull = 0x01
)

const (
	keyLCtrl  = 0x1D
	keyLShift = 0x2A
	keyRShift = 0x36
	keyLAlt   = 0x38
)

const bufferSize = 256

// usLayout maps an unshifted scancode to its ASCII character; 0 means the
// key has no printable mapping.
var usLayout = [128]byte{
	0x00: 0, 0x01: 27, 0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0', 0x0C: '-', 0x0D: '=',
	0x0E: '\b', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y', 0x16: 'u',
	0x17: 'i', 0x18: 'o', 0x19: 'p', 0x1A: '[', 0x1B: ']', 0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h', 0x24: 'j',
	0x25: 'k', 0x26: 'l', 0x27: ';', 0x28: '\'', 0x29: '`',
	0x2B: '\\', 0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b', 0x31: 'n',
	0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
	0x37: '*',
	0x39: ' ',
	0x4A: '-',
	0x4E: '+',
}

// usShifted maps an unshifted scancode to its shifted ASCII character.
var usShifted = [128]byte{
	0x01: 27, 0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%', 0x07: '^',
	0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')', 0x0C: '_', 0x0D: '+', 0x0E: '\b',
	0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T', 0x15: 'Y', 0x16: 'U',
	0x17: 'I', 0x18: 'O', 0x19: 'P', 0x1A: '{', 0x1B: '}', 0x1C: '\n',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G', 0x23: 'H', 0x24: 'J',
	0x25: 'K', 0x26: 'L', 0x27: ':', 0x28: '"', 0x29: '~',
	0x2B: '|', 0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B', 0x31: 'N',
	0x32: 'M', 0x33: '<', 0x34: '>', 0x35: '?',
	0x37: '*',
	0x39: ' ',
}

// modifiers tracks the currently held shift/ctrl/alt keys.
type modifiers struct {
	shift bool
	ctrl  bool
	alt   bool
}

// RingBuffer is a fixed-capacity character queue with one slot sacrificed
// to distinguish full from empty.
type RingBuffer struct {
	buf   [bufferSize]byte
	read  uint16
	write uint16
}

func (r *RingBuffer) push(c byte) {
	next := (r.write + 1) % bufferSize
	if next == r.read {
		return
	}
	r.buf[r.write] = c
	r.write = next
}

// Empty reports whether the buffer has no pending characters.
func (r *RingBuffer) Empty() bool { return r.read == r.write }

// Pop removes and returns the oldest pending character. Pop must not be
// called on an empty buffer.
func (r *RingBuffer) Pop() byte {
	c := r.buf[r.read]
	r.read = (r.read + 1) % bufferSize
	return c
}

// Driver owns modifier state and the character ring buffer fed by the
// IRQ1 top half.
type Driver struct {
	mods modifiers
	buf  RingBuffer
}

var inbFn = cpu.Inb
var haltFn = cpu.Halt

// New returns a Driver ready to receive scancodes.
func New() *Driver {
	return &Driver{}
}

// Init drains any scancode left pending in the controller's output buffer
// from before the driver was installed.
func (d *Driver) Init() {
	for inbFn(statusPort)&statusOutputFull != 0 {
		inbFn(dataPort)
	}
}

// HandleIRQ is the IRQ1 top half: it reads one scancode from the data port
// and decodes it. Register it with irq.Handle(1, ...).
func (d *Driver) HandleIRQ() {
	d.Feed(inbFn(dataPort))
}

// Feed decodes a single scancode, updating modifier state or pushing a
// decoded character into the ring buffer. Split out from HandleIRQ so
// scancode sequences can be replayed without real hardware.
func (d *Driver) Feed(scancode byte) {
	released := scancode&0x80 != 0
	code := scancode &^ 0x80

	switch code {
	case keyLShift, keyRShift:
		d.mods.shift = !released
		return
	case keyLCtrl:
		d.mods.ctrl = !released
		return
	case keyLAlt:
		d.mods.alt = !released
		return
	}

	if released {
		return
	}

	var c byte
	if d.mods.shift {
		c = usShifted[code]
	} else {
		c = usLayout[code]
	}
	if c != 0 {
		d.buf.push(c)
	}
}

// HasInput reports whether a decoded character is waiting.
func (d *Driver) HasInput() bool { return !d.buf.Empty() }

// GetChar blocks, halting the CPU between interrupts, until a character is
// available, then returns it.
func (d *Driver) GetChar() byte {
	for d.buf.Empty() {
		haltFn()
	}
	return d.buf.Pop()
}

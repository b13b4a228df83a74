package console

import (
	"reflect"
	"unsafe"
)

const (
	clearColor = Black
	clearChar  = byte(' ')

	// vgaPhysAddr is the fixed physical address of the 80x25 text-mode
	// framebuffer.
	vgaPhysAddr = uintptr(0xB8000)

	vgaWidth  = uint16(80)
	vgaHeight = uint16(25)
)

// Vga implements the Console interface over the standard 80x25 VGA
// text-mode framebuffer located at a fixed physical address. Since the
// boot stub identity-maps physical memory, the framebuffer's physical
// address doubles as a valid kernel virtual address.
type Vga struct {
	width  uint16
	height uint16

	fb []uint16
}

// Init sets up the console by overlaying a slice over the framebuffer's
// fixed physical address.
func (cons *Vga) Init() {
	if cons.fb != nil {
		return
	}

	cons.width = vgaWidth
	cons.height = vgaHeight

	cons.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(cons.width) * int(cons.height),
		Cap:  int(cons.width) * int(cons.height),
		Data: vgaPhysAddr,
	}))
}

// Dimensions returns the console width and height in characters.
func (cons *Vga) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Clear clears the specified rectangular region.
func (cons *Vga) Clear(x, y, width, height uint16) {
	var (
		attr                 = uint16(clearColor) << 8
		clr                  = attr | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}
	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll shifts the console contents by lines rows in the given direction.
func (cons *Vga) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint16
	offset := lines * cons.width

	switch dir {
	case Up:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
		cons.Clear(0, cons.height-lines, cons.width, lines)
	case Down:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
		cons.Clear(0, 0, cons.width, lines)
	}
}

// Write draws a single character cell at (x, y).
func (cons *Vga) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.fb[(y*cons.width)+x] = (uint16(attr) << 8) | uint16(ch)
}

// Package console implements text-mode video console drivers.
package console

// Attr defines a color attribute.
type Attr uint8

// The set of foreground/background colors supported by the VGA text-mode
// palette.
const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

// ScrollDir defines a scroll direction.
type ScrollDir uint8

// The supported scroll directions for Console.Scroll calls.
const (
	Up ScrollDir = iota
	Down
)

// Console is implemented by objects that can drive a physical text-mode
// display.
type Console interface {
	// Dimensions returns the width and height of the console in
	// character cells.
	Dimensions() (uint16, uint16)

	// Clear clears the specified rectangular region.
	Clear(x, y, width, height uint16)

	// Scroll shifts the console contents by lines rows in the given
	// direction.
	Scroll(dir ScrollDir, lines uint16)

	// Write draws a single character cell at (x, y).
	Write(ch byte, attr Attr, x, y uint16)
}

// Package hal wires together the concrete device drivers used by the rest
// of the kernel before more general abstractions (interfaces, the heap)
// are available.
package hal

import (
	"github.com/blitzos/kernel/kernel/driver/tty"
	"github.com/blitzos/kernel/kernel/driver/video/console"
)

var (
	vga = &console.Vga{}

	// ActiveTerminal is the terminal used by kfmt/early and by the WRITE
	// syscall. It is a package-wide singleton: this kernel never has more
	// than one physical console.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal brings up the VGA console and attaches the terminal to it so
// that early diagnostics can be printed before any other subsystem exists.
func InitTerminal() {
	vga.Init()
	ActiveTerminal.AttachTo(vga)
}

// Package kernel contains types shared across the entire kernel core as well
// as the top-level entry point invoked by the boot stub.
package kernel

// Error describes a kernel error. All kernel errors are defined as pointers
// to this structure rather than created via errors.New since the Go
// allocator is not guaranteed to be available at the point an error needs
// to be constructed (e.g. while bringing up the frame allocator itself).
type Error struct {
	// Module is the subsystem that generated the error.
	Module string

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

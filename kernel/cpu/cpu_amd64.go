// Package cpu exposes the small set of privileged x86-64 operations that
// cannot be expressed in portable Go: interrupt flag control, port I/O, TLB
// and control-register access, and descriptor-table loads. Each function
// below is implemented in cpu_amd64.s.
package cpu

// EnableInterrupts sets the CPU's interrupt-enable flag (sti).
func EnableInterrupts()

// DisableInterrupts clears the CPU's interrupt-enable flag (cli).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (hlt). Callers
// that want to block until some condition holds must call Halt in a loop.
func Halt()

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// FlushTLBEntry invalidates the TLB entry for the given virtual address
// (invlpg).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads the given physical address into cr3, which implicitly
// flushes all non-global TLB entries.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in cr3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded by the CPU for the most
// recent page fault.
func ReadCR2() uintptr

// LoadIDT loads the interrupt descriptor table register (lidt) from a
// 10-byte pseudo-descriptor {limit uint16, base uint64} at descPtr.
func LoadIDT(descPtr uintptr)

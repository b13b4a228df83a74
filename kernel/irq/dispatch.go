package irq

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel/cpu"
	"github.com/blitzos/kernel/kernel/kfmt/early"
)

// exceptionMessages names CPU exceptions 0-31, in vector order.
var exceptionMessages = [32]string{
	"Division By Zero", "Debug", "Non Maskable Interrupt", "Breakpoint",
	"Into Detected Overflow", "Out of Bounds", "Invalid Opcode", "No Coprocessor",
	"Double Fault", "Coprocessor Segment Overrun", "Bad TSS", "Segment Not Present",
	"Stack Fault", "General Protection Fault", "Page Fault", "Unknown Interrupt",
	"Coprocessor Fault", "Alignment Check", "Machine Check", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
}

// IRQHandlerFn is invoked for a hardware IRQ with its saved frame.
type IRQHandlerFn func(frame *Frame)

// irqHandlers holds the top-half handler registered for each of IRQ0-15;
// a nil entry is silently ignored.
var irqHandlers [16]IRQHandlerFn

// Handle registers fn as the top-half handler for the given IRQ line.
func Handle(irqNum uint8, fn IRQHandlerFn) {
	irqHandlers[irqNum] = fn
}

// haltFn is overridden in tests so exception dispatch doesn't actually
// stop the (host) process.
var haltFn = cpu.Halt

// exceptionDispatch is called by the shared exception entry stub with a
// pointer to the frame it built on the current stack. CPU exceptions are
// unrecoverable in this kernel: it prints a banner and halts.
//
//go:nosplit
func exceptionDispatch(framePtr uintptr) {
	frame := (*Frame)(unsafe.Pointer(framePtr))

	name := "Unknown"
	if frame.Vector < uint64(len(exceptionMessages)) {
		name = exceptionMessages[frame.Vector]
	}

	early.Printf("[irq] exception: %s\n", name)
	frame.Print()

	for {
		haltFn()
	}
}

// irqDispatch is called by the shared IRQ entry stub with the IRQ line
// number (already translated from the raw vector) and a pointer to the
// saved frame. It runs the registered top-half handler, if any, then
// acknowledges the PIC.
//
//go:nosplit
func irqDispatch(irqNum uint64, framePtr uintptr) {
	frame := (*Frame)(unsafe.Pointer(framePtr))

	if h := irqHandlers[irqNum]; h != nil {
		h(frame)
	}

	sendEOI(uint8(irqNum))
}

// SyscallFn, when set, is invoked on vector 0x80 with the six
// register-passed arguments (num=Rax, then Rbx, Rcx, Rdx, Rsi, Rdi) and
// returns the value that gets written back into the frame's Rax slot
// before it resumes, becoming the syscall's return value to the caller.
var SyscallFn func(num, a, b, c, d, e uint64) uint64

// syscallDispatch is called by the syscall entry stub. A nil SyscallFn
// (the gateway not wired up yet) yields -1, matching UnknownSyscall.
//
//go:nosplit
func syscallDispatch(framePtr uintptr) {
	frame := (*Frame)(unsafe.Pointer(framePtr))

	if SyscallFn == nil {
		frame.Regs.Rax = ^uint64(0)
		return
	}
	frame.Regs.Rax = SyscallFn(frame.Regs.Rax, frame.Regs.Rbx, frame.Regs.Rcx, frame.Regs.Rdx, frame.Regs.Rsi, frame.Regs.Rdi)
}

// TickFn, when set, runs once per timer interrupt before PreemptFn is
// consulted, independently of whether that tick ends up causing a context
// switch. pit.HandleIRQ is wired in here so its own tick counter advances
// on every IRQ0, since IRQ0 bypasses the irqHandlers table entirely.
var TickFn func()

// PreemptFn, when set, is invoked on every timer tick with the address of
// the interrupted frame and returns the frame to resume from, letting it
// differ from the one that was interrupted. A nil PreemptFn means no
// scheduler is wired up yet: the tick is acknowledged and control returns
// to whatever was interrupted.
var PreemptFn func(framePtr uintptr) uintptr

// preemptDispatch is called by the dedicated timer entry stub instead of
// irqDispatch, since a context switch needs to hand back a (possibly
// different) stack pointer rather than always resuming the one it was
// called on.
//
//go:nosplit
func preemptDispatch(framePtr uintptr) uintptr {
	// EOI goes out before any possible switch, so the next tick can land
	// on whichever process ends up running.
	sendEOI(0)

	if TickFn != nil {
		TickFn()
	}

	if PreemptFn == nil {
		return framePtr
	}
	return PreemptFn(framePtr)
}

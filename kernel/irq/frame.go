package irq

import "github.com/blitzos/kernel/kernel/kfmt/early"

// Regs is the general-purpose register snapshot saved by an interrupt
// entry stub, in the order process.c's saved-context struct uses.
type Regs struct {
	Rax, Rbx, Rcx, Rdx uint64
	Rsi, Rdi           uint64
	Rbp, Rsp           uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Frame is the full interrupt stack layout an entry stub hands to its Go
// handler: the saved GP registers, the vector/error-code pushed by the
// stub itself, and the hardware-pushed iretq fields.
type Frame struct {
	Regs

	Vector    uint64
	ErrorCode uint64

	Rip    uint64
	CS     uint64
	RFlags uint64
	UserSP uint64
	SS     uint64
}

// Print writes a diagnostic dump of the frame, used by the exception
// handler's panic banner.
func (f *Frame) Print() {
	early.Printf("vector=%d error=%x rip=%x cs=%x rflags=%x\n", f.Vector, f.ErrorCode, f.Rip, f.CS, f.RFlags)
	early.Printf("rax=%x rbx=%x rcx=%x rdx=%x rsi=%x rdi=%x\n", f.Rax, f.Rbx, f.Rcx, f.Rdx, f.Rsi, f.Rdi)
	early.Printf("rbp=%x rsp=%x r8=%x r9=%x r10=%x r11=%x\n", f.Rbp, f.Rsp, f.R8, f.R9, f.R10, f.R11)
	early.Printf("r12=%x r13=%x r14=%x r15=%x\n", f.R12, f.R13, f.R14, f.R15)
}

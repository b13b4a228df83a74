package proc

// resumeContext installs sp as the stack pointer, pops the saved general
// purpose registers an irq.Frame placed there, then executes iretq. It
// never returns to its caller: control resumes wherever that frame's
// rip/cs/rflags/rsp/ss say it should. Used both to start the very first
// process and, from switchContext, to resume whichever process cooperative
// scheduling picked next.
func resumeContext(sp uintptr)

// switchContext fabricates an irq.Frame-shaped record for the caller's own
// context (real rflags/cs/ss/rsp/rip and the System V callee-saved
// registers; the caller-saved registers are zeroed, since nothing may
// depend on them surviving a call), stores its address through saveSlot,
// then resumes resumeSP via the same pop/iretq sequence resumeContext
// uses. A stack swap across an ordinary call boundary has no portable Go
// representation, hence the assembly.
func switchContext(saveSlot *uintptr, resumeSP uintptr)

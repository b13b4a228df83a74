// Package proc implements the ready-queue, process control blocks and
// round-robin preemptive scheduler that run kernel-mode processes on top
// of the interrupt layer.
package proc

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel"
	"github.com/blitzos/kernel/kernel/irq"
	"github.com/blitzos/kernel/kernel/kfmt/early"
	"github.com/blitzos/kernel/kernel/mem/heap"
)

// State is a PCB's position in the process lifecycle.
type State uint8

const (
	Ready State = iota
	Running
	Waiting
	Sleeping
	Terminated
)

const (
	MaxProcesses    = 256
	StackSize       = 8192
	DefaultPriority = 128

	// TimeSliceTicks is 200ms at the 100Hz tick rate pit programs.
	TimeSliceTicks = 20
)

var (
	ErrTooManyProcesses = &kernel.Error{Module: "proc", Message: "too many processes"}
	ErrOutOfMemory      = &kernel.Error{Module: "proc", Message: "allocation failed while creating process"}
)

// PCB is a process control block: all kernel-visible state of one process.
type PCB struct {
	Pid, ParentPid uint32
	Name           string
	State          State

	// SavedSP points at the bottommost saved register of an irq.Frame on
	// this process's kernel stack: the address resumeContext or an iretq
	// restores from the next time this process runs.
	SavedSP uintptr

	KernelStackBase, KernelStackTop uintptr
	UserStackBase, UserStackTop     uintptr

	// PageTableRoot is always 0: processes share the kernel address space.
	PageTableRoot uintptr

	Priority           uint32
	TimeSliceRemaining uint32
	TotalTicks         uint32
	WakeTick           uint64

	next, prev *PCB
}

// heapAllocFn/heapFreeFn and codeSelector/dataSelector are set by Init so
// process creation can be exercised against a fake allocator in tests.
var heapAllocFn func(size uint64) (uintptr, *kernel.Error)
var heapFreeFn func(ptr uintptr)
var codeSelector, dataSelector uint16

// Init wires the package to a heap and the GDT selectors the initial
// interrupt frame must carry.
func Init(h *heap.Heap, codeSel, dataSel uint16) {
	heapAllocFn = h.Alloc
	heapFreeFn = h.Free
	codeSelector = codeSel
	dataSelector = dataSel
	irq.PreemptFn = sched.PreemptHandler
}

// Create allocates a PCB and two 8KiB stacks, builds the initial interrupt
// frame so the first dispatch into this process lands directly on entry
// with interrupts enabled, and enqueues it Ready.
func Create(name string, entry uintptr, priority uint32) (*PCB, *kernel.Error) {
	if sched.processCount >= MaxProcesses {
		return nil, ErrTooManyProcesses
	}

	kstack, err := heapAllocFn(StackSize)
	if err != nil {
		return nil, ErrOutOfMemory
	}
	ustack, err := heapAllocFn(StackSize)
	if err != nil {
		heapFreeFn(kstack)
		return nil, ErrOutOfMemory
	}

	p := &PCB{
		Pid:                sched.nextPid,
		Name:               name,
		State:              Ready,
		Priority:           priority,
		TimeSliceRemaining: TimeSliceTicks,
		KernelStackBase:    kstack,
		KernelStackTop:     kstack + StackSize,
		UserStackBase:      ustack,
		UserStackTop:       ustack + StackSize,
	}
	if sched.current != nil {
		p.ParentPid = sched.current.Pid
	}
	sched.nextPid++

	p.SavedSP = buildInitialFrame(p.KernelStackTop, entry, codeSelector, dataSelector)

	sched.enqueue(p)
	sched.processCount++

	early.Printf("[proc] created %s (pid %d)\n", p.Name, p.Pid)
	return p, nil
}

// buildInitialFrame writes an irq.Frame at the top of a fresh kernel stack
// so that restoring it (the same pop-registers/iretq sequence used for any
// other saved frame) jumps straight into entry with interrupts enabled.
func buildInitialFrame(stackTop, entry uintptr, codeSel, dataSel uint16) uintptr {
	framePtr := stackTop - uintptr(unsafe.Sizeof(irq.Frame{}))
	frame := (*irq.Frame)(unsafe.Pointer(framePtr))
	*frame = irq.Frame{
		Rip:    uint64(entry),
		CS:     uint64(codeSel),
		RFlags: 0x202, // IF set
		UserSP: uint64(stackTop),
		SS:     uint64(dataSel),
	}
	return framePtr
}

// Kill marks p Terminated, unlinks it from the ready queue and frees both
// of its stacks. Must be called from non-interrupt context; a running
// process arranges its own termination via Exit instead, since freeing a
// stack out from under the code still running on it is unsafe.
func Kill(p *PCB) {
	p.State = Terminated
	sched.unlink(p)
	heapFreeFn(p.KernelStackBase)
	heapFreeFn(p.UserStackBase)
	sched.processCount--
}

package kernel

import (
	"reflect"

	"github.com/blitzos/kernel/kernel/cpu"
	"github.com/blitzos/kernel/kernel/driver/keyboard"
	"github.com/blitzos/kernel/kernel/driver/pit"
	"github.com/blitzos/kernel/kernel/hal"
	"github.com/blitzos/kernel/kernel/hal/multiboot"
	"github.com/blitzos/kernel/kernel/irq"
	"github.com/blitzos/kernel/kernel/kfmt/early"
	"github.com/blitzos/kernel/kernel/mem/heap"
	"github.com/blitzos/kernel/kernel/mem/pmm/allocator"
	"github.com/blitzos/kernel/kernel/mem/vmm"
	"github.com/blitzos/kernel/kernel/proc"
	"github.com/blitzos/kernel/kernel/syscall"
)

// codeSelector/dataSelector are the flat GDT selectors the boot stub has
// already installed by the time Kmain runs (see §6's boot contract); this
// kernel never builds its own GDT.
const (
	codeSelector uint16 = 0x08
	dataSelector uint16 = 0x10
)

var kernelHeap heap.Heap

var errKmainReturned = &Error{Module: "kmain", Message: "Kmain returned"}

// funcAddr returns the entry address of a Go function value, the same
// trick irq's stubAddr uses to hand the CPU a raw code address instead of
// a Go func value.
func funcAddr(fn func()) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Kmain is the only Go symbol the boot stub calls, once it has set up the
// GDT, an initial identity-mapped page table and a kernel stack. magic and
// infoPtr are exactly what the Multiboot2 loader left behind; kernelEnd is
// the linker-provided end-of-image address (original_source's `extern
// uint8_t kernel_end`) needed to place the frame bitmap after the kernel
// image. Kmain is not expected to return.
//
//go:noinline
func Kmain(magic uint32, infoPtr, kernelEnd uintptr) {
	if err := multiboot.CheckMagic(magic); err != nil {
		// No terminal yet to report through; spin rather than risk
		// touching unmapped VGA memory with a bad boot blob.
		for {
			cpuHaltFn()
		}
	}
	multiboot.SetInfoPtr(infoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()
	early.Printf("blitzos booting\n")
	if name, ok := multiboot.BootLoaderName(); ok {
		early.Printf("loaded by %s\n", name)
	}
	if lower, upper, ok := multiboot.BasicMemory(); ok {
		early.Printf("memory: %d KiB lower, %d KiB upper\n", lower, upper)
	}

	if err := allocator.Init(kernelEnd); err != nil {
		Panic(err)
	}
	early.Printf("frame allocator: %d frames total\n", allocator.FrameAllocator.TotalCount())

	// The boot stub's page tables are already active and identity-mapped;
	// §4.3 calls for adopting them as the kernel root rather than switching
	// to a freshly built address space.
	vmm.Init()

	if err := kernelHeap.Init(allocator.AllocFrame); err != nil {
		Panic(err)
	}

	irq.Init(codeSelector)
	proc.Init(&kernelHeap, codeSelector, dataSelector)
	syscall.Init(hal.ActiveTerminal)

	kb := keyboard.New()
	kb.Init()
	irq.Handle(1, func(frame *irq.Frame) { kb.HandleIRQ() })

	pit.Init()
	irq.TickFn = pit.HandleIRQ

	if _, err := proc.Create("idle", funcAddr(idleMain), proc.DefaultPriority); err != nil {
		Panic(err)
	}
	if _, err := proc.Create("init", funcAddr(initMain), proc.DefaultPriority); err != nil {
		Panic(err)
	}

	irq.SetMask(0, false)
	irq.SetMask(1, false)
	cpu.EnableInterrupts()

	proc.Start()

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating it as dead code and eliminating the call.
	Panic(errKmainReturned)
}

// idleMain is the idle process, created at the default priority like the
// others: it reaps processes Exit has terminated, then halts until the next
// interrupt. It never itself exits.
func idleMain() {
	for {
		proc.Reap()
		cpu.Halt()
	}
}

// initMain is the first real workload: a smoke test exercising the
// diagnostic banner and the cooperative yield path before exiting.
func initMain() {
	early.Printf("[init] pid %d running\n", proc.Current().Pid)
	proc.DoSchedule()
	early.Printf("[init] done\n")
	proc.Exit()
}

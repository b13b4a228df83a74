package kernel

import (
	"github.com/blitzos/kernel/kernel/cpu"
	"github.com/blitzos/kernel/kernel/kfmt/early"
)

var (
	// cpuHaltFn is the halt Panic loops on, held in a variable so it can be
	// replaced.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints the supplied error (if any) to the console and halts the
// CPU. Panic never returns; per the kernel's error-handling policy,
// FatalException conditions are unrecoverable because the interrupted
// register state may be corrupt.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	for {
		cpuHaltFn()
	}
}

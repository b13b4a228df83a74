package irq

import "reflect"

// Each of these is a tiny entry point implemented in stubs_amd64.s: it
// pushes the vector (and, for exceptions that don't, a dummy error code)
// then jumps to the shared exception or IRQ common stub. Declaring one
// symbol per vector is unavoidable on x86: the hardware gives a handler no
// other way to learn which vector it was invoked for.
func isr0()
func isr1()
func isr2()
func isr3()
func isr4()
func isr5()
func isr6()
func isr7()
func isr8()
func isr9()
func isr10()
func isr11()
func isr12()
func isr13()
func isr14()
func isr15()
func isr16()
func isr17()
func isr18()
func isr19()
func isr20()
func isr21()
func isr22()
func isr23()
func isr24()
func isr25()
func isr26()
func isr27()
func isr28()
func isr29()
func isr30()
func isr31()

func irqStub0()
func irqStub1()
func irqStub2()
func irqStub3()
func irqStub4()
func irqStub5()
func irqStub6()
func irqStub7()
func irqStub8()
func irqStub9()
func irqStub10()
func irqStub11()
func irqStub12()
func irqStub13()
func irqStub14()
func irqStub15()

// syscallStub is the single entry point for vector 0x80: unlike the
// exception/IRQ tables, there is exactly one of these, installed as a
// trap gate callable from ring 3.
func syscallStub()

var exceptionStubs = [32]func(){
	isr0, isr1, isr2, isr3, isr4, isr5, isr6, isr7,
	isr8, isr9, isr10, isr11, isr12, isr13, isr14, isr15,
	isr16, isr17, isr18, isr19, isr20, isr21, isr22, isr23,
	isr24, isr25, isr26, isr27, isr28, isr29, isr30, isr31,
}

var irqStubs = [16]func(){
	irqStub0, irqStub1, irqStub2, irqStub3, irqStub4, irqStub5, irqStub6, irqStub7,
	irqStub8, irqStub9, irqStub10, irqStub11, irqStub12, irqStub13, irqStub14, irqStub15,
}

// stubAddr returns the entry address of a Go function value.
func stubAddr(fn func()) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Package irq owns the interrupt descriptor table, the 8259 PIC remap and
// EOI sequence, and dispatch of CPU exceptions and hardware IRQs to the
// handlers registered by the drivers that care about them.
package irq

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel/cpu"
)

const idtEntries = 256

// interruptGateFlags is a present, ring-0, 64-bit interrupt gate.
const interruptGateFlags = 0x8E

// syscallGateFlags is a present, ring-3-callable, 64-bit trap gate: DPL=3
// (bits 6-5) so user code can reach it with int $0x80, type 0xF (trap:
// unlike an interrupt gate it does not clear IF on entry).
const syscallGateFlags = 0xEF

// SyscallVector is the software interrupt number the syscall gateway
// listens on.
const SyscallVector = 0x80

const (
	pic1Command = 0x20
	pic1Data    = 0x21
	pic2Command = 0xA0
	pic2Data    = 0xA1
	picEOI      = 0x20

	// Pic1Offset and Pic2Offset are the vector numbers IRQ0 and IRQ8 are
	// remapped to, moving them safely past the CPU exception range.
	Pic1Offset = 0x20
	Pic2Offset = 0x28
)

// idtEntry is a single 64-bit mode interrupt gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	zero       uint32
}

// idtPtr is the pseudo-descriptor consumed by the lidt instruction.
type idtPtr struct {
	limit uint16
	base  uint64
}

var (
	idt    [idtEntries]idtEntry
	idtReg idtPtr
)

// outbFn/inbFn/loadIDTFn indirect onto the cpu package so PIC programming
// and IDT loading can be exercised by tests without real hardware.
var (
	outbFn   = cpu.Outb
	inbFn    = cpu.Inb
	loadIDTFn = cpu.LoadIDT
)

func setGate(num uint8, handler uintptr, selector uint16, flags uint8) {
	idt[num] = idtEntry{
		offsetLow:  uint16(handler),
		selector:   selector,
		ist:        0,
		typeAttr:   flags,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
		zero:       0,
	}
}

// Init clears the IDT, installs the exception and IRQ entry stubs, remaps
// the PIC to Pic1Offset/Pic2Offset and loads the table via lidt. Interrupts
// remain disabled on return; the caller enables them once every driver is
// ready to receive them.
func Init(codeSelector uint16) {
	idt = [idtEntries]idtEntry{}

	for vector, stub := range exceptionStubs {
		setGate(uint8(vector), stubAddr(stub), codeSelector, interruptGateFlags)
	}
	for irqNum, stub := range irqStubs {
		setGate(uint8(Pic1Offset+irqNum), stubAddr(stub), codeSelector, interruptGateFlags)
	}

	setGate(SyscallVector, stubAddr(syscallStub), codeSelector, syscallGateFlags)

	picRemap(Pic1Offset, Pic2Offset)

	idtReg = idtPtr{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&idt[0]))),
	}
	loadIDTFn(uintptr(unsafe.Pointer(&idtReg)))
}

// picRemap reprograms both PICs so IRQ0-15 land on offset1..offset1+7 and
// offset2..offset2+7, preserving the existing interrupt masks.
func picRemap(offset1, offset2 uint8) {
	mask1 := inbFn(pic1Data)
	mask2 := inbFn(pic2Data)

	outbFn(pic1Command, 0x11)
	outbFn(pic2Command, 0x11)

	outbFn(pic1Data, offset1)
	outbFn(pic2Data, offset2)

	outbFn(pic1Data, 0x04)
	outbFn(pic2Data, 0x02)

	outbFn(pic1Data, 0x01)
	outbFn(pic2Data, 0x01)

	outbFn(pic1Data, mask1)
	outbFn(pic2Data, mask2)
}

// SetMask enables (mask=false) or disables (mask=true) a single IRQ line.
func SetMask(irqNum uint8, mask bool) {
	port := uint16(pic1Data)
	bit := irqNum
	if irqNum >= 8 {
		port = pic2Data
		bit -= 8
	}

	cur := inbFn(port)
	if mask {
		cur |= 1 << bit
	} else {
		cur &^= 1 << bit
	}
	outbFn(port, cur)
}

// sendEOI acknowledges the interrupt controller(s) for the given IRQ.
func sendEOI(irqNum uint8) {
	if irqNum >= 8 {
		outbFn(pic2Command, picEOI)
	}
	outbFn(pic1Command, picEOI)
}

// Package pit programs the 8253/8254 programmable interval timer to fire
// IRQ0 at a fixed frequency and tracks the resulting tick count.
package pit

import "github.com/blitzos/kernel/kernel/cpu"

const (
	channel0 = 0x40
	channel2 = 0x42
	command  = 0x43

	// inputFrequency is the PIT's fixed oscillator frequency in Hz.
	inputFrequency = 1193182

	// TickFrequency is the rate, in Hz, IRQ0 fires at once Init runs.
	TickFrequency = 100

	// square wave, channel 0, lobyte/hibyte access, binary mode.
	commandByte = 0x36

	// square wave, channel 2, lobyte/hibyte access, binary mode.
	beepCommandByte = 0xB6

	// speakerPort gates channel 2's output onto the PC speaker; bit 0 ties
	// the speaker to the PIT's channel-2 output, bit 1 enables the speaker
	// data line itself.
	speakerPort = 0x61
	speakerGate = 0x01
	speakerData = 0x02
)

var outbFn = cpu.Outb
var inbFn = cpu.Inb
var haltFn = cpu.Halt

var ticks uint64

// Init programs channel 0 for TickFrequency and resets the tick counter.
func Init() {
	ticks = 0
	divisor := uint16(inputFrequency / TickFrequency)
	outbFn(command, commandByte)
	outbFn(channel0, uint8(divisor))
	outbFn(channel0, uint8(divisor>>8))
}

// HandleIRQ is the IRQ0 top half: register it with irq.Handle(0, ...).
func HandleIRQ() {
	ticks++
}

// Ticks returns the number of timer interrupts observed since Init.
func Ticks() uint64 { return ticks }

// Sleep blocks, halting the CPU between interrupts, until n further ticks
// have elapsed.
func Sleep(n uint64) {
	deadline := ticks + n
	for ticks < deadline {
		haltFn()
	}
}

// Beep drives the PC speaker at freqHz by reprogramming channel 2 (channel
// 0 keeps driving IRQ0 throughout) and gating its output onto the speaker,
// blocking for the given number of ticks before silencing it again.
func Beep(freqHz uint64, durationTicks uint64) {
	if freqHz == 0 {
		freqHz = 1
	}
	divisor := uint16(inputFrequency / freqHz)

	outbFn(command, beepCommandByte)
	outbFn(channel2, uint8(divisor))
	outbFn(channel2, uint8(divisor>>8))

	saved := inbFn(speakerPort)
	if saved&(speakerGate|speakerData) != (speakerGate | speakerData) {
		outbFn(speakerPort, saved|speakerGate|speakerData)
	}

	Sleep(durationTicks)

	outbFn(speakerPort, saved)
}

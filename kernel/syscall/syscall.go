// Package syscall implements the vector-0x80 gateway: it decodes the
// register-passed call number and arguments irq hands it and dispatches
// to the small set of in-kernel services processes may call.
package syscall

import (
	"unsafe"

	"github.com/blitzos/kernel/kernel/driver/pit"
	"github.com/blitzos/kernel/kernel/driver/tty"
	"github.com/blitzos/kernel/kernel/driver/video/console"
	"github.com/blitzos/kernel/kernel/irq"
	"github.com/blitzos/kernel/kernel/kfmt/early"
	"github.com/blitzos/kernel/kernel/proc"
)

// Numbers, per original_source/kernel/sys/syscall.h. That header is taken
// as canonical over test_syscalls.c's comments, which mislabel SYS_GETPID
// as 4 and SYS_SLEEP as 5 (backwards from the header's definitions).
const (
	Exit    = 0
	Write   = 1
	Read    = 2
	Yield   = 3
	Sleep   = 4
	GetPID  = 5
	GetPPID = 6
)

// Decorative calls, numbered as invoked from original_source/kernel/test_syscalls.c.
const (
	PrintRainbow = 101
	PartyMode    = 103
	PrintCool    = 104
)

// Decorative calls with no grounding in original_source: numbered
// sequentially after PrintCool, same convention GetPPID follows for the
// core table.
const (
	ScreenBlink = 105
	Beep        = 106
	CursorDance = 107
)

// danceWidth/danceHeight are the fixed console dimensions §6 specifies
// (80x25 text-mode cells), used to keep CURSOR_DANCE's sweep on-screen.
const (
	danceWidth  = 80
	danceHeight = 25
)

const (
	fdStdout = 1
	fdStderr = 2
)

const unknownSyscall = ^uint64(0) // -1

// writeStringFn/setForegroundFn indirect onto the attached terminal so
// tests can exercise dispatch without a real VGA framebuffer behind it,
// the same seam irq/keyboard/pit use for their hardware touchpoints.
var writeStringFn func(data []byte, fg console.Attr) int
var setForegroundFn func(fg console.Attr)
var fillScreenFn func(bg console.Attr)
var setPositionFn func(x, y uint16)
var sleepFn = pit.Sleep
var beepFn = pit.Beep

// Init wires the gateway into the interrupt layer; the IDT gate itself is
// installed by irq.Init. Must run after irq.Init, since it only registers a
// dispatch hook.
func Init(t *tty.Vt) {
	writeStringFn = t.WriteString
	setForegroundFn = t.SetForeground
	fillScreenFn = t.FillScreen
	setPositionFn = t.SetPosition
	irq.SyscallFn = dispatch
}

// dispatch is SyscallFn: num/a/b/c/d/e are exactly {accumulator, base,
// counter, data, source-index, destination-index} as the stub packed
// them off the saved frame.
func dispatch(num, a, b, c, d, e uint64) uint64 {
	switch num {
	case Exit:
		proc.Exit()
		return 0 // reached only when there is no current process to exit
	case Write:
		return sysWrite(a, b, c)
	case Read:
		return unknownSyscall // not implemented
	case Sleep:
		ticks := (a + 9) / 10 // ms -> ticks, ceiling divide by 10
		sleepFn(ticks)
		return 0
	case Yield:
		proc.DoSchedule()
		return 0
	case GetPID:
		if p := proc.Current(); p != nil {
			return uint64(p.Pid)
		}
		return 0
	case GetPPID:
		if p := proc.Current(); p != nil {
			return uint64(p.ParentPid)
		}
		return 0
	case PrintRainbow:
		return sysPrintRainbow(a)
	case PartyMode:
		return sysPartyMode(a)
	case PrintCool:
		return sysPrintCool(a)
	case ScreenBlink:
		return sysScreenBlink(a, b)
	case Beep:
		return sysBeep(a, b)
	case CursorDance:
		return sysCursorDance(a)
	default:
		early.Printf("[syscall] unknown syscall %d\n", num)
		return unknownSyscall
	}
}

// sysWrite copies up to length bytes from a caller-supplied buffer to the
// console; stdout prints white, stderr light red. Safe without a copy
// check since processes share the kernel's address space (see the PCB's
// PageTableRoot, always 0).
func sysWrite(fd, bufPtr, length uint64) uint64 {
	var color console.Attr
	switch fd {
	case fdStdout:
		color = console.White
	case fdStderr:
		color = console.LightRed
	default:
		return unknownSyscall
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(bufPtr))), int(length))
	n := writeStringFn(data, color)
	return uint64(n)
}

var rainbow = [...]console.Attr{
	console.LightRed, console.LightBrown, console.LightGreen,
	console.LightCyan, console.LightBlue, console.LightMagenta,
}

// sysPrintRainbow writes a NUL-terminated string cycling through rainbow
// colors one character at a time.
func sysPrintRainbow(strPtr uint64) uint64 {
	n := 0
	for p := uintptr(strPtr); ; p++ {
		b := *(*byte)(unsafe.Pointer(p))
		if b == 0 {
			break
		}
		writeStringFn([]byte{b, 0}, rainbow[n%len(rainbow)])
		n++
	}
	return uint64(n)
}

// sysPartyMode cycles the terminal's foreground color through the rainbow
// palette once per tick for the given tick count, sleeping one tick at a
// time. The console has no border register, so no border color changes.
func sysPartyMode(durationTicks uint64) uint64 {
	for i := uint64(0); i < durationTicks; i++ {
		setForegroundFn(rainbow[i%uint64(len(rainbow))])
		sleepFn(1)
	}
	return 0
}

// sysPrintCool writes a NUL-terminated string in light cyan.
func sysPrintCool(strPtr uint64) uint64 {
	n := 0
	for p := uintptr(strPtr); ; p++ {
		b := *(*byte)(unsafe.Pointer(p))
		if b == 0 {
			break
		}
		n++
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(strPtr))), n)
	return uint64(writeStringFn(data, console.LightCyan))
}

// sysScreenBlink flashes the whole console between white and black count
// times, speedMs apart.
func sysScreenBlink(count, speedMs uint64) uint64 {
	half := (speedMs + 9) / 10 // ms -> ticks, ceiling divide by 10
	for i := uint64(0); i < count; i++ {
		fillScreenFn(console.White)
		sleepFn(half)
		fillScreenFn(console.Black)
		sleepFn(half)
	}
	return 0
}

// sysBeep drives the PC speaker at freqHz for the given number of ticks.
func sysBeep(freqHz, ticks uint64) uint64 {
	beepFn(freqHz, ticks)
	return 0
}

// sysCursorDance sweeps the cursor diagonally across the console, one cell
// per tick, for the given number of ticks.
func sysCursorDance(ticks uint64) uint64 {
	var x, y uint16
	for i := uint64(0); i < ticks; i++ {
		setPositionFn(x, y)
		sleepFn(1)
		x = (x + 1) % danceWidth
		y = (y + 1) % danceHeight
	}
	return 0
}

package proc

import (
	"testing"
	"unsafe"

	"github.com/blitzos/kernel/kernel"
)

// resetScheduler clears package-level state so each test starts fresh;
// the scheduler is a process-wide singleton per the kernel's global-state
// convention, so tests must not leak state between each other.
func resetScheduler() {
	sched = scheduler{nextPid: 1}
	zombies = nil
}

// fakeHeap hands out addresses inside a real arena, since Create writes the
// initial frame into the kernel stack it gets back.
type fakeHeap struct {
	arena   []byte
	base    uintptr
	next    uintptr
	freed   []uintptr
	fail    bool
	failOn  int // 1-indexed call number to fail on instead; 0 means unused
	alloced int
}

func (h *fakeHeap) alloc(size uint64) (uintptr, *kernel.Error) {
	h.alloced++
	if h.fail || h.alloced == h.failOn {
		return 0, &kernel.Error{Module: "heap", Message: "out of memory"}
	}
	p := h.next
	h.next += uintptr(size) + 64
	return p, nil
}

func (h *fakeHeap) free(ptr uintptr) { h.freed = append(h.freed, ptr) }

func installFakeHeap(t *testing.T) *fakeHeap {
	resetScheduler()
	arena := make([]byte, 128*1024)
	base := uintptr(unsafe.Pointer(&arena[0]))
	h := &fakeHeap{arena: arena, base: base, next: base}
	heapAllocFn = h.alloc
	heapFreeFn = h.free
	codeSelector, dataSelector = 0x08, 0x10

	// Swapping stacks for real would corrupt this test process's own
	// stack; a switch in tests only needs to move SavedSP bookkeeping.
	savedResume, savedSwitch := resumeContextFn, switchContextFn
	resumeContextFn = func(uintptr) {}
	switchContextFn = func(saveSlot *uintptr, resumeSP uintptr) { *saveSlot = resumeSP }

	t.Cleanup(func() {
		heapAllocFn, heapFreeFn = nil, nil
		resumeContextFn, switchContextFn = savedResume, savedSwitch
	})
	return h
}

func TestCreateAssignsMonotonicPids(t *testing.T) {
	installFakeHeap(t)

	a, err := Create("a", 0x1000, DefaultPriority)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Create("b", 0x2000, DefaultPriority)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Pid != 1 || b.Pid != 2 {
		t.Fatalf("got pids %d, %d, want 1, 2", a.Pid, b.Pid)
	}
	if a.State != Ready || b.State != Ready {
		t.Fatalf("new processes must start Ready")
	}
}

func TestCreateBuildsResumableInitialFrame(t *testing.T) {
	installFakeHeap(t)

	p, err := Create("a", 0xDEADBEEF, DefaultPriority)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.SavedSP == 0 {
		t.Fatal("expected a non-zero saved stack pointer")
	}
	if p.SavedSP >= p.KernelStackTop {
		t.Fatal("saved stack pointer must sit below the top of the stack")
	}
}

func TestCreateRejectsOutOfMemory(t *testing.T) {
	h := installFakeHeap(t)
	h.fail = true

	_, err := Create("a", 0x1000, DefaultPriority)
	if err != ErrOutOfMemory {
		t.Fatalf("got %v, want ErrOutOfMemory", err)
	}
}

func TestCreateRollsBackKernelStackOnUserStackFailure(t *testing.T) {
	h := installFakeHeap(t)
	h.failOn = 2 // kstack (call 1) succeeds, ustack (call 2) fails

	_, err := Create("a", 0x1000, DefaultPriority)
	if err != ErrOutOfMemory {
		t.Fatalf("got %v, want ErrOutOfMemory", err)
	}
	if len(h.freed) != 1 {
		t.Fatalf("expected the kernel stack to be rolled back, got %d frees", len(h.freed))
	}
	if h.freed[0] != h.base {
		t.Fatalf("expected the kernel stack's address freed, got %#x", h.freed[0])
	}
	if sched.processCount != 0 {
		t.Fatalf("expected no process registered on rollback, got count %d", sched.processCount)
	}
}

func TestCreateRejectsTooManyProcesses(t *testing.T) {
	installFakeHeap(t)
	sched.processCount = MaxProcesses

	_, err := Create("a", 0x1000, DefaultPriority)
	if err != ErrTooManyProcesses {
		t.Fatalf("got %v, want ErrTooManyProcesses", err)
	}
}

func TestKillFreesStacksAndUnlinksFromReadyQueue(t *testing.T) {
	h := installFakeHeap(t)

	a, _ := Create("a", 0x1000, DefaultPriority)
	b, _ := Create("b", 0x2000, DefaultPriority)

	Kill(a)

	if a.State != Terminated {
		t.Fatal("expected Terminated state")
	}
	if sched.readyHead != b {
		t.Fatalf("expected b to remain sole head of ready queue, got %v", sched.readyHead)
	}
	if len(h.freed) != 2 {
		t.Fatalf("expected both stacks freed, got %d frees", len(h.freed))
	}
}

func TestExitMarksTerminatedAndSwitchesToNextWithoutFreeingYet(t *testing.T) {
	h := installFakeHeap(t)

	a, _ := Create("a", 0x1000, DefaultPriority)
	b, _ := Create("b", 0x2000, DefaultPriority)
	sched.current = sched.pickNext()
	if sched.current != a {
		t.Fatalf("expected a to start, got %v", sched.current.Name)
	}

	Exit()

	if a.State != Terminated {
		t.Fatal("expected a marked Terminated")
	}
	if sched.current != b {
		t.Fatalf("expected b to become current, got %v", sched.current.Name)
	}
	if len(h.freed) != 0 {
		t.Fatal("expected Exit to defer freeing the caller's own stacks")
	}
	if len(zombies) != 1 || zombies[0] != a {
		t.Fatalf("expected a queued as a zombie, got %v", zombies)
	}
}

func TestReapFreesZombieStacks(t *testing.T) {
	h := installFakeHeap(t)

	Create("a", 0x1000, DefaultPriority)
	Create("b", 0x2000, DefaultPriority)
	sched.current = sched.pickNext()

	Exit()
	Reap()

	if len(h.freed) != 2 {
		t.Fatalf("expected both of a's stacks freed, got %d", len(h.freed))
	}
	if len(zombies) != 0 {
		t.Fatal("expected the zombie list drained after Reap")
	}
	if sched.processCount != 1 {
		t.Fatalf("got process count %d, want 1", sched.processCount)
	}
}

func TestPickNextRoundRobin(t *testing.T) {
	installFakeHeap(t)

	a, _ := Create("a", 0x1000, DefaultPriority)
	b, _ := Create("b", 0x2000, DefaultPriority)
	c, _ := Create("c", 0x3000, DefaultPriority)

	first := sched.pickNext()
	if first != a {
		t.Fatalf("expected a first, got %v", first.Name)
	}
	sched.current = first

	// a's slice isn't exhausted: pickNext must keep it running.
	if again := sched.pickNext(); again != a {
		t.Fatalf("expected to keep a running while its slice remains, got %v", again.Name)
	}

	a.TimeSliceRemaining = 0
	second := sched.pickNext()
	if second != b {
		t.Fatalf("expected b next, got %v", second.Name)
	}
	sched.current = second
	if second.State != Running || second.TimeSliceRemaining != TimeSliceTicks {
		t.Fatal("expected picked process marked Running with a full slice")
	}

	b.TimeSliceRemaining = 0
	third := sched.pickNext()
	if third != c {
		t.Fatalf("expected c next, got %v", third.Name)
	}
	sched.current = third

	c.TimeSliceRemaining = 0
	wrapped := sched.pickNext()
	if wrapped != a {
		t.Fatalf("expected round robin to wrap back to a, got %v", wrapped.Name)
	}
}

// TestPreemptionDistributesTicksEvenly replays scenario where three
// processes run round robin at a 20-tick slice for 600 ticks; each
// process's total_ticks should land within 200±40.
func TestPreemptionDistributesTicksEvenly(t *testing.T) {
	installFakeHeap(t)

	procs := []*PCB{}
	for _, name := range []string{"A", "B", "C"} {
		p, err := Create(name, 0x1000, DefaultPriority)
		if err != nil {
			t.Fatalf("unexpected error creating %s: %v", name, err)
		}
		procs = append(procs, p)
	}

	sched.current = sched.pickNext()

	var fakeFrame uintptr = 0x9000
	for i := 0; i < 600; i++ {
		fakeFrame += 8 // distinct "frame" per tick, never dereferenced
		sched.PreemptHandler(fakeFrame)
	}

	for _, p := range procs {
		if p.TotalTicks < 160 || p.TotalTicks > 240 {
			t.Fatalf("process %s got %d total ticks, want within 200+-40", p.Name, p.TotalTicks)
		}
	}
}

func TestPreemptHandlerKeepsCurrentWhenSliceRemains(t *testing.T) {
	installFakeHeap(t)

	a, _ := Create("a", 0x1000, DefaultPriority)
	Create("b", 0x2000, DefaultPriority)
	sched.current = sched.pickNext()
	if sched.current != a {
		t.Fatalf("expected a to start, got %v", sched.current.Name)
	}

	returned := sched.PreemptHandler(0x1234)
	if returned != 0x1234 {
		t.Fatalf("expected the same frame back while a's slice remains, got %x", returned)
	}
	if sched.current != a {
		t.Fatal("expected a to remain current")
	}
}

func TestGetStatsReportsCurrentPid(t *testing.T) {
	installFakeHeap(t)

	a, _ := Create("a", 0x1000, DefaultPriority)
	sched.current = sched.pickNext()
	if sched.current != a {
		t.Fatalf("expected a to start")
	}

	stats := GetStats()
	if stats.CurrentPid != a.Pid {
		t.Fatalf("got current pid %d, want %d", stats.CurrentPid, a.Pid)
	}
	if stats.ProcessCount != 1 {
		t.Fatalf("got process count %d, want 1", stats.ProcessCount)
	}
}

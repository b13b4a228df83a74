package proc

import "github.com/blitzos/kernel/kernel/kfmt/early"

// scheduler holds the FIFO ready queue and bookkeeping for the single
// running process. The ready queue excludes whichever PCB is current.
type scheduler struct {
	readyHead, readyTail *PCB
	current               *PCB
	nextPid               uint32
	processCount          uint32
	totalTicks            uint64
}

var sched = scheduler{nextPid: 1}

// resumeContextFn/switchContextFn indirect onto the real assembly
// trampolines so tests can exercise the scheduling decisions in Start and
// DoSchedule without actually swapping the host test process's stack out
// from under itself.
var resumeContextFn = resumeContext
var switchContextFn = switchContext

func (s *scheduler) enqueue(p *PCB) {
	p.next = nil
	if s.readyTail == nil {
		s.readyHead, s.readyTail = p, p
		p.prev = nil
		return
	}
	p.prev = s.readyTail
	s.readyTail.next = p
	s.readyTail = p
}

func (s *scheduler) dequeue() *PCB {
	p := s.readyHead
	if p == nil {
		return nil
	}
	s.readyHead = p.next
	if s.readyHead == nil {
		s.readyTail = nil
	} else {
		s.readyHead.prev = nil
	}
	p.next, p.prev = nil, nil
	return p
}

// unlink removes p from the ready queue if it is present; a no-op if it
// isn't (e.g. it is the current process).
func (s *scheduler) unlink(p *PCB) {
	if p.prev != nil {
		p.prev.next = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	if s.readyHead == p {
		s.readyHead = p.next
	}
	if s.readyTail == p {
		s.readyTail = p.prev
	}
	p.next, p.prev = nil, nil
}

// pickNext keeps the current process running if its slice isn't
// exhausted; otherwise it requeues current (if any) and dequeues the head
// of the ready queue as the new current.
func (s *scheduler) pickNext() *PCB {
	if s.current != nil && s.current.State == Running && s.current.TimeSliceRemaining > 0 {
		return s.current
	}

	if s.current != nil && s.current.State == Running {
		s.current.State = Ready
		s.enqueue(s.current)
	}

	next := s.dequeue()
	if next == nil {
		early.Printf("[proc] no ready process to run\n")
		return nil
	}
	next.State = Running
	next.TimeSliceRemaining = TimeSliceTicks
	return next
}

// tick accounts for one timer interrupt against the current process.
func (s *scheduler) tick() {
	s.totalTicks++
	if s.current == nil {
		return
	}
	s.current.TotalTicks++
	if s.current.TimeSliceRemaining > 0 {
		s.current.TimeSliceRemaining--
	}
}

// PreemptHandler implements the timer top half's context-switch contract:
// it is called with the interrupted frame's address and returns the frame
// the CPU should resume into, which may belong to a different process.
func (s *scheduler) PreemptHandler(framePtr uintptr) uintptr {
	s.tick()

	next := s.pickNext()
	if next == nil || next == s.current {
		return framePtr
	}

	if s.current != nil {
		s.current.SavedSP = framePtr
	}
	s.current = next
	return next.SavedSP
}

// Current returns the presently running process, or nil before the first
// one has started.
func Current() *PCB { return sched.current }

// Start hands control to the first ready process and does not return once
// it has. If no process is ready it prints a message and returns.
func Start() {
	first := sched.pickNext()
	if first == nil {
		early.Printf("[proc] no processes to run\n")
		return
	}
	sched.current = first
	resumeContextFn(first.SavedSP)
}

// DoSchedule is the cooperative yield path: it picks the next process per
// the same policy PreemptHandler uses and, if it differs from current,
// switches to it via the non-interrupt trampoline. Callable only once
// Start has set a current process.
func DoSchedule() {
	next := sched.pickNext()
	if next == nil || next == sched.current {
		return
	}

	prev := sched.current
	sched.current = next
	switchContextFn(&prev.SavedSP, next.SavedSP)
}

// zombies holds Terminated PCBs still waiting to have their stacks freed.
// Exit only marks and unlinks, since freeing the stack a process is
// currently running on out from under it would corrupt that very call;
// Reap does the actual freeing from a context guaranteed not to be it.
var zombies []*PCB

// Exit terminates the current process and yields. The process never
// returns from this call: DoSchedule always finds a different process to
// resume onto, since the caller was just removed from contention.
func Exit() {
	p := sched.current
	if p == nil {
		return
	}
	p.State = Terminated
	sched.unlink(p)
	zombies = append(zombies, p)
	DoSchedule()
}

// Reap frees the stacks of every process Exit has terminated so far.
// Must be called from a context that is never one of the zombies
// themselves, e.g. the idle process or a kernel maintenance pass.
func Reap() {
	for _, p := range zombies {
		heapFreeFn(p.KernelStackBase)
		heapFreeFn(p.UserStackBase)
		sched.processCount--
	}
	zombies = zombies[:0]
}

// Stats is a snapshot of scheduler-wide counters for diagnostics.
type Stats struct {
	TotalTicks   uint64
	ProcessCount uint32
	CurrentPid   uint32
}

func GetStats() Stats {
	var pid uint32
	if sched.current != nil {
		pid = sched.current.Pid
	}
	return Stats{TotalTicks: sched.totalTicks, ProcessCount: sched.processCount, CurrentPid: pid}
}

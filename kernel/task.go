package kernel

import (
	"strings"

	"kestrel/kernel/sortlink"
)

// TaskID is the handle of a task control block.
type TaskID uint16

// InvalidTask is the handle of no task.
const InvalidTask TaskID = 0xFFFF

// State is the bit set describing a task's lifecycle state. Several bits can
// be set at once, e.g. Pending|PendTime|Suspended.
type State uint16

const (
	StateInit State = 1 << iota
	StateReady
	StateRunning
	StatePending
	StateDelayed
	StatePendTime
	StateSuspended
	StateExited

	stateTimeout
)

var stateNames = [...]string{
	"init", "ready", "running", "pending", "delayed", "pendtime", "suspended", "exited", "timeout",
}

func (s State) String() string {
	if s == 0 {
		return "unused"
	}
	var b strings.Builder
	for i, name := range stateNames {
		if s&(1<<i) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
	}
	return b.String()
}

// Policy is a task's scheduling policy.
type Policy uint8

const (
	// PolicyRR shares the core with equal-priority tasks in time slices.
	PolicyRR Policy = iota
	// PolicyFIFO runs until it blocks, yields or is preempted by a more
	// urgent task.
	PolicyFIFO
	// PolicyIdle is reserved for the per-core idle tasks.
	PolicyIdle
)

func (p Policy) String() string {
	switch p {
	case PolicyRR:
		return "rr"
	case PolicyFIFO:
		return "fifo"
	case PolicyIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// WaitKind says what a pending or delayed task is waiting for.
type WaitKind uint8

const (
	WaitNone WaitKind = iota
	WaitDelay
	WaitMutex
	WaitRead
	WaitWrite
	WaitSem
)

func (w WaitKind) String() string {
	switch w {
	case WaitNone:
		return "-"
	case WaitDelay:
		return "delay"
	case WaitMutex:
		return "mutex"
	case WaitRead:
		return "rdlock"
	case WaitWrite:
		return "wrlock"
	case WaitSem:
		return "sem"
	default:
		return "unknown"
	}
}

// TaskAttr describes a task to create.
type TaskAttr struct {
	Name string
	// Priority is the initial inner priority, 0 (most urgent) to
	// LowestPriority.
	Priority uint8
	// BasePriority selects the outer ready-queue level. Tasks compare by
	// base priority first.
	BasePriority uint8
	Policy       Policy
	// Affinity restricts the cores the task may run on. Zero means all.
	Affinity CPUMask
	// System marks kernel-owned tasks: they cannot be deleted or suspended
	// and must never block on a lock.
	System bool
	Body   Task
}

// waitState carries the outcome of the last blocking call across the switch
// out and back in.
type waitState struct {
	kind   WaitKind
	obj    uint32
	status Status
	done   bool
}

type task struct {
	id     TaskID
	name   string
	state  State
	policy Policy
	system bool
	body   Task

	basePrio uint8
	prio     uint8
	eff      uint8
	donated  donations

	slice     int64
	startTime uint64
	irqTime   uint64
	waitTime  uint64

	affinity CPUMask
	cpu      int
	lastCPU  int

	link  listLink
	sleep sortlink.Node
	wait  waitState
	held  MutexID

	switches uint64
	runTime  uint64
}

func (t *task) used() bool { return t.state != 0 }

func (t *task) running() bool { return t.state&StateRunning != 0 }

// runnable reports whether a running task may go back to the ready queue.
func (t *task) runnable() bool {
	return t.state&StateRunning != 0 &&
		t.state&(StatePending|StateDelayed|StateSuspended|StateExited) == 0
}

func (t *task) finishWait(st Status) {
	t.wait.status = st
	t.wait.done = true
}

// compare orders tasks by urgency: negative when a is more urgent than b.
// Base priority decides first, then the effective priority. Idle tasks rank
// below everything else.
func compare(a, b *task) int {
	ai, bi := a.policy == PolicyIdle, b.policy == PolicyIdle
	switch {
	case ai && bi:
		return 0
	case ai:
		return 1
	case bi:
		return -1
	}
	if a.basePrio != b.basePrio {
		return int(a.basePrio) - int(b.basePrio)
	}
	return int(a.eff) - int(b.eff)
}

func (k *Kernel) taskByID(id TaskID) (*task, bool) {
	if int(id) >= len(k.tasks) {
		return nil, false
	}
	t := &k.tasks[id]
	if !t.used() {
		return nil, false
	}
	return t, true
}

// CreateTask allocates a task and makes it ready. cpu is the core making
// the call.
func (k *Kernel) CreateTask(cpu int, attr TaskAttr) (TaskID, Status) {
	if attr.Priority > LowestPriority || attr.BasePriority > LowestPriority {
		return InvalidTask, StatusInvalid
	}
	if attr.Policy != PolicyRR && attr.Policy != PolicyFIFO {
		return InvalidTask, StatusInvalid
	}
	aff := attr.Affinity & k.allCPUs
	if attr.Affinity == 0 {
		aff = k.allCPUs
	}
	if aff == 0 {
		return InvalidTask, StatusInvalid
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return InvalidTask, StatusInvalid
	}

	var t *task
	for i := len(k.cpus); i < len(k.tasks); i++ {
		if !k.tasks[i].used() {
			t = &k.tasks[i]
			break
		}
	}
	if t == nil {
		return InvalidTask, StatusNoResource
	}

	k.resetTask(t)
	t.name = attr.Name
	t.policy = attr.Policy
	t.system = attr.System
	t.body = attr.Body
	t.basePrio = attr.BasePriority
	t.prio = attr.Priority
	t.eff = attr.Priority
	t.affinity = aff
	t.state = StateInit

	k.enqueue(t)
	k.notifyReady(cpu, t)
	return t.id, StatusOK
}

func (k *Kernel) resetTask(t *task) {
	id := t.id
	*t = task{id: id, cpu: -1, lastCPU: -1, held: invalidMutex}
	t.link = listLink{prev: InvalidTask, next: InvalidTask}
	t.sleep.Init(uint32(id))
}

// DeleteTask removes a task. A task running on another core is marked and
// released when that core switches away from it.
func (k *Kernel) DeleteTask(cpu int, id TaskID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	t, ok := k.taskByID(id)
	if !ok || t.state&StateExited != 0 {
		return StatusBadHandle
	}
	if t.system || t.policy == PolicyIdle {
		return StatusSystemTask
	}
	if t.held != invalidMutex {
		return StatusInUse
	}

	if t.running() {
		if t.cpu == cpu && k.cpus[cpu].intNesting == 0 && k.cpus[cpu].lockCount > 0 {
			return StatusDeadlock
		}
		k.unlink(cpu, t)
		t.state |= StateExited
		k.poke(cpu, t.cpu)
		if t.cpu == cpu {
			k.schedule(cpu)
		}
		return StatusOK
	}

	k.unlink(cpu, t)
	k.release(t)
	return StatusOK
}

// unlink takes t off the ready queue, any wait list and the timeout links.
func (k *Kernel) unlink(cpu int, t *task) {
	if t.state&StateReady != 0 {
		k.dequeue(t)
	}
	if t.state&StatePending != 0 {
		k.leaveWait(cpu, t)
		t.state &^= StatePending
	}
	if t.state&(StatePendTime|StateDelayed) != 0 {
		k.links.Remove(&t.sleep)
		t.state &^= StatePendTime | StateDelayed
	}
}

func (k *Kernel) release(t *task) {
	k.stats.deleted.Add(1)
	k.resetTask(t)
}

// Suspend stops a task from being scheduled until Resume. Suspending the
// task running on cpu switches away from it.
func (k *Kernel) Suspend(cpu int, id TaskID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	t, ok := k.taskByID(id)
	if !ok || t.state&StateExited != 0 {
		return StatusBadHandle
	}
	if t.system || t.policy == PolicyIdle {
		return StatusSystemTask
	}
	if t.state&StateSuspended != 0 {
		return StatusInvalid
	}
	if t.running() && t.cpu == cpu && k.cpus[cpu].intNesting == 0 && k.cpus[cpu].lockCount > 0 {
		return StatusDeadlock
	}

	t.state |= StateSuspended
	if t.state&StateReady != 0 {
		k.dequeue(t)
	}
	if t.running() {
		k.poke(cpu, t.cpu)
		if t.cpu == cpu {
			k.schedule(cpu)
		}
	}
	return StatusOK
}

// Resume undoes Suspend. A task still waiting on an object stays pending.
func (k *Kernel) Resume(cpu int, id TaskID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	t, ok := k.taskByID(id)
	if !ok || t.state&StateExited != 0 {
		return StatusBadHandle
	}
	if t.state&StateSuspended == 0 {
		return StatusInvalid
	}
	t.state &^= StateSuspended
	if t.state&(StatePending|StateDelayed|StateRunning) == 0 {
		k.enqueue(t)
		k.notifyReady(cpu, t)
	}
	return StatusOK
}

// SetPriority changes a task's own priority. While the task holds donated
// priority the effective priority only moves if the new value is more
// urgent.
func (k *Kernel) SetPriority(cpu int, id TaskID, prio uint8) Status {
	if prio > LowestPriority {
		return StatusInvalid
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	t, ok := k.taskByID(id)
	if !ok || t.state&StateExited != 0 {
		return StatusBadHandle
	}
	if t.policy == PolicyIdle {
		return StatusSystemTask
	}

	t.prio = prio
	k.rebuild(cpu, t)
	if t.state&StatePending != 0 && t.wait.kind == WaitMutex {
		if m, ok := k.mutexByID(MutexID(t.wait.obj)); ok && m.attr.Protocol == ProtocolInherit && m.owner != InvalidTask {
			k.rebuild(cpu, &k.tasks[m.owner])
		}
	}
	return StatusOK
}

// Priority returns the own and effective priority of a task.
func (k *Kernel) Priority(id TaskID) (own, effective uint8, st Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.taskByID(id)
	if !ok {
		return 0, 0, StatusBadHandle
	}
	return t.prio, t.eff, StatusOK
}

// SetAffinity restricts the cores a task may run on. A running task outside
// the new mask is moved off its core at the next safe point.
func (k *Kernel) SetAffinity(cpu int, id TaskID, mask CPUMask) Status {
	mask &= k.allCPUs
	if mask == 0 {
		return StatusInvalid
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	t, ok := k.taskByID(id)
	if !ok || t.state&StateExited != 0 {
		return StatusBadHandle
	}
	if t.policy == PolicyIdle {
		return StatusSystemTask
	}

	t.affinity = mask
	switch {
	case t.state&StateReady != 0:
		k.notifyReady(cpu, t)
	case t.running() && !mask.Has(t.cpu):
		k.poke(cpu, t.cpu)
	}
	return StatusOK
}

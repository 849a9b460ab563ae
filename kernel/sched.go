package kernel

import (
	"kestrel/kernel/sortlink"
)

func (k *Kernel) enqueue(t *task) {
	if t.policy == PolicyIdle {
		return
	}
	assert(t.state&StateReady == 0, "kernel: task enqueued twice")
	t.ops().enqueue(k, t)
	t.state &^= StateInit
	t.state |= StateReady
}

func (k *Kernel) dequeue(t *task) {
	k.rq.remove(k.tasks, t)
	t.state &^= StateReady
}

// makeReady queues a task that just stopped waiting, unless it is suspended.
func (k *Kernel) makeReady(cpu int, t *task) {
	if t.state&StateSuspended != 0 {
		return
	}
	k.enqueue(t)
	k.notifyReady(cpu, t)
}

// charge bills the time t ran since its last accounting point, minus time
// spent in interrupt handlers, and flags cpu for rescheduling once the
// slice is used up.
func (k *Kernel) charge(cpu int, t *task, now uint64) {
	var used uint64
	if now > t.startTime {
		used = now - t.startTime
	}
	if used > t.irqTime {
		used -= t.irqTime
	} else {
		used = 0
	}
	t.ops().charge(t, used)
	t.runTime += used
	t.startTime = now
	t.irqTime = 0
	if t.policy == PolicyRR && t.slice <= int64(k.cfg.SliceFloor) {
		k.cpus[cpu].pending = true
	}
}

// schedule is the reschedule safe point of cpu: the running task goes back
// to the ready queue if it still can run, and the most urgent task allowed
// on cpu takes over. The scheduler lock is held.
func (k *Kernel) schedule(cpu int) {
	if !k.preemptable(cpu) {
		return
	}
	pc := &k.cpus[cpu]
	now := k.hw.Now()
	cur := &k.tasks[pc.running]
	k.charge(cpu, cur, now)
	pc.pending = false

	if cur.runnable() {
		k.enqueue(cur)
	}
	next := k.rq.top(k.tasks, cpu)
	if next == nil {
		next = &k.tasks[pc.idle]
	} else {
		k.dequeue(next)
	}
	k.switchTo(cpu, cur, next, now)
}

func (k *Kernel) switchTo(cpu int, from, to *task, now uint64) {
	pc := &k.cpus[cpu]
	if from == to {
		k.program(cpu, now)
		return
	}

	from.state &^= StateRunning
	from.cpu = -1
	if from.state&(StatePendTime|StateDelayed) != 0 {
		target := k.links.Add(sortlink.Tasks, &from.sleep, sortlink.Deadline(now, from.waitTime))
		if target != cpu {
			k.sendIPI(cpu, MaskOf(target))
		}
	}

	to.ops().refill(k, to)
	to.state |= StateRunning
	to.cpu = cpu
	to.lastCPU = cpu
	to.startTime = now
	to.irqTime = 0
	to.switches++
	pc.running = to.id
	k.stats.switches.Add(1)

	if k.cfg.Trace {
		k.logf("sched: cpu%d %s(%d) -> %s(%d) prio %d/%d slice %d",
			cpu, from.name, from.id, to.name, to.id, to.basePrio, to.eff, to.slice)
	}
	k.hw.Switch(cpu, from.id, to.id)

	switch {
	case from.state&StateExited != 0:
		k.release(from)
	case from.state&StateReady != 0:
		// Preempted; another core may be able to take it.
		k.notifyReady(cpu, from)
	}
	k.program(cpu, now)
}

// program hands the next wakeup of cpu to the platform: the earlier of the
// running slice's end and the head of the core's deadline lists.
func (k *Kernel) program(cpu int, now uint64) {
	pc := &k.cpus[cpu]
	deadline := k.links.NextExpiry(cpu)
	if t := &k.tasks[pc.running]; t.policy == PolicyRR && t.slice > 0 {
		if end := sortlink.Deadline(t.startTime, uint64(t.slice)); end < deadline {
			deadline = end
		}
	}
	if deadline != sortlink.Invalid && deadline < now+k.cfg.ResponsePrecision {
		deadline = now + k.cfg.ResponsePrecision
	}
	if deadline == pc.response {
		return
	}
	pc.response = deadline
	k.hw.SetTimer(cpu, deadline)
}

// wait parks t on l until woken or until timeout ticks pass. The caller has
// checked that cpu is preemptable; t is switched out before wait returns.
func (k *Kernel) wait(cpu int, t *task, l *taskList, kind WaitKind, obj uint32, timeout uint32) Status {
	t.state |= StatePending
	t.state &^= stateTimeout
	if l.kind.priorityOrdered() {
		k.insertByPriority(l, t)
	} else {
		l.pushBack(k.tasks, t.id)
	}
	t.wait = waitState{kind: kind, obj: obj}
	if timeout != WaitForever {
		t.state |= StatePendTime
		t.waitTime = k.TicksToCycles(timeout)
	}
	k.schedule(cpu)
	return StatusPending
}

// wake ends the wait of a pending task with outcome st. Cancelling the
// timeout here means a later expiry scan cannot also time the task out.
func (k *Kernel) wake(cpu int, t *task, st Status) {
	assert(t.state&StatePending != 0, "kernel: waking a task that is not pending")
	t.link.in.remove(k.tasks, t.id)
	t.state &^= StatePending
	if t.state&StatePendTime != 0 {
		k.links.Remove(&t.sleep)
		t.state &^= StatePendTime
	}
	t.finishWait(st)
	k.makeReady(cpu, t)
}

// leaveWait takes a pending task off its wait list without granting it the
// object, and repairs whatever its presence influenced.
func (k *Kernel) leaveWait(cpu int, t *task) {
	if l := t.link.in; l != nil {
		l.remove(k.tasks, t.id)
	}
	switch t.wait.kind {
	case WaitMutex:
		k.mutexWaiterLeft(cpu, MutexID(t.wait.obj), t)
	case WaitWrite:
		k.rwWriterLeft(cpu, RWLockID(t.wait.obj))
	}
}

// expireTasks times out every task on cpu's deadline list that is due.
func (k *Kernel) expireTasks(cpu int, now uint64) {
	l := k.links.Link(cpu, sortlink.Tasks)
	for n := l.PopExpired(now); n != nil; n = l.PopExpired(now) {
		t := &k.tasks[n.Owner]
		switch {
		case t.state&StatePending != 0:
			k.leaveWait(cpu, t)
			t.state &^= StatePending | StatePendTime
			t.state |= stateTimeout
			t.finishWait(StatusTimeout)
			k.stats.timeouts.Add(1)
		case t.state&StateDelayed != 0:
			t.state &^= StateDelayed
			t.finishWait(StatusOK)
		default:
			continue
		}
		k.makeReady(cpu, t)
	}
}

// Tick is the timer interrupt handler of cpu. It expires due timeouts and
// software timers, bills the running task and reschedules on exit when
// needed. Timer handlers run after the scheduler locks are released, still
// in interrupt context.
func (k *Kernel) Tick(cpu int) {
	if !k.cpuOK(cpu) {
		return
	}
	k.IntEnter(cpu)
	fired := k.expireTimers(cpu)

	k.mu.Lock()
	now := k.hw.Now()
	k.expireTasks(cpu, now)
	k.charge(cpu, &k.tasks[k.cpus[cpu].running], now)
	k.program(cpu, now)
	k.mu.Unlock()

	for _, f := range fired {
		f.handler(cpu, f.id)
	}
	k.IntExit(cpu)
}

// Schedule runs the scheduler on cpu now, or marks it pending when cpu is
// not preemptable.
func (k *Kernel) Schedule(cpu int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return
	}
	k.schedule(cpu)
}

// Step runs one step of the task current on cpu, after performing any
// pending reschedule. It returns false when cpu has nothing to run.
func (k *Kernel) Step(cpu int) bool {
	if !k.cpuOK(cpu) {
		return false
	}
	k.mu.Lock()
	pc := &k.cpus[cpu]
	if pc.pending {
		k.schedule(cpu)
	}
	t := &k.tasks[pc.running]
	id, body := t.id, t.body
	idle := t.policy == PolicyIdle
	k.mu.Unlock()

	if idle || body == nil {
		return false
	}
	k.run(cpu, id, body)
	return true
}

func (k *Kernel) run(cpu int, id TaskID, body Task) {
	defer func() {
		if r := recover(); r != nil {
			triggerPanic(PanicInfo{CPU: cpu, TaskID: id, Value: r})
			panic(r)
		}
	}()
	body.Step(&Context{k: k, cpu: cpu, id: id})
}

// Delay puts the task running on cpu to sleep for ticks. Zero ticks yields.
func (k *Kernel) Delay(cpu int, ticks uint32) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]
	if t.policy == PolicyIdle {
		return StatusSystemTask
	}
	if ticks == 0 {
		return k.yield(cpu, t)
	}
	if pc.lockCount > 0 {
		return StatusDeadlock
	}
	t.state |= StateDelayed
	t.state &^= stateTimeout
	t.waitTime = k.TicksToCycles(ticks)
	t.wait = waitState{kind: WaitDelay}
	k.schedule(cpu)
	return StatusPending
}

// Yield moves the task running on cpu behind its equal-priority peers.
func (k *Kernel) Yield(cpu int) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	return k.yield(cpu, &k.tasks[pc.running])
}

func (k *Kernel) yield(cpu int, t *task) Status {
	if k.cpus[cpu].lockCount > 0 {
		return StatusDeadlock
	}
	if t.policy == PolicyIdle {
		return StatusOK
	}
	t.slice = 0
	k.schedule(cpu)
	return StatusOK
}

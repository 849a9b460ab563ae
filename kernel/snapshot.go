package kernel

import (
	"fmt"

	"kestrel/kernel/sortlink"
)

// TaskInfo is a point-in-time copy of a task control block.
type TaskInfo struct {
	ID     TaskID
	Name   string
	State  State
	Policy Policy
	System bool

	BasePriority uint8
	Priority     uint8
	Effective    uint8

	Affinity CPUMask
	CPU      int
	LastCPU  int

	SliceLeft int64
	RunTime   uint64
	Switches  uint64

	Wait     WaitKind
	WaitObj  uint32
	Held     int
	Donation uint32
}

func (ti TaskInfo) String() string {
	slice := "-"
	if ti.Policy == PolicyRR {
		slice = fmt.Sprint(ti.SliceLeft)
	}
	return fmt.Sprintf("%3d %-10s %-5s %2d/%2d(%2d) cpu%-2d %-18s %-6s held=%d slice=%s",
		ti.ID, ti.Name, ti.Policy, ti.BasePriority, ti.Effective, ti.Priority,
		ti.LastCPU, ti.State, ti.Wait, ti.Held, slice)
}

// Snapshot appends every live task to dst.
func (k *Kernel) Snapshot(dst []TaskInfo) []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.tasks {
		t := &k.tasks[i]
		if !t.used() {
			continue
		}
		dst = append(dst, k.info(t))
	}
	return dst
}

// TaskInfoOf returns the snapshot of one task.
func (k *Kernel) TaskInfoOf(id TaskID) (TaskInfo, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.taskByID(id)
	if !ok {
		return TaskInfo{}, StatusBadHandle
	}
	return k.info(t), StatusOK
}

func (k *Kernel) info(t *task) TaskInfo {
	ti := TaskInfo{
		ID:           t.id,
		Name:         t.name,
		State:        t.state,
		Policy:       t.policy,
		System:       t.system,
		BasePriority: t.basePrio,
		Priority:     t.prio,
		Effective:    t.eff,
		Affinity:     t.affinity,
		CPU:          t.cpu,
		LastCPU:      t.lastCPU,
		SliceLeft:    t.slice,
		RunTime:      t.runTime,
		Switches:     t.switches,
		Held:         k.heldCount(t),
		Donation:     uint32(t.donated),
	}
	if t.state&(StatePending|StateDelayed) != 0 {
		ti.Wait = t.wait.kind
		ti.WaitObj = t.wait.obj
	}
	return ti
}

// CPUInfo is a point-in-time copy of one core's scheduler state.
type CPUInfo struct {
	ID          int
	Running     TaskID
	Idle        bool
	PreemptLock int
	Pending     bool
	InInterrupt bool
	IPIs        uint64
	TaskNodes   int
	TimerNodes  int
	// NextWakeup is the deadline last handed to the platform.
	NextWakeup uint64
}

// CPUInfo appends the state of every core to dst.
func (k *Kernel) CPUInfo(dst []CPUInfo) []CPUInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	for cpu := range k.cpus {
		pc := &k.cpus[cpu]
		dst = append(dst, CPUInfo{
			ID:          cpu,
			Running:     pc.running,
			Idle:        pc.running == pc.idle,
			PreemptLock: pc.lockCount,
			Pending:     pc.pending,
			InInterrupt: pc.intNesting > 0,
			IPIs:        pc.ipis,
			TaskNodes:   k.links.Link(cpu, sortlink.Tasks).Len(),
			TimerNodes:  k.links.Link(cpu, sortlink.Timers).Len(),
			NextWakeup:  pc.response,
		})
	}
	return dst
}

// Stats are machine-wide scheduler counters.
type Stats struct {
	Switches   uint64
	IPIs       uint64
	Timeouts   uint64
	TimerFires uint64
	Deleted    uint64
	Ready      int
}

func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	ready := k.rq.n
	k.mu.Unlock()
	return Stats{
		Switches:   k.stats.switches.Load(),
		IPIs:       k.stats.ipis.Load(),
		Timeouts:   k.stats.timeouts.Load(),
		TimerFires: k.stats.timerFires.Load(),
		Deleted:    k.stats.deleted.Load(),
		Ready:      ready,
	}
}

// Check verifies the scheduler's invariants: ready queue bookkeeping, the
// task each core runs, deadline order, lock ownership and priority
// donations. It is meant for tests and debug builds.
func (k *Kernel) Check() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.rq.check(k.tasks); err != nil {
		return err
	}
	for cpu := range k.cpus {
		t := &k.tasks[k.cpus[cpu].running]
		if !t.running() || t.cpu != cpu || t.state&StateReady != 0 {
			return fmt.Errorf("kernel: cpu%d runs task %d in state %s", cpu, t.id, t.state)
		}
		for p := sortlink.Tasks; p <= sortlink.Timers; p++ {
			if err := checkOrder(k.links.Link(cpu, p)); err != nil {
				return fmt.Errorf("kernel: cpu%d %s: %w", cpu, p, err)
			}
		}
	}
	for i := range k.mutexes {
		if err := k.checkMutex(MutexID(i)); err != nil {
			return err
		}
	}
	for i := range k.rwlocks {
		if err := k.checkRWLock(RWLockID(i)); err != nil {
			return err
		}
	}
	for i := range k.tasks {
		if err := checkDonations(&k.tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// checkDonations verifies that only a mutex holder runs above its own
// priority.
func checkDonations(t *task) error {
	if !t.used() {
		return nil
	}
	if t.eff > t.prio {
		return fmt.Errorf("kernel: task %d runs at %d below its own priority %d", t.id, t.eff, t.prio)
	}
	if t.donated.empty() && t.eff != t.prio {
		return fmt.Errorf("kernel: task %d runs at %d without donations (own %d)", t.id, t.eff, t.prio)
	}
	if t.held == invalidMutex && !t.donated.empty() {
		return fmt.Errorf("kernel: task %d holds no mutex but keeps donations %b", t.id, uint32(t.donated))
	}
	return nil
}

func (k *Kernel) checkRWLock(id RWLockID) error {
	rw := &k.rwlocks[id]
	if rw.magic != rwlockMagic {
		return nil
	}
	switch {
	case rw.count < 0:
		if _, ok := k.taskByID(rw.writer); !ok {
			return fmt.Errorf("kernel: rwlock %d write held by dead task %d", id, rw.writer)
		}
	case rw.writer != InvalidTask:
		return fmt.Errorf("kernel: rwlock %d count %d with writer %d", id, rw.count, rw.writer)
	case rw.count == 0 && (!rw.readers.empty() || !rw.writers.empty()):
		return fmt.Errorf("kernel: rwlock %d free with %d readers and %d writers waiting", id, rw.readers.len(), rw.writers.len())
	}
	var err error
	queued := func(kind WaitKind) func(w *task) bool {
		return func(w *task) bool {
			if w.wait.kind != kind || w.wait.obj != uint32(id) || w.state&StatePending == 0 {
				err = fmt.Errorf("kernel: task %d queued on rwlock %d as %s waits on %s#%d", w.id, id, kind, w.wait.kind, w.wait.obj)
				return false
			}
			return true
		}
	}
	rw.readers.each(k.tasks, queued(WaitRead))
	if err == nil {
		rw.writers.each(k.tasks, queued(WaitWrite))
	}
	return err
}

func checkOrder(l *sortlink.Link) error {
	var err error
	last := uint64(0)
	l.Walk(func(n *sortlink.Node) bool {
		if n.Expiry() < last {
			err = fmt.Errorf("node %d expires at %d after %d", n.Owner, n.Expiry(), last)
			return false
		}
		last = n.Expiry()
		return true
	})
	return err
}

func (k *Kernel) checkMutex(id MutexID) error {
	m := &k.mutexes[id]
	if m.magic != mutexMagic {
		return nil
	}
	if m.count == 0 {
		if m.owner != InvalidTask || !m.waiters.empty() {
			return fmt.Errorf("kernel: mutex %d free but owned by %d with %d waiters", id, m.owner, m.waiters.len())
		}
		return nil
	}
	owner, ok := k.taskByID(m.owner)
	if !ok {
		return fmt.Errorf("kernel: mutex %d owned by dead task %d", id, m.owner)
	}
	held := false
	for h := owner.held; h != invalidMutex; h = k.mutexes[h].holdNext {
		if h == id {
			held = true
			break
		}
	}
	if !held {
		return fmt.Errorf("kernel: mutex %d missing from task %d hold list", id, m.owner)
	}
	var err error
	m.waiters.each(k.tasks, func(w *task) bool {
		if w.wait.kind != WaitMutex || w.wait.obj != uint32(id) || w.state&StatePending == 0 {
			err = fmt.Errorf("kernel: task %d queued on mutex %d waits on %s#%d", w.id, id, w.wait.kind, w.wait.obj)
			return false
		}
		return true
	})
	return err
}

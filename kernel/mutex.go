package kernel

// MutexID is the handle of a mutex.
type MutexID uint16

const (
	invalidMutex MutexID = 0xFFFF
	mutexMagic           = 0x4D55580A
	maxRecursion         = 0xFFFF
)

// MutexType selects how a mutex treats relocking by its owner.
type MutexType uint8

const (
	// MutexNormal blocks the owner on relock like any other task.
	MutexNormal MutexType = iota
	// MutexRecursive counts relocks by the owner.
	MutexRecursive
	// MutexErrorCheck rejects relocks by the owner with StatusDeadlock.
	MutexErrorCheck
)

// MutexProtocol selects the priority protocol of a mutex.
type MutexProtocol uint8

const (
	ProtocolNone MutexProtocol = iota
	// ProtocolInherit lends a blocked waiter's priority to the owner.
	ProtocolInherit
	// ProtocolProtect raises every owner to the mutex ceiling.
	ProtocolProtect
)

func (p MutexProtocol) String() string {
	switch p {
	case ProtocolNone:
		return "none"
	case ProtocolInherit:
		return "inherit"
	case ProtocolProtect:
		return "protect"
	default:
		return "unknown"
	}
}

// MutexAttr configures a mutex.
type MutexAttr struct {
	Type     MutexType
	Protocol MutexProtocol
	// Ceiling is the priority owners run at under ProtocolProtect.
	Ceiling uint8
}

// DefaultMutexAttr returns a recursive, priority-inheriting mutex.
func DefaultMutexAttr() MutexAttr {
	return MutexAttr{Type: MutexRecursive, Protocol: ProtocolInherit}
}

type mutex struct {
	magic   uint32
	attr    MutexAttr
	count   uint32
	owner   TaskID
	waiters taskList
	// boosted records that acquiring under ProtocolProtect raised the owner.
	boosted bool

	// Intrusive list of the mutexes held by owner.
	holdPrev, holdNext MutexID
}

func (k *Kernel) mutexByID(id MutexID) (*mutex, bool) {
	if int(id) >= len(k.mutexes) {
		return nil, false
	}
	m := &k.mutexes[id]
	if m.magic != mutexMagic {
		return nil, false
	}
	return m, true
}

// MutexCreate allocates a mutex.
func (k *Kernel) MutexCreate(attr MutexAttr) (MutexID, Status) {
	if attr.Type > MutexErrorCheck || attr.Protocol > ProtocolProtect || attr.Ceiling > LowestPriority {
		return invalidMutex, StatusInvalid
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.mutexes {
		m := &k.mutexes[i]
		if m.magic == mutexMagic {
			continue
		}
		*m = mutex{
			magic:    mutexMagic,
			attr:     attr,
			owner:    InvalidTask,
			holdPrev: invalidMutex,
			holdNext: invalidMutex,
		}
		m.waiters.init(listMutex)
		return MutexID(i), StatusOK
	}
	return invalidMutex, StatusNoResource
}

// MutexDestroy frees a mutex nobody holds or waits on.
func (k *Kernel) MutexDestroy(id MutexID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.mutexByID(id)
	if !ok {
		return StatusBadHandle
	}
	if m.count > 0 || !m.waiters.empty() {
		return StatusInUse
	}
	m.magic = 0
	return StatusOK
}

// MutexOwner returns the owner of a mutex and its lock count.
func (k *Kernel) MutexOwner(id MutexID) (TaskID, uint32, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.mutexByID(id)
	if !ok {
		return InvalidTask, 0, StatusBadHandle
	}
	return m.owner, m.count, StatusOK
}

// MutexLock acquires a mutex for the task running on cpu, waiting up to
// timeout ticks. StatusPending means the task was switched out; the outcome
// is delivered through its Context when it runs again.
func (k *Kernel) MutexLock(cpu int, id MutexID, timeout uint32) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	m, ok := k.mutexByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]

	if m.count == 0 {
		k.mutexClaim(cpu, m, id, t)
		return StatusOK
	}
	if m.owner == t.id {
		switch m.attr.Type {
		case MutexRecursive:
			if m.count == maxRecursion {
				return StatusOverflow
			}
			m.count++
			return StatusOK
		case MutexErrorCheck:
			return StatusDeadlock
		}
	}

	if timeout == 0 {
		return StatusBusy
	}
	if pc.lockCount > 0 {
		return StatusDeadlock
	}
	if t.system || t.policy == PolicyIdle {
		k.logf("mutex: system task %s(%d) would block on mutex %d", t.name, t.id, id)
		return StatusSystemTask
	}

	if m.attr.Protocol == ProtocolInherit {
		if owner := &k.tasks[m.owner]; compare(owner, t) > 0 {
			k.raise(cpu, owner, t.eff)
		}
	}
	return k.wait(cpu, t, &m.waiters, WaitMutex, uint32(id), timeout)
}

// MutexTryLock is MutexLock with a zero timeout.
func (k *Kernel) MutexTryLock(cpu int, id MutexID) Status {
	return k.MutexLock(cpu, id, 0)
}

func (k *Kernel) mutexClaim(cpu int, m *mutex, id MutexID, t *task) {
	m.count = 1
	m.owner = t.id
	k.holdAdd(t, id)
	if m.attr.Protocol == ProtocolProtect {
		m.boosted = k.raise(cpu, t, m.attr.Ceiling)
	}
}

// MutexUnlock releases one level of a mutex held by the task running on cpu.
// The most urgent waiter becomes the owner. A resulting preemption happens
// at the next preemption point, not inside the call.
func (k *Kernel) MutexUnlock(cpu int, id MutexID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	m, ok := k.mutexByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]
	if m.count == 0 || m.owner != t.id {
		return StatusNotOwner
	}
	m.count--
	if m.count > 0 {
		return StatusOK
	}

	if m.attr.Protocol == ProtocolProtect && m.boosted {
		m.boosted = false
		k.restore(cpu, t, nil, m.attr.Ceiling)
	}
	k.holdRemove(t, id)

	if m.waiters.empty() {
		m.owner = InvalidTask
		k.reinherit(cpu, t)
		return StatusOK
	}

	next := &k.tasks[m.waiters.front()]
	if m.attr.Protocol == ProtocolInherit {
		k.restore(cpu, t, &m.waiters, next.eff)
	}
	k.reinherit(cpu, t)

	m.count = 1
	m.owner = next.id
	k.holdAdd(next, id)
	k.wake(cpu, next, StatusOK)
	switch m.attr.Protocol {
	case ProtocolInherit:
		k.reinherit(cpu, next)
	case ProtocolProtect:
		m.boosted = k.raise(cpu, next, m.attr.Ceiling)
	}
	return StatusOK
}

// mutexWaiterLeft withdraws the donation of a waiter that timed out or was
// deleted.
func (k *Kernel) mutexWaiterLeft(cpu int, id MutexID, w *task) {
	m, ok := k.mutexByID(id)
	if !ok || m.attr.Protocol != ProtocolInherit || m.owner == InvalidTask {
		return
	}
	owner := &k.tasks[m.owner]
	k.restore(cpu, owner, &m.waiters, w.eff)
	k.reinherit(cpu, owner)
}

func (k *Kernel) holdAdd(t *task, id MutexID) {
	m := &k.mutexes[id]
	m.holdPrev = invalidMutex
	m.holdNext = t.held
	if t.held != invalidMutex {
		k.mutexes[t.held].holdPrev = id
	}
	t.held = id
}

func (k *Kernel) holdRemove(t *task, id MutexID) {
	m := &k.mutexes[id]
	if m.holdPrev == invalidMutex {
		t.held = m.holdNext
	} else {
		k.mutexes[m.holdPrev].holdNext = m.holdNext
	}
	if m.holdNext != invalidMutex {
		k.mutexes[m.holdNext].holdPrev = m.holdPrev
	}
	m.holdPrev, m.holdNext = invalidMutex, invalidMutex
}

func (k *Kernel) heldCount(t *task) int {
	n := 0
	for id := t.held; id != invalidMutex; id = k.mutexes[id].holdNext {
		n++
	}
	return n
}

package kernel

// SemID is the handle of a counting semaphore.
type SemID uint16

const (
	invalidSem SemID = 0xFFFF
	semMagic         = 0x53454D41
)

type sem struct {
	magic   uint32
	count   uint16
	max     uint16
	waiters taskList
}

func (k *Kernel) semByID(id SemID) (*sem, bool) {
	if int(id) >= len(k.sems) {
		return nil, false
	}
	s := &k.sems[id]
	if s.magic != semMagic {
		return nil, false
	}
	return s, true
}

// SemCreate allocates a semaphore holding count of at most max tokens.
func (k *Kernel) SemCreate(count, max uint16) (SemID, Status) {
	if max == 0 || count > max {
		return invalidSem, StatusInvalid
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.sems {
		s := &k.sems[i]
		if s.magic == semMagic {
			continue
		}
		*s = sem{magic: semMagic, count: count, max: max}
		s.waiters.init(listSem)
		return SemID(i), StatusOK
	}
	return invalidSem, StatusNoResource
}

// SemDelete frees a semaphore nobody waits on.
func (k *Kernel) SemDelete(id SemID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.semByID(id)
	if !ok {
		return StatusBadHandle
	}
	if !s.waiters.empty() {
		return StatusInUse
	}
	s.magic = 0
	return StatusOK
}

// SemCount returns the tokens currently available.
func (k *Kernel) SemCount(id SemID) (uint16, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.semByID(id)
	if !ok {
		return 0, StatusBadHandle
	}
	return s.count, StatusOK
}

// SemPend takes a token for the task running on cpu. Waiters are served in
// arrival order.
func (k *Kernel) SemPend(cpu int, id SemID, timeout uint32) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	s, ok := k.semByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]
	if s.count > 0 {
		s.count--
		return StatusOK
	}
	if st := k.blockCheck(cpu, t, timeout); st != StatusOK {
		return st
	}
	return k.wait(cpu, t, &s.waiters, WaitSem, uint32(id), timeout)
}

// SemPost returns a token, handing it straight to the oldest waiter if
// there is one. It may be called from interrupt context.
func (k *Kernel) SemPost(cpu int, id SemID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	s, ok := k.semByID(id)
	if !ok {
		return StatusBadHandle
	}
	if !s.waiters.empty() {
		k.wake(cpu, &k.tasks[s.waiters.front()], StatusOK)
		return StatusOK
	}
	if s.count == s.max {
		return StatusOverflow
	}
	s.count++
	return StatusOK
}

package kernel

// RWLockID is the handle of a reader-writer lock.
type RWLockID uint16

const (
	invalidRWLock RWLockID = 0xFFFF
	rwlockMagic            = 0x52574C4B
)

// RWMode is the state of a reader-writer lock derived from its wait lists.
type RWMode uint8

const (
	// RWNone: nobody waits.
	RWNone RWMode = iota
	// RWRead: only readers wait.
	RWRead
	// RWWrite: only writers wait.
	RWWrite
	// RWReadFirst: both wait and the head reader is more urgent.
	RWReadFirst
	// RWWriteFirst: both wait and the head writer is at least as urgent.
	RWWriteFirst
)

func (m RWMode) String() string {
	switch m {
	case RWNone:
		return "none"
	case RWRead:
		return "read"
	case RWWrite:
		return "write"
	case RWReadFirst:
		return "read-first"
	case RWWriteFirst:
		return "write-first"
	default:
		return "unknown"
	}
}

// rwlock counts holders in one signed field: positive is the number of
// readers, negative the recursion depth of the single writer.
type rwlock struct {
	magic   uint32
	count   int32
	writer  TaskID
	readers taskList
	writers taskList
}

func (k *Kernel) rwlockByID(id RWLockID) (*rwlock, bool) {
	if int(id) >= len(k.rwlocks) {
		return nil, false
	}
	rw := &k.rwlocks[id]
	if rw.magic != rwlockMagic {
		return nil, false
	}
	return rw, true
}

func (k *Kernel) rwMode(rw *rwlock) RWMode {
	switch {
	case rw.readers.empty() && rw.writers.empty():
		return RWNone
	case rw.writers.empty():
		return RWRead
	case rw.readers.empty():
		return RWWrite
	}
	if compare(&k.tasks[rw.writers.front()], &k.tasks[rw.readers.front()]) <= 0 {
		return RWWriteFirst
	}
	return RWReadFirst
}

// readerAdmitted reports whether a reader t may join the current holders
// without waiting: no writer holds the lock and t is more urgent than any
// waiting writer.
func (k *Kernel) readerAdmitted(rw *rwlock, t *task) bool {
	if rw.count < 0 {
		return false
	}
	return rw.writers.empty() || compare(t, &k.tasks[rw.writers.front()]) < 0
}

// RWLockCreate allocates a reader-writer lock.
func (k *Kernel) RWLockCreate() (RWLockID, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.rwlocks {
		rw := &k.rwlocks[i]
		if rw.magic == rwlockMagic {
			continue
		}
		*rw = rwlock{magic: rwlockMagic, writer: InvalidTask}
		rw.readers.init(listRead)
		rw.writers.init(listWrite)
		return RWLockID(i), StatusOK
	}
	return invalidRWLock, StatusNoResource
}

// RWLockDestroy frees a lock nobody holds or waits on.
func (k *Kernel) RWLockDestroy(id RWLockID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	rw, ok := k.rwlockByID(id)
	if !ok {
		return StatusBadHandle
	}
	if rw.count != 0 || !rw.readers.empty() || !rw.writers.empty() {
		return StatusInUse
	}
	rw.magic = 0
	return StatusOK
}

// RWLockState returns the holder count (readers positive, writer depth
// negative) and the derived mode.
func (k *Kernel) RWLockState(id RWLockID) (int32, RWMode, Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rw, ok := k.rwlockByID(id)
	if !ok {
		return 0, RWNone, StatusBadHandle
	}
	return rw.count, k.rwMode(rw), StatusOK
}

// blockCheck validates that the task running on cpu may block.
func (k *Kernel) blockCheck(cpu int, t *task, timeout uint32) Status {
	if timeout == 0 {
		return StatusBusy
	}
	if k.cpus[cpu].lockCount > 0 {
		return StatusDeadlock
	}
	if t.system || t.policy == PolicyIdle {
		return StatusSystemTask
	}
	return StatusOK
}

// RLock acquires a read hold for the task running on cpu.
func (k *Kernel) RLock(cpu int, id RWLockID, timeout uint32) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	rw, ok := k.rwlockByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]

	if k.readerAdmitted(rw, t) {
		if rw.count == maxRWReaders {
			return StatusOverflow
		}
		rw.count++
		return StatusOK
	}
	if rw.count < 0 && rw.writer == t.id {
		return StatusDeadlock
	}
	if st := k.blockCheck(cpu, t, timeout); st != StatusOK {
		return st
	}
	return k.wait(cpu, t, &rw.readers, WaitRead, uint32(id), timeout)
}

// WLock acquires the write hold for the task running on cpu. The writer may
// relock recursively.
func (k *Kernel) WLock(cpu int, id RWLockID, timeout uint32) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	rw, ok := k.rwlockByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]

	switch {
	case rw.count == 0:
		rw.count = -1
		rw.writer = t.id
		return StatusOK
	case rw.count < 0 && rw.writer == t.id:
		if rw.count == -maxRWDepth {
			return StatusOverflow
		}
		rw.count--
		return StatusOK
	}
	if st := k.blockCheck(cpu, t, timeout); st != StatusOK {
		return st
	}
	return k.wait(cpu, t, &rw.writers, WaitWrite, uint32(id), timeout)
}

// RWUnlock releases one hold. The last writer level, or the last reader,
// hands the lock on according to the wait mode: the head writer when it is
// at least as urgent as the head reader, otherwise every reader at least as
// urgent as the head writer.
func (k *Kernel) RWUnlock(cpu int, id RWLockID) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	rw, ok := k.rwlockByID(id)
	if !ok {
		return StatusBadHandle
	}
	pc := &k.cpus[cpu]
	if pc.intNesting > 0 {
		return StatusInterrupt
	}
	t := &k.tasks[pc.running]

	switch {
	case rw.count == 0:
		return StatusNotOwner
	case rw.count < 0 && rw.writer != t.id:
		return StatusNotOwner
	case rw.count > 1:
		rw.count--
		return StatusOK
	case rw.count < -1:
		rw.count++
		return StatusOK
	}

	rw.count = 0
	rw.writer = InvalidTask
	mode := k.rwMode(rw)
	switch mode {
	case RWNone:
	case RWWrite, RWWriteFirst:
		w := &k.tasks[rw.writers.front()]
		rw.count = -1
		rw.writer = w.id
		k.wake(cpu, w, StatusOK)
	default:
		var hw *task
		if !rw.writers.empty() {
			hw = &k.tasks[rw.writers.front()]
		}
		for !rw.readers.empty() {
			r := &k.tasks[rw.readers.front()]
			if mode == RWReadFirst && compare(r, hw) > 0 || rw.count == maxRWReaders {
				break
			}
			rw.count++
			k.wake(cpu, r, StatusOK)
		}
	}
	return StatusOK
}

// rwWriterLeft lets readers in that were only held back by a waiting writer
// that timed out or was deleted.
func (k *Kernel) rwWriterLeft(cpu int, id RWLockID) {
	rw, ok := k.rwlockByID(id)
	if !ok {
		return
	}
	for !rw.readers.empty() {
		r := &k.tasks[rw.readers.front()]
		if !k.readerAdmitted(rw, r) || rw.count == maxRWReaders {
			return
		}
		rw.count++
		k.wake(cpu, r, StatusOK)
	}
}

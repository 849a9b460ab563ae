package kernel

// Task is a cooperative unit of execution. Step runs one slice of work and
// returns; the kernel calls it again whenever the task is scheduled.
//
// A step that makes a blocking call which returns done == false must return
// without further kernel calls. When the task runs again it re-issues the
// same call, which then reports the outcome of the wait.
type Task interface {
	Step(*Context)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(*Context)

func (f TaskFunc) Step(c *Context) { f(c) }

// Context provides task-local access to kernel operations. It is only valid
// during the Step it was passed to.
type Context struct {
	k   *Kernel
	cpu int
	id  TaskID
}

// TaskID returns the current task ID.
func (c *Context) TaskID() TaskID { return c.id }

// CPU returns the core the step runs on.
func (c *Context) CPU() int { return c.cpu }

// Now returns the platform clock.
func (c *Context) Now() uint64 { return c.k.Now() }

// Log writes a line prefixed with the task name.
func (c *Context) Log(s string) {
	c.k.mu.Lock()
	name := c.k.tasks[c.id].name
	c.k.mu.Unlock()
	c.k.logf("%s: %s", name, s)
}

func (c *Context) current() bool { return c.k.Current(c.cpu) == c.id }

// outcome maps a kernel status to the (done, err) pair of blocking calls.
func outcome(st Status) (bool, error) {
	switch st {
	case StatusOK:
		return true, nil
	case StatusPending:
		return false, nil
	default:
		return false, st
	}
}

func errOf(st Status) error {
	if st == StatusOK {
		return nil
	}
	return st
}

// block consumes the outcome of an earlier wait of the same kind on the same
// object, or makes the call.
func (c *Context) block(kind WaitKind, obj uint32, call func() Status) (bool, error) {
	if !c.current() {
		return false, StatusNotRunning
	}
	if st, ok := c.k.takeResult(c.id, kind, obj); ok {
		return outcome(st)
	}
	return outcome(call())
}

func (k *Kernel) takeResult(id TaskID, kind WaitKind, obj uint32) (Status, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	w := &k.tasks[id].wait
	if !w.done || w.kind != kind || w.obj != obj {
		return StatusOK, false
	}
	w.done = false
	return w.status, true
}

// Delay sleeps for ticks. It returns done once the ticks have passed.
func (c *Context) Delay(ticks uint32) (done bool, err error) {
	if ticks == 0 {
		return true, c.Yield()
	}
	return c.block(WaitDelay, 0, func() Status { return c.k.Delay(c.cpu, ticks) })
}

// Yield lets equal-priority tasks run. The step should return afterwards.
func (c *Context) Yield() error {
	if !c.current() {
		return StatusNotRunning
	}
	return errOf(c.k.Yield(c.cpu))
}

// MutexLock acquires m, waiting up to timeout ticks.
func (c *Context) MutexLock(m MutexID, timeout uint32) (done bool, err error) {
	return c.block(WaitMutex, uint32(m), func() Status { return c.k.MutexLock(c.cpu, m, timeout) })
}

// MutexTryLock acquires m if it is free or owned recursively.
func (c *Context) MutexTryLock(m MutexID) error {
	if !c.current() {
		return StatusNotRunning
	}
	return errOf(c.k.MutexTryLock(c.cpu, m))
}

func (c *Context) MutexUnlock(m MutexID) error {
	if !c.current() {
		return StatusNotRunning
	}
	return errOf(c.k.MutexUnlock(c.cpu, m))
}

func (c *Context) RLock(rw RWLockID, timeout uint32) (done bool, err error) {
	return c.block(WaitRead, uint32(rw), func() Status { return c.k.RLock(c.cpu, rw, timeout) })
}

func (c *Context) WLock(rw RWLockID, timeout uint32) (done bool, err error) {
	return c.block(WaitWrite, uint32(rw), func() Status { return c.k.WLock(c.cpu, rw, timeout) })
}

func (c *Context) RWUnlock(rw RWLockID) error {
	if !c.current() {
		return StatusNotRunning
	}
	return errOf(c.k.RWUnlock(c.cpu, rw))
}

// SemPend takes a token from s, waiting up to timeout ticks.
func (c *Context) SemPend(s SemID, timeout uint32) (done bool, err error) {
	return c.block(WaitSem, uint32(s), func() Status { return c.k.SemPend(c.cpu, s, timeout) })
}

func (c *Context) SemPost(s SemID) error {
	return errOf(c.k.SemPost(c.cpu, s))
}

func (c *Context) PreemptDisable() { c.k.PreemptDisable(c.cpu) }

func (c *Context) PreemptEnable() error { return errOf(c.k.PreemptEnable(c.cpu)) }

// Priority returns the task's own and effective priority.
func (c *Context) Priority() (own, effective uint8) {
	own, effective, _ = c.k.Priority(c.id)
	return own, effective
}

func (c *Context) SetPriority(p uint8) error {
	return errOf(c.k.SetPriority(c.cpu, c.id, p))
}

// Spawn creates a task from the calling core.
func (c *Context) Spawn(attr TaskAttr) (TaskID, error) {
	id, st := c.k.CreateTask(c.cpu, attr)
	return id, errOf(st)
}

// Exit deletes the calling task. The step must return afterwards.
func (c *Context) Exit() error {
	return errOf(c.k.DeleteTask(c.cpu, c.id))
}

// TimerStart arms t from the calling core.
func (c *Context) TimerStart(t TimerID) error {
	return errOf(c.k.TimerStart(c.cpu, t))
}

package kernel

// Status is the outcome of a kernel operation.
//
// Status implements error so task code can wrap it with fmt.Errorf("%w") and
// test it with errors.Is.
type Status uint8

const (
	StatusOK Status = iota
	// StatusInvalid reports a bad argument (zero interval, priority out of range).
	StatusInvalid
	// StatusBadHandle reports an unknown or destroyed object handle.
	StatusBadHandle
	// StatusInterrupt reports a blocking call made from interrupt context.
	StatusInterrupt
	// StatusDeadlock reports a call that would block with preemption
	// disabled, or that would wait on a lock the caller already owns.
	StatusDeadlock
	// StatusSystemTask reports a system task attempting to block, or an
	// operation not permitted on a system task.
	StatusSystemTask
	// StatusBusy reports that a zero-timeout attempt would have blocked.
	StatusBusy
	StatusTimeout
	// StatusNotOwner reports a release by a task that does not hold the lock.
	StatusNotOwner
	// StatusInUse reports destroying an object that is still held or waited on.
	StatusInUse
	StatusNoResource
	StatusOverflow
	// StatusPending reports that the caller was switched out and the outcome
	// will be delivered when it runs again.
	StatusPending
	// StatusNotRunning reports a task-context call made on behalf of a task
	// that is not the one running on the core.
	StatusNotRunning
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid argument"
	case StatusBadHandle:
		return "bad handle"
	case StatusInterrupt:
		return "called from interrupt context"
	case StatusDeadlock:
		return "would deadlock"
	case StatusSystemTask:
		return "not permitted for system task"
	case StatusBusy:
		return "would block"
	case StatusTimeout:
		return "timed out"
	case StatusNotOwner:
		return "not owner"
	case StatusInUse:
		return "in use"
	case StatusNoResource:
		return "no resource"
	case StatusOverflow:
		return "overflow"
	case StatusPending:
		return "pending"
	case StatusNotRunning:
		return "task not running"
	default:
		return "unknown"
	}
}

func (s Status) Error() string { return "kernel: " + s.String() }

// OK reports whether s is StatusOK.
func (s Status) OK() bool { return s == StatusOK }

package kernel

// listKind tags which kind of list a task link currently belongs to.
type listKind uint8

const (
	listNone listKind = iota
	listReady
	listMutex
	listRead
	listWrite
	listSem
)

// priorityOrdered reports whether waiters on lists of this kind are kept
// ordered by priority.
func (k listKind) priorityOrdered() bool {
	switch k {
	case listMutex, listRead, listWrite:
		return true
	default:
		return false
	}
}

// listLink is the intrusive link of a task. A task is on at most one list:
// a ready list or one wait list.
type listLink struct {
	prev, next TaskID
	in         *taskList
}

// taskList is a doubly linked list of task handles.
type taskList struct {
	head, tail TaskID
	n          int
	kind       listKind
}

func (l *taskList) init(kind listKind) {
	*l = taskList{head: InvalidTask, tail: InvalidTask, kind: kind}
}

func (l *taskList) empty() bool   { return l.n == 0 }
func (l *taskList) len() int      { return l.n }
func (l *taskList) front() TaskID { return l.head }

func (l *taskList) pushBack(ts []task, id TaskID) {
	t := &ts[id]
	assert(t.link.in == nil, "list: task already linked")
	t.link = listLink{prev: l.tail, next: InvalidTask, in: l}
	if l.tail == InvalidTask {
		l.head = id
	} else {
		ts[l.tail].link.next = id
	}
	l.tail = id
	l.n++
}

func (l *taskList) pushFront(ts []task, id TaskID) {
	t := &ts[id]
	assert(t.link.in == nil, "list: task already linked")
	t.link = listLink{prev: InvalidTask, next: l.head, in: l}
	if l.head == InvalidTask {
		l.tail = id
	} else {
		ts[l.head].link.prev = id
	}
	l.head = id
	l.n++
}

// insertBefore links id in front of at. at == InvalidTask appends.
func (l *taskList) insertBefore(ts []task, at, id TaskID) {
	if at == InvalidTask {
		l.pushBack(ts, id)
		return
	}
	if at == l.head {
		l.pushFront(ts, id)
		return
	}
	t := &ts[id]
	assert(t.link.in == nil, "list: task already linked")
	a := &ts[at]
	assert(a.link.in == l, "list: insert position on another list")
	t.link = listLink{prev: a.link.prev, next: at, in: l}
	ts[a.link.prev].link.next = id
	a.link.prev = id
	l.n++
}

func (l *taskList) remove(ts []task, id TaskID) {
	t := &ts[id]
	assert(t.link.in == l, "list: task is not on this list")
	if t.link.prev == InvalidTask {
		l.head = t.link.next
	} else {
		ts[t.link.prev].link.next = t.link.next
	}
	if t.link.next == InvalidTask {
		l.tail = t.link.prev
	} else {
		ts[t.link.next].link.prev = t.link.prev
	}
	t.link = listLink{prev: InvalidTask, next: InvalidTask}
	l.n--
}

// each calls fn for every task from head to tail until fn returns false.
// fn must not modify the list.
func (l *taskList) each(ts []task, fn func(t *task) bool) {
	for id := l.head; id != InvalidTask; id = ts[id].link.next {
		if !fn(&ts[id]) {
			return
		}
	}
}

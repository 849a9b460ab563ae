package kernel

import (
	"fmt"
	"math/bits"
)

// prioQueue holds the ready lists of one base priority.
type prioQueue struct {
	lists  [NumPriorities]taskList
	bitmap uint32
}

// runqueue is the two-level ready queue. Bit i of a bitmap is set exactly
// when the matching level has ready tasks; the lowest set bit is the most
// urgent level.
type runqueue struct {
	queues [NumPriorities]prioQueue
	bitmap uint32
	n      int
}

func (rq *runqueue) init() {
	for b := range rq.queues {
		for p := range rq.queues[b].lists {
			rq.queues[b].lists[p].init(listReady)
		}
	}
}

func (rq *runqueue) list(t *task) *taskList {
	return &rq.queues[t.basePrio].lists[t.eff]
}

func (rq *runqueue) pushHead(ts []task, t *task) {
	rq.list(t).pushFront(ts, t.id)
	rq.mark(t)
}

func (rq *runqueue) pushTail(ts []task, t *task) {
	rq.list(t).pushBack(ts, t.id)
	rq.mark(t)
}

func (rq *runqueue) mark(t *task) {
	rq.queues[t.basePrio].bitmap |= 1 << t.eff
	rq.bitmap |= 1 << t.basePrio
	rq.n++
}

func (rq *runqueue) remove(ts []task, t *task) {
	q := &rq.queues[t.basePrio]
	l := &q.lists[t.eff]
	l.remove(ts, t.id)
	if l.empty() {
		q.bitmap &^= 1 << t.eff
		if q.bitmap == 0 {
			rq.bitmap &^= 1 << t.basePrio
		}
	}
	rq.n--
}

// readyAt returns how many tasks are ready at (base, prio).
func (rq *runqueue) readyAt(base, prio uint8) int {
	return rq.queues[base].lists[prio].len()
}

// top returns the most urgent ready task allowed on cpu, or nil.
func (rq *runqueue) top(ts []task, cpu int) *task {
	for outer := rq.bitmap; outer != 0; outer &= outer - 1 {
		q := &rq.queues[bits.TrailingZeros32(outer)]
		for inner := q.bitmap; inner != 0; inner &= inner - 1 {
			l := &q.lists[bits.TrailingZeros32(inner)]
			for id := l.head; id != InvalidTask; id = ts[id].link.next {
				if ts[id].affinity.Has(cpu) {
					return &ts[id]
				}
			}
		}
	}
	return nil
}

// check verifies the bitmap and list invariants.
func (rq *runqueue) check(ts []task) error {
	total := 0
	for b := range rq.queues {
		q := &rq.queues[b]
		for p := range q.lists {
			l := &q.lists[p]
			if (q.bitmap&(1<<p) != 0) != !l.empty() {
				return fmt.Errorf("runqueue: level %d/%d bit=%v len=%d", b, p, q.bitmap&(1<<p) != 0, l.len())
			}
			n := 0
			for id := l.head; id != InvalidTask; id = ts[id].link.next {
				t := &ts[id]
				if t.link.in != l || t.state&StateReady == 0 || int(t.basePrio) != b || int(t.eff) != p {
					return fmt.Errorf("runqueue: task %d (%s) misplaced at level %d/%d", id, t.state, b, p)
				}
				n++
			}
			if n != l.len() {
				return fmt.Errorf("runqueue: level %d/%d counted %d, len %d", b, p, n, l.len())
			}
			total += n
		}
		if (rq.bitmap&(1<<b) != 0) != (q.bitmap != 0) {
			return fmt.Errorf("runqueue: outer bit %d out of sync", b)
		}
	}
	if total != rq.n {
		return fmt.Errorf("runqueue: counted %d ready, n=%d", total, rq.n)
	}
	return nil
}

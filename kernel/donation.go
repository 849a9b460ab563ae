package kernel

import "math/bits"

// donations records the effective priorities a task held before each
// inherited boost. Bit p set means the task may have to fall back to p. The
// highest set bit is the task's own priority at the time of the first boost.
type donations uint32

func (d *donations) push(p uint8) { *d |= 1 << p }
func (d *donations) drop(p uint8) { *d &^= 1 << p }
func (d donations) empty() bool   { return d == 0 }

// lowest returns the most urgent recorded level.
func (d donations) lowest() (uint8, bool) {
	if d == 0 {
		return 0, false
	}
	return uint8(bits.TrailingZeros32(uint32(d))), true
}

// highest returns the least urgent recorded level.
func (d donations) highest() (uint8, bool) {
	if d == 0 {
		return 0, false
	}
	return uint8(31 - bits.LeadingZeros32(uint32(d))), true
}

func (d *donations) pop() (uint8, bool) {
	p, ok := d.lowest()
	if ok {
		d.drop(p)
	}
	return p, ok
}

// raise lends priority p to owner. It reports whether the effective
// priority changed.
func (k *Kernel) raise(cpu int, owner *task, p uint8) bool {
	if owner.eff <= p {
		return false
	}
	owner.donated.push(owner.eff)
	k.setEffective(cpu, owner, p)
	return true
}

// restore withdraws the donation of level p from owner. waiters, when not
// nil, are the tasks still queued on the object the donation came through:
// their levels stop being fallback targets.
func (k *Kernel) restore(cpu int, owner *task, waiters *taskList, p uint8) {
	d := &owner.donated
	if d.empty() {
		return
	}
	hi, _ := d.highest()
	if owner.eff < p {
		// Boosted further since; only forget the level p would fall back to.
		if hi != p {
			d.drop(p)
		}
		return
	}
	if owner.eff > p {
		return
	}
	if waiters != nil {
		waiters.each(k.tasks, func(w *task) bool {
			if w.eff != hi {
				d.drop(w.eff)
			}
			return true
		})
	}
	next, _ := d.pop()
	if d.empty() {
		next = owner.prio
	}
	k.setEffective(cpu, owner, next)
}

// reinherit re-applies the donations owner is still entitled to: the head
// waiter of every inheriting mutex it holds and the ceiling of every
// protected one.
func (k *Kernel) reinherit(cpu int, owner *task) {
	for id := owner.held; id != invalidMutex; id = k.mutexes[id].holdNext {
		m := &k.mutexes[id]
		switch m.attr.Protocol {
		case ProtocolInherit:
			if m.waiters.empty() {
				continue
			}
			w := &k.tasks[m.waiters.front()]
			if compare(owner, w) > 0 {
				k.raise(cpu, owner, w.eff)
			}
		case ProtocolProtect:
			if k.raise(cpu, owner, m.attr.Ceiling) {
				m.boosted = true
			}
		}
	}
}

// rebuild drops every recorded donation of t and derives its effective
// priority again from its own priority and the mutexes it holds.
func (k *Kernel) rebuild(cpu int, t *task) {
	t.donated = 0
	for id := t.held; id != invalidMutex; id = k.mutexes[id].holdNext {
		k.mutexes[id].boosted = false
	}
	k.setEffective(cpu, t, t.prio)
	k.reinherit(cpu, t)
}

// setEffective moves t to effective priority p, keeping every structure t
// sits in ordered.
func (k *Kernel) setEffective(cpu int, t *task, p uint8) {
	if t.eff == p {
		return
	}
	switch {
	case t.state&StateReady != 0:
		k.dequeue(t)
		t.eff = p
		k.enqueue(t)
		k.notifyReady(cpu, t)
	case t.state&StatePending != 0 && t.link.in != nil && t.link.in.kind.priorityOrdered():
		l := t.link.in
		l.remove(k.tasks, t.id)
		t.eff = p
		k.insertByPriority(l, t)
	default:
		t.eff = p
	}
	if t.running() {
		k.poke(cpu, t.cpu)
	}
}

// insertByPriority links t into l behind every waiter at least as urgent.
func (k *Kernel) insertByPriority(l *taskList, t *task) {
	for id := l.head; id != InvalidTask; id = k.tasks[id].link.next {
		if compare(&k.tasks[id], t) > 0 {
			l.insertBefore(k.tasks, id, t.id)
			return
		}
	}
	l.pushBack(k.tasks, t.id)
}

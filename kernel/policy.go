package kernel

import "math"

// fifoSlice stands in for an unbounded slice.
const fifoSlice = math.MaxInt64 / 2

// schedPolicy is the per-policy part of enqueueing and slice accounting.
type schedPolicy interface {
	enqueue(k *Kernel, t *task)
	charge(t *task, used uint64)
	refill(k *Kernel, t *task)
}

var policies = [...]schedPolicy{
	PolicyRR:   rrPolicy{},
	PolicyFIFO: fifoPolicy{},
	PolicyIdle: idlePolicy{},
}

func (t *task) ops() schedPolicy { return policies[t.policy] }

type rrPolicy struct{}

// enqueue puts a task that still has budget back at the head of its level,
// so a preempted task resumes before its peers. An exhausted task gets a
// fresh slice and goes to the tail.
func (rrPolicy) enqueue(k *Kernel, t *task) {
	if t.slice > int64(k.cfg.SliceFloor) {
		k.rq.pushHead(k.tasks, t)
		return
	}
	t.slice = k.freshSlice(t)
	k.rq.pushTail(k.tasks, t)
}

func (rrPolicy) charge(t *task, used uint64) { t.slice -= int64(used) }

func (rrPolicy) refill(k *Kernel, t *task) {
	if t.slice <= int64(k.cfg.SliceFloor) {
		t.slice = k.freshSlice(t)
	}
}

type fifoPolicy struct{}

func (fifoPolicy) enqueue(k *Kernel, t *task) {
	if t.slice > int64(k.cfg.SliceFloor) && t.running() {
		k.rq.pushHead(k.tasks, t)
		return
	}
	t.slice = fifoSlice
	k.rq.pushTail(k.tasks, t)
}

func (fifoPolicy) charge(*task, uint64) {}

func (fifoPolicy) refill(k *Kernel, t *task) {
	if t.slice <= int64(k.cfg.SliceFloor) {
		t.slice = fifoSlice
	}
}

type idlePolicy struct{}

func (idlePolicy) enqueue(*Kernel, *task) {}
func (idlePolicy) charge(*task, uint64)   {}
func (idlePolicy) refill(*Kernel, *task)  {}

// freshSlice sizes a new round-robin slice: SliceMax when t is alone at its
// level, shrinking linearly to SliceMin as SliceReadyMax peers are ready.
func (k *Kernel) freshSlice(t *task) int64 {
	c := &k.cfg
	ready := k.rq.readyAt(t.basePrio, t.eff)
	if ready >= c.SliceReadyMax {
		return int64(c.SliceMin)
	}
	span := c.SliceMax - c.SliceMin
	return int64(c.SliceMin + uint64(c.SliceReadyMax-ready)*span/uint64(c.SliceReadyMax))
}

package kernel

import "kestrel/kernel/sortlink"

// TimerID is the handle of a software timer.
type TimerID uint16

const (
	invalidTimer TimerID = 0xFFFF
	timerMagic           = 0x54494D52
)

// TimerMode selects whether a timer re-arms after firing.
type TimerMode uint8

const (
	TimerOneShot TimerMode = iota
	TimerPeriodic
)

func (m TimerMode) String() string {
	switch m {
	case TimerOneShot:
		return "oneshot"
	case TimerPeriodic:
		return "periodic"
	default:
		return "unknown"
	}
}

// TimerAttr configures a software timer.
type TimerAttr struct {
	Mode TimerMode
	// Interval is the period in ticks.
	Interval uint32
	// Handler runs in interrupt context of cpu, the core that expired the
	// timer. It must not block; SemPost and TimerStart are allowed and
	// should pass cpu as the calling core.
	Handler func(cpu int, id TimerID)
}

type timer struct {
	magic   uint32
	attr    TimerAttr
	running bool
	node    sortlink.Node
	expiry  uint64
	fired   uint64
}

type firedTimer struct {
	id      TimerID
	handler func(int, TimerID)
}

func (k *Kernel) timerByID(id TimerID) (*timer, bool) {
	if int(id) >= len(k.timers) {
		return nil, false
	}
	tm := &k.timers[id]
	if tm.magic != timerMagic {
		return nil, false
	}
	return tm, true
}

// TimerCreate allocates a stopped timer.
func (k *Kernel) TimerCreate(attr TimerAttr) (TimerID, Status) {
	if attr.Interval == 0 || attr.Handler == nil || attr.Mode > TimerPeriodic {
		return invalidTimer, StatusInvalid
	}
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	for i := range k.timers {
		tm := &k.timers[i]
		if tm.magic == timerMagic {
			continue
		}
		*tm = timer{magic: timerMagic, attr: attr}
		tm.node.Init(uint32(i))
		return TimerID(i), StatusOK
	}
	return invalidTimer, StatusNoResource
}

// TimerStart arms a timer Interval ticks from now, restarting it if it is
// already running. The timer lands on the least loaded core; cpu is the
// calling core.
func (k *Kernel) TimerStart(cpu int, id TimerID) Status {
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	k.tmrMu.Lock()
	tm, ok := k.timerByID(id)
	if !ok {
		k.tmrMu.Unlock()
		return StatusBadHandle
	}
	if tm.running {
		k.links.Remove(&tm.node)
	}
	tm.running = true
	target := k.arm(tm, k.hw.Now())
	k.tmrMu.Unlock()

	k.retarget(cpu, target)
	return StatusOK
}

func (k *Kernel) arm(tm *timer, from uint64) int {
	tm.expiry = sortlink.Deadline(from, k.TicksToCycles(tm.attr.Interval))
	return k.links.Add(sortlink.Timers, &tm.node, tm.expiry)
}

// retarget makes the core now holding the earliest deadline aware of it.
func (k *Kernel) retarget(cpu, target int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if target == cpu {
		k.program(cpu, k.hw.Now())
		return
	}
	k.sendIPI(cpu, MaskOf(target))
}

// TimerStop disarms a running timer.
func (k *Kernel) TimerStop(id TimerID) Status {
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	tm, ok := k.timerByID(id)
	if !ok {
		return StatusBadHandle
	}
	if !tm.running {
		return StatusNotRunning
	}
	k.links.Remove(&tm.node)
	tm.running = false
	return StatusOK
}

// TimerDelete stops and frees a timer.
func (k *Kernel) TimerDelete(id TimerID) Status {
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	tm, ok := k.timerByID(id)
	if !ok {
		return StatusBadHandle
	}
	k.links.Remove(&tm.node)
	*tm = timer{}
	tm.node.Init(uint32(id))
	return StatusOK
}

// TimerRemaining returns the ticks left until a running timer fires.
func (k *Kernel) TimerRemaining(id TimerID) (uint32, Status) {
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	tm, ok := k.timerByID(id)
	if !ok {
		return 0, StatusBadHandle
	}
	if !tm.running {
		return 0, StatusNotRunning
	}
	left := tm.node.Remaining(k.hw.Now())
	cpt := k.cfg.CyclesPerTick
	return uint32((left + cpt - 1) / cpt), StatusOK
}

// TimerFired returns how many times a timer has expired.
func (k *Kernel) TimerFired(id TimerID) (uint64, Status) {
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	tm, ok := k.timerByID(id)
	if !ok {
		return 0, StatusBadHandle
	}
	return tm.fired, StatusOK
}

// expireTimers pops the due timers of cpu and re-arms periodic ones from
// their previous expiry, so the period does not drift with tick latency.
func (k *Kernel) expireTimers(cpu int) []firedTimer {
	k.tmrMu.Lock()
	defer k.tmrMu.Unlock()
	now := k.hw.Now()
	l := k.links.Link(cpu, sortlink.Timers)
	var fired []firedTimer
	var remote CPUMask
	for n := l.PopExpired(now); n != nil; n = l.PopExpired(now) {
		id := TimerID(n.Owner)
		tm := &k.timers[id]
		tm.fired++
		k.stats.timerFires.Add(1)
		fired = append(fired, firedTimer{id: id, handler: tm.attr.Handler})

		if tm.attr.Mode != TimerPeriodic {
			tm.running = false
			continue
		}
		from := tm.expiry
		if sortlink.Deadline(from, k.TicksToCycles(tm.attr.Interval)) <= now {
			// Fell more than a period behind; skip the missed expiries.
			from = now
		}
		if target := k.arm(tm, from); target != cpu {
			remote |= MaskOf(target)
		}
	}
	if remote != 0 {
		k.sendIPI(cpu, remote)
	}
	return fired
}

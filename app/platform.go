package app

import (
	"sync"
	"sync/atomic"
	"time"

	"kestrel/kernel"
	"kestrel/kernel/sortlink"
)

// hostPlatform runs each simulated core on a goroutine. Cycles are
// nanoseconds since boot; IPIs and timer expiries are one-slot channels a
// core drains between task steps.
type hostPlatform struct {
	start    time.Time
	cores    []hostCore
	switches atomic.Uint64
}

type hostCore struct {
	ipi  chan struct{}
	tick chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	deadline uint64
}

func newHostPlatform(cpus int) *hostPlatform {
	p := &hostPlatform{start: time.Now(), cores: make([]hostCore, cpus)}
	for i := range p.cores {
		p.cores[i].ipi = make(chan struct{}, 1)
		p.cores[i].tick = make(chan struct{}, 1)
		p.cores[i].deadline = sortlink.Invalid
	}
	return p
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *hostPlatform) Now() uint64 { return uint64(time.Since(p.start)) }

func (p *hostPlatform) SendIPI(target kernel.CPUMask) {
	for cpu := range p.cores {
		if target.Has(cpu) {
			signal(p.cores[cpu].ipi)
		}
	}
}

func (p *hostPlatform) Switch(cpu int, from, to kernel.TaskID) { p.switches.Add(1) }

func (p *hostPlatform) SetTimer(cpu int, deadline uint64) {
	c := &p.cores[cpu]
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.deadline = deadline
	if deadline == sortlink.Invalid {
		return
	}
	var d time.Duration
	if now := p.Now(); deadline > now {
		d = time.Duration(deadline - now)
	}
	// A stale expiry racing with Stop only costs one spurious tick.
	c.timer = time.AfterFunc(d, func() { signal(c.tick) })
}

func (p *hostPlatform) nextDeadline(cpu int) uint64 {
	c := &p.cores[cpu]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

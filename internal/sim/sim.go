// Package sim drives a kernel on a virtual clock from a single goroutine.
//
// Every core is serviced in turn: pending IPIs are delivered, expired
// wakeups raise a tick, then the current task runs one step. Task steps
// advance the clock through Work, so a run is fully deterministic.
package sim

import (
	"fmt"
	"io"

	"kestrel/kernel"
	"kestrel/kernel/sortlink"
)

// DefaultQuantum is the clock advance of one unit of task work (250us at
// the default nanosecond clock).
const DefaultQuantum = 250_000

// Options tune a simulated machine.
type Options struct {
	// Quantum is the number of cycles one Work call consumes.
	Quantum uint64
	// Out receives kernel log lines prefixed with the virtual time. Nil
	// keeps any Logger already set in the kernel config.
	Out io.Writer
}

// Platform is a virtual kernel.Platform. It is not safe for concurrent use.
type Platform struct {
	now      uint64
	ipi      []bool
	deadline []uint64
	switches []uint64
	ipis     uint64
}

func newPlatform(cpus int) *Platform {
	p := &Platform{
		ipi:      make([]bool, cpus),
		deadline: make([]uint64, cpus),
		switches: make([]uint64, cpus),
	}
	for i := range p.deadline {
		p.deadline[i] = sortlink.Invalid
	}
	return p
}

func (p *Platform) Now() uint64 { return p.now }

func (p *Platform) SendIPI(target kernel.CPUMask) {
	for cpu := range p.ipi {
		if target.Has(cpu) {
			p.ipi[cpu] = true
			p.ipis++
		}
	}
}

func (p *Platform) Switch(cpu int, from, to kernel.TaskID) { p.switches[cpu]++ }

func (p *Platform) SetTimer(cpu int, deadline uint64) { p.deadline[cpu] = deadline }

// Deadline returns the wakeup programmed for cpu.
func (p *Platform) Deadline(cpu int) uint64 { return p.deadline[cpu] }

// Switches returns the number of switches performed on cpu.
func (p *Platform) Switches(cpu int) uint64 { return p.switches[cpu] }

// IPIs returns the number of IPIs delivered to any core.
func (p *Platform) IPIs() uint64 { return p.ipis }

func (p *Platform) nextDeadline() uint64 {
	next := sortlink.Invalid
	for _, d := range p.deadline {
		if d < next {
			next = d
		}
	}
	return next
}

// Machine is a kernel bound to a virtual platform.
type Machine struct {
	K *kernel.Kernel
	P *Platform

	quantum uint64
	steps   uint64
}

// New builds a kernel from cfg on a fresh virtual platform.
func New(cfg kernel.Config, opts Options) (*Machine, error) {
	if cfg.CPUs == 0 {
		cfg.CPUs = 1
	}
	if cfg.CPUs < 1 || cfg.CPUs > kernel.MaxCPUs {
		return nil, fmt.Errorf("sim: cpus %d out of range", cfg.CPUs)
	}
	if opts.Quantum == 0 {
		opts.Quantum = DefaultQuantum
	}
	p := newPlatform(cfg.CPUs)
	if opts.Out != nil {
		cfg.Logger = &clockLogger{p: p, w: opts.Out}
	}
	k, err := kernel.New(cfg, p)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	return &Machine{K: k, P: p, quantum: opts.Quantum}, nil
}

// Work advances the clock by one quantum. Task bodies call it once per unit
// of simulated computation.
func (m *Machine) Work() { m.P.now += m.quantum }

// Now returns the virtual clock.
func (m *Machine) Now() uint64 { return m.P.now }

// Steps returns the number of task steps run so far.
func (m *Machine) Steps() uint64 { return m.steps }

// RunFor runs the machine until d cycles of virtual time have passed. The
// kernel invariants are checked after every round.
func (m *Machine) RunFor(d uint64) error {
	end := m.P.now + d
	for m.P.now < end {
		start := m.P.now
		busy := false
		for cpu := range m.P.ipi {
			m.service(cpu)
			if m.K.Step(cpu) {
				busy = true
				m.steps++
			}
		}
		if err := m.K.Check(); err != nil {
			return fmt.Errorf("sim: at %d: %w", m.P.now, err)
		}
		if busy {
			// A round of steps that did no work still costs time.
			if m.P.now == start {
				m.P.now += m.quantum
			}
			continue
		}
		if m.ipiPending() {
			continue
		}
		next := m.P.nextDeadline()
		if next >= end {
			m.P.now = end
			break
		}
		if next > m.P.now {
			m.P.now = next
		}
	}
	return nil
}

func (m *Machine) ipiPending() bool {
	for _, v := range m.P.ipi {
		if v {
			return true
		}
	}
	return false
}

func (m *Machine) service(cpu int) {
	if m.P.ipi[cpu] {
		m.P.ipi[cpu] = false
		m.K.HandleIPI(cpu)
	}
	if m.P.deadline[cpu] <= m.P.now {
		m.P.deadline[cpu] = sortlink.Invalid
		m.K.Tick(cpu)
	}
}

type clockLogger struct {
	p *Platform
	w io.Writer
}

func (l *clockLogger) WriteLineString(s string) {
	fmt.Fprintf(l.w, "%9.3fms %s\n", float64(l.p.now)/1e6, s)
}

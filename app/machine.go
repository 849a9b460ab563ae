package app

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"kestrel/hal"
	"kestrel/internal/scenario"
	"kestrel/kernel"

	"golang.org/x/sync/errgroup"
)

// checkEvery is the number of steps a core runs between invariant checks.
const checkEvery = 4096

// MachineConfig describes a host machine.
type MachineConfig struct {
	CPUs int
	// Trace sends kernel and task log lines to the logger.
	Trace bool
	// Pin binds each core goroutine to a host CPU.
	Pin bool
	// Quantum is the wall time one unit of task work sleeps.
	Quantum time.Duration
	// Scenario names the workload to load at boot ("" loads none).
	Scenario string
}

// Machine runs a kernel on real goroutines, one per simulated core.
type Machine struct {
	k    *kernel.Kernel
	plat *hostPlatform
	log  hal.Logger
	cfg  MachineConfig

	steps []atomic.Uint64
}

// NewMachine builds the kernel and loads the configured scenario.
func NewMachine(cfg MachineConfig, log hal.Logger) (*Machine, error) {
	if cfg.CPUs <= 0 {
		cfg.CPUs = 2
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = 250 * time.Microsecond
	}
	plat := newHostPlatform(cfg.CPUs)
	kcfg := kernel.Config{CPUs: cfg.CPUs, Trace: cfg.Trace}
	if cfg.Trace && log != nil {
		kcfg.Logger = log
	}
	k, err := kernel.New(kcfg, plat)
	if err != nil {
		return nil, fmt.Errorf("machine: %w", err)
	}
	m := &Machine{k: k, plat: plat, log: log, cfg: cfg, steps: make([]atomic.Uint64, cfg.CPUs)}

	if cfg.Scenario != "" {
		s, ok := scenario.Lookup(cfg.Scenario)
		if !ok {
			return nil, fmt.Errorf("machine: unknown scenario %q", cfg.Scenario)
		}
		if err := s.Load(k, scenario.Env{Work: m.work}); err != nil {
			return nil, fmt.Errorf("machine: %w", err)
		}
	}
	return m, nil
}

// Kernel returns the machine's kernel.
func (m *Machine) Kernel() *kernel.Kernel { return m.k }

// Steps returns the number of task steps cpu has run.
func (m *Machine) Steps(cpu int) uint64 { return m.steps[cpu].Load() }

func (m *Machine) work() { time.Sleep(m.cfg.Quantum) }

func (m *Machine) logf(format string, args ...any) {
	if m.log != nil {
		m.log.WriteLineString(fmt.Sprintf(format, args...))
	}
}

// Run drives every core until ctx ends or a core fails.
func (m *Machine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for cpu := 0; cpu < m.k.CPUs(); cpu++ {
		cpu := cpu
		g.Go(func() error { return m.core(ctx, cpu) })
	}
	return g.Wait()
}

func (m *Machine) core(ctx context.Context, cpu int) error {
	if m.cfg.Pin {
		if err := hal.PinThread(cpu); err != nil {
			m.logf("machine: cpu%d not pinned: %v", cpu, err)
		}
		defer runtime.UnlockOSThread()
	}
	c := &m.plat.cores[cpu]
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ipi:
			m.k.HandleIPI(cpu)
			continue
		case <-c.tick:
			m.k.Tick(cpu)
			continue
		default:
		}

		if m.k.Step(cpu) {
			if n := m.steps[cpu].Add(1); n%checkEvery == 0 {
				if err := m.k.Check(); err != nil {
					return fmt.Errorf("cpu%d: %w", cpu, err)
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.ipi:
			m.k.HandleIPI(cpu)
		case <-c.tick:
			m.k.Tick(cpu)
		}
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"kestrel/hal"
	"kestrel/internal/buildinfo"
)

// Config selects the machine and how often the monitor redraws.
type Config struct {
	Machine MachineConfig
	// RefreshMs is the monitor period in milliseconds of hal time.
	RefreshMs uint64
	// TextMonitor writes the monitor tables to the logger instead of
	// drawing them.
	TextMonitor bool
}

// DefaultConfig is the configuration the entry points start from.
func DefaultConfig() Config {
	return Config{
		Machine:   MachineConfig{CPUs: 2, Scenario: "all"},
		RefreshMs: 250,
	}
}

type system struct {
	ctx context.Context
	h   hal.HAL
	m   *Machine
	mon *Monitor
	cfg Config

	done chan error
	last uint64
	seen bool
}

// New boots the machine on h and starts its cores. The returned step
// function redraws the monitor when due and reports the machine's exit
// error; runners call it once per frame.
func New(ctx context.Context, h hal.HAL, cfg Config) func() error {
	s, err := newSystem(ctx, h, cfg)
	if err != nil {
		return func() error { return err }
	}
	return s.step
}

// Run boots the machine and polls the step function forever (TinyGo
// entrypoint).
func Run(h hal.HAL) {
	step := New(context.Background(), h, DefaultConfig())
	for {
		if err := step(); err != nil {
			h.Logger().WriteLineString("kestrel: " + err.Error())
			select {}
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newSystem(ctx context.Context, h hal.HAL, cfg Config) (*system, error) {
	installPanicHandler(h)
	if cfg.RefreshMs == 0 {
		cfg.RefreshMs = DefaultConfig().RefreshMs
	}

	log := h.Logger()
	bootScreen(h, "starting "+cfg.Machine.Scenario)
	m, err := NewMachine(cfg.Machine, log)
	if err != nil {
		return nil, err
	}
	if log != nil {
		kc := m.k.Config()
		log.WriteLineString(fmt.Sprintf("kestrel %s: %d cpus, %d task slots, slice %v..%v, scenario %q",
			buildinfo.Long(), kc.CPUs, kc.MaxTasks, time.Duration(kc.SliceMin), time.Duration(kc.SliceMax), cfg.Machine.Scenario))
	}

	mon := NewMonitor(m.k, h.Display(), nil, h.LED())
	if cfg.TextMonitor {
		mon = NewMonitor(m.k, nil, log, h.LED())
	}
	s := &system{
		ctx:  ctx,
		h:    h,
		m:    m,
		mon:  mon,
		cfg:  cfg,
		done: make(chan error, 1),
	}
	go func() { s.done <- m.Run(ctx) }()
	return s, nil
}

func (s *system) step() error {
	select {
	case err := <-s.done:
		s.done <- err
		if err == nil {
			err = s.ctx.Err()
		}
		return err
	default:
	}

	var now uint64
	select {
	case now = <-s.h.Time().Ticks():
	default:
		return nil
	}
	if s.seen && now-s.last < s.cfg.RefreshMs {
		return nil
	}
	s.seen = true
	s.last = now
	s.mon.Render()
	return nil
}

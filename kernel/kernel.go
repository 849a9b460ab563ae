// Package kernel is a preemptive SMP scheduler core: a two-level
// highest-priority-first ready queue, round-robin and FIFO policies,
// per-core deadline lists for timeouts and software timers, and
// priority-inheriting mutexes, reader-writer locks and semaphores.
//
// Tasks are cooperative step functions (see Task). The platform layer owns
// the cores, the clock and inter-processor interrupts; the Kernel decides
// what runs where and when each core must wake up next.
package kernel

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"kestrel/kernel/sortlink"
)

// percpu is the scheduler state of one core. All fields are guarded by
// Kernel.mu.
type percpu struct {
	running TaskID
	idle    TaskID

	// lockCount is the preemption-disable nesting depth.
	lockCount  int
	pending    bool
	intNesting int
	intStart   uint64
	// response is the last deadline handed to Platform.SetTimer.
	response uint64

	ipis uint64
}

type counters struct {
	switches   atomic.Uint64
	ipis       atomic.Uint64
	timeouts   atomic.Uint64
	timerFires atomic.Uint64
	deleted    atomic.Uint64
}

// Kernel is the scheduler of one machine.
//
// Every exported method takes the scheduler lock. Methods with a cpu
// argument must be called from the goroutine driving that core.
type Kernel struct {
	_ [0]func() // prevent accidental copying.

	cfg     Config
	hw      Platform
	log     Logger
	allCPUs CPUMask

	// mu is the scheduler lock. When both are needed it is taken before any
	// sortlink.Link lock.
	mu      sync.Mutex
	tasks   []task
	cpus    []percpu
	rq      runqueue
	mutexes []mutex
	rwlocks []rwlock
	sems    []sem

	links *sortlink.Set

	// tmrMu guards timers. It is never held together with mu.
	tmrMu  sync.Mutex
	timers []timer

	stats counters
}

// New creates a kernel with one idle task per core. Every core starts out
// running its idle task.
func New(cfg Config, hw Platform) (*Kernel, error) {
	if hw == nil {
		return nil, fmt.Errorf("kernel: nil platform")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:     cfg,
		hw:      hw,
		log:     cfg.Logger,
		allCPUs: AllCPUs >> uint(MaxCPUs-cfg.CPUs),
		tasks:   make([]task, cfg.MaxTasks),
		cpus:    make([]percpu, cfg.CPUs),
		mutexes: make([]mutex, cfg.MaxMutexes),
		rwlocks: make([]rwlock, cfg.MaxRWLocks),
		sems:    make([]sem, cfg.MaxSems),
		timers:  make([]timer, cfg.MaxTimers),
		links:   sortlink.NewSet(cfg.CPUs),
	}
	for i := range k.tasks {
		k.tasks[i].id = TaskID(i)
		k.resetTask(&k.tasks[i])
	}
	for i := range k.timers {
		k.timers[i].node.Init(uint32(i))
	}
	k.rq.init()

	now := hw.Now()
	for cpu := range k.cpus {
		t := &k.tasks[cpu]
		t.name = "idle/" + strconv.Itoa(cpu)
		t.policy = PolicyIdle
		t.system = true
		t.basePrio = LowestPriority
		t.prio = LowestPriority
		t.eff = LowestPriority
		t.affinity = MaskOf(cpu)
		t.state = StateRunning
		t.cpu = cpu
		t.lastCPU = cpu
		t.startTime = now

		pc := &k.cpus[cpu]
		pc.running = t.id
		pc.idle = t.id
		pc.response = sortlink.Invalid
	}

	k.logf("kernel: %d cpus, %d task slots, tick %d cycles", cfg.CPUs, cfg.MaxTasks, cfg.CyclesPerTick)
	return k, nil
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// CPUs returns the number of cores.
func (k *Kernel) CPUs() int { return len(k.cpus) }

// Now returns the platform clock.
func (k *Kernel) Now() uint64 { return k.hw.Now() }

// Current returns the task running on cpu.
func (k *Kernel) Current(cpu int) TaskID {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return InvalidTask
	}
	return k.cpus[cpu].running
}

func (k *Kernel) cpuOK(cpu int) bool { return cpu >= 0 && cpu < len(k.cpus) }

func (k *Kernel) logf(format string, args ...any) {
	if k.log == nil {
		return
	}
	k.log.WriteLineString(fmt.Sprintf(format, args...))
}

// TicksToCycles converts a tick count to platform cycles.
func (k *Kernel) TicksToCycles(ticks uint32) uint64 {
	return uint64(ticks) * k.cfg.CyclesPerTick
}

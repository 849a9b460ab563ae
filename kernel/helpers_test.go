package kernel

import "testing"

const testTick = 1000

type switchRecord struct {
	cpu      int
	from, to TaskID
}

// fakePlatform is a single-threaded platform with a hand-driven clock. IPIs
// are recorded, not delivered; tests call HandleIPI themselves.
type fakePlatform struct {
	now      uint64
	ipis     []CPUMask
	switches []switchRecord
	timers   map[int]uint64
}

func (p *fakePlatform) Now() uint64 { return p.now }

func (p *fakePlatform) SendIPI(target CPUMask) { p.ipis = append(p.ipis, target) }

func (p *fakePlatform) Switch(cpu int, from, to TaskID) {
	p.switches = append(p.switches, switchRecord{cpu: cpu, from: from, to: to})
}

func (p *fakePlatform) SetTimer(cpu int, deadline uint64) {
	if p.timers == nil {
		p.timers = make(map[int]uint64)
	}
	p.timers[cpu] = deadline
}

func newTestKernel(t *testing.T, cpus int) (*Kernel, *fakePlatform) {
	t.Helper()
	p := &fakePlatform{}
	k, err := New(Config{CPUs: cpus, MaxTasks: 24, CyclesPerTick: testTick}, p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return k, p
}

func spawn(t *testing.T, k *Kernel, name string, prio uint8) TaskID {
	t.Helper()
	return spawnAttr(t, k, TaskAttr{Name: name, Priority: prio})
}

func spawnAttr(t *testing.T, k *Kernel, attr TaskAttr) TaskID {
	t.Helper()
	id, st := k.CreateTask(0, attr)
	if st != StatusOK {
		t.Fatalf("CreateTask(%s) = %s", attr.Name, st)
	}
	return id
}

// advance moves the clock tick by tick, delivering each tick to cpu.
func advance(k *Kernel, p *fakePlatform, cpu, ticks int) {
	for i := 0; i < ticks; i++ {
		p.now += testTick
		k.Tick(cpu)
	}
}

func mustRun(t *testing.T, k *Kernel, cpu int, want TaskID) {
	t.Helper()
	if got := k.Current(cpu); got != want {
		t.Fatalf("expected task %d running on cpu%d, got %d", want, cpu, got)
	}
	if err := k.Check(); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
}

func effective(t *testing.T, k *Kernel, id TaskID) uint8 {
	t.Helper()
	_, eff, st := k.Priority(id)
	if st != StatusOK {
		t.Fatalf("Priority(%d) = %s", id, st)
	}
	return eff
}

func mustStatus(t *testing.T, what string, got, want Status) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func waitResult(k *Kernel, id TaskID) (Status, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	w := k.tasks[id].wait
	return w.status, w.done
}

package scenario

import (
	"bytes"
	"strings"
	"testing"

	"kestrel/internal/sim"
	"kestrel/kernel"
)

const ms = 1_000_000

func runScenario(t *testing.T, name string, cpus int, d uint64) (*sim.Machine, string) {
	t.Helper()
	s, ok := Lookup(name)
	if !ok {
		t.Fatalf("Lookup(%q) not found", name)
	}
	var out bytes.Buffer
	m, err := sim.New(kernel.Config{CPUs: cpus}, sim.Options{Out: &out})
	if err != nil {
		t.Fatalf("sim.New() error: %v", err)
	}
	if err := s.Load(m.K, Env{Work: m.Work}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := m.RunFor(d); err != nil {
		t.Fatalf("RunFor() error: %v", err)
	}
	return m, out.String()
}

func TestEveryScenarioRuns(t *testing.T) {
	for _, name := range append(Names(), "all") {
		t.Run(name, func(t *testing.T) {
			for _, cpus := range []int{1, 2, 4} {
				m, _ := runScenario(t, name, cpus, 200*ms)
				if m.Steps() == 0 {
					t.Fatalf("expected steps on %d cpus", cpus)
				}
			}
		})
	}
}

func TestInversionBoostsLowTask(t *testing.T) {
	_, log := runScenario(t, "inversion", 1, 100*ms)
	if !strings.Contains(log, "inv-low: running at priority 5 (own 20)") {
		t.Fatalf("expected inv-low boosted to 5, log:\n%s", log)
	}
	if !strings.Contains(log, "inv-high: acquired") {
		t.Fatalf("expected inv-high to get the mutex, log:\n%s", log)
	}
	if strings.Contains(log, "inv-high: timed out") {
		t.Fatalf("expected no timeout with inheritance, log:\n%s", log)
	}
}

func TestRoundRobinWorkersShareTheCore(t *testing.T) {
	_, log := runScenario(t, "rr", 1, 400*ms)
	for _, name := range []string{"rr0", "rr1", "rr2"} {
		if !strings.Contains(log, name+": round 8") {
			t.Fatalf("expected %s to make progress, log:\n%s", name, log)
		}
	}
}

func TestTimerScenarioConsumesPeriods(t *testing.T) {
	m, log := runScenario(t, "timers", 2, 120*ms)
	if !strings.Contains(log, "tmr-consumer: 10 periods consumed") {
		t.Fatalf("expected ten periods consumed, log:\n%s", log)
	}
	if st := m.K.Stats(); st.TimerFires < 10 {
		t.Fatalf("expected at least 10 timer fires, got %d", st.TimerFires)
	}
}

func TestMigrantVisitsEveryCore(t *testing.T) {
	_, log := runScenario(t, "migrate", 3, 100*ms)
	for _, want := range []string{"on cpu0", "on cpu1", "on cpu2"} {
		if !strings.Contains(log, want) {
			t.Fatalf("expected migrant %s, log:\n%s", want, log)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("nope"); ok {
		t.Fatal("expected unknown scenario rejected")
	}
	if !strings.Contains(Usage(), "inversion") {
		t.Fatalf("expected usage to list scenarios, got %q", Usage())
	}
}

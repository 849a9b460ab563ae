package kernel

import (
	"strings"
	"testing"
)

func TestSnapshotReportsTasks(t *testing.T) {
	k, _ := newTestKernel(t, 2)
	a := spawn(t, k, "worker", 10)
	k.Schedule(0)

	infos := k.Snapshot(nil)
	if len(infos) != 3 {
		t.Fatalf("expected 2 idle tasks plus worker, got %d", len(infos))
	}
	var found bool
	for _, ti := range infos {
		if ti.ID != a {
			if ti.Policy != PolicyIdle || !ti.System {
				t.Fatalf("expected idle system task, got %+v", ti)
			}
			continue
		}
		found = true
		if ti.State&StateRunning == 0 || ti.CPU != 0 || ti.Priority != 10 {
			t.Fatalf("unexpected worker info %+v", ti)
		}
		if !strings.Contains(ti.String(), "worker") {
			t.Fatalf("expected name in %q", ti.String())
		}
	}
	if !found {
		t.Fatal("expected worker in snapshot")
	}

	cpus := k.CPUInfo(nil)
	if len(cpus) != 2 || cpus[0].Running != a || !cpus[1].Idle {
		t.Fatalf("unexpected cpu info %+v", cpus)
	}
}

func TestStateString(t *testing.T) {
	if got := (StatePending | StatePendTime | StateSuspended).String(); got != "pending|pendtime|suspended" {
		t.Fatalf("expected pending|pendtime|suspended, got %q", got)
	}
	if got := State(0).String(); got != "unused" {
		t.Fatalf("expected unused, got %q", got)
	}
	if got := (MaskOf(0) | MaskOf(3)).String(); got != "{0,3}" {
		t.Fatalf("expected {0,3}, got %q", got)
	}
}

func TestDonationsBitmap(t *testing.T) {
	var d donations
	d.push(20)
	d.push(10)
	if lo, _ := d.lowest(); lo != 10 {
		t.Fatalf("expected lowest 10, got %d", lo)
	}
	if hi, _ := d.highest(); hi != 20 {
		t.Fatalf("expected highest 20, got %d", hi)
	}
	if p, _ := d.pop(); p != 10 {
		t.Fatalf("expected pop 10, got %d", p)
	}
	if p, _ := d.pop(); p != 20 {
		t.Fatalf("expected pop 20, got %d", p)
	}
	if !d.empty() {
		t.Fatal("expected empty bitmap")
	}
}

func TestCheckReportsCorruption(t *testing.T) {
	cases := []struct {
		name    string
		corrupt func(k *Kernel, a TaskID, rw RWLockID)
	}{
		{"stale donation", func(k *Kernel, a TaskID, _ RWLockID) {
			k.tasks[a].donated.push(k.tasks[a].prio)
		}},
		{"boost without donation", func(k *Kernel, a TaskID, _ RWLockID) {
			k.tasks[a].eff--
		}},
		{"effective below own", func(k *Kernel, a TaskID, _ RWLockID) {
			k.tasks[a].donated.push(15)
			k.tasks[a].eff = 15
		}},
		{"rwlock writer without write hold", func(k *Kernel, a TaskID, rw RWLockID) {
			k.rwlocks[rw].count = 2
			k.rwlocks[rw].writer = a
		}},
		{"rwlock write hold by dead task", func(k *Kernel, _ TaskID, rw RWLockID) {
			k.rwlocks[rw].count = -1
			k.rwlocks[rw].writer = 20
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, _ := newTestKernel(t, 1)
			a := spawn(t, k, "a", 10)
			k.Schedule(0)
			rw, _ := k.RWLockCreate()
			mustRun(t, k, 0, a)

			k.mu.Lock()
			tc.corrupt(k, a, rw)
			k.mu.Unlock()
			if err := k.Check(); err == nil {
				t.Fatal("expected Check() to report an error")
			}
		})
	}
}

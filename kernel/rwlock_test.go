package kernel

import "testing"

func rwState(t *testing.T, k *Kernel, rw RWLockID) (int32, RWMode) {
	t.Helper()
	count, mode, st := k.RWLockState(rw)
	if st != StatusOK {
		t.Fatalf("RWLockState = %s", st)
	}
	return count, mode
}

func TestRWLockWriterPreferredOverLessUrgentReaders(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	r1 := spawn(t, k, "r1", 10)
	k.Schedule(0)
	rw, _ := k.RWLockCreate()
	mustStatus(t, "RLock r1", k.RLock(0, rw, WaitForever), StatusOK)

	w := spawn(t, k, "w", 5)
	k.Schedule(0)
	mustStatus(t, "WLock w", k.WLock(0, rw, WaitForever), StatusPending)
	mustRun(t, k, 0, r1)

	r2 := spawn(t, k, "r2", 8)
	k.Schedule(0)
	mustRun(t, k, 0, r2)
	mustStatus(t, "RLock r2", k.RLock(0, rw, WaitForever), StatusPending)
	mustRun(t, k, 0, r1)
	if count, mode := rwState(t, k, rw); count != 1 || mode != RWWriteFirst {
		t.Fatalf("expected 1 reader in write-first mode, got %d %s", count, mode)
	}

	mustStatus(t, "RWUnlock r1", k.RWUnlock(0, rw), StatusOK)
	if count, _ := rwState(t, k, rw); count != -1 {
		t.Fatalf("expected writer to hold the lock, got count %d", count)
	}
	k.Schedule(0)
	mustRun(t, k, 0, w)

	mustStatus(t, "RWUnlock w", k.RWUnlock(0, rw), StatusOK)
	if count, mode := rwState(t, k, rw); count != 1 || mode != RWNone {
		t.Fatalf("expected r2 admitted with nobody waiting, got %d %s", count, mode)
	}
}

func TestRWLockReadFirstWakesReadersUpToHeadWriter(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	w := spawn(t, k, "w", 20)
	k.Schedule(0)
	rw, _ := k.RWLockCreate()
	mustStatus(t, "WLock w", k.WLock(0, rw, WaitForever), StatusOK)

	waits := []struct {
		name  string
		prio  uint8
		write bool
	}{
		{"w2", 8, true},
		{"r3", 12, false},
		{"r2", 6, false},
		{"r1", 3, false},
	}
	ids := make(map[string]TaskID)
	for _, wt := range waits {
		id := spawn(t, k, wt.name, wt.prio)
		ids[wt.name] = id
		k.Schedule(0)
		mustRun(t, k, 0, id)
		var st Status
		if wt.write {
			st = k.WLock(0, rw, WaitForever)
		} else {
			st = k.RLock(0, rw, WaitForever)
		}
		mustStatus(t, wt.name+" lock", st, StatusPending)
	}
	mustRun(t, k, 0, w)
	if _, mode := rwState(t, k, rw); mode != RWReadFirst {
		t.Fatalf("expected read-first mode, got %s", mode)
	}

	mustStatus(t, "RWUnlock w", k.RWUnlock(0, rw), StatusOK)
	count, mode := rwState(t, k, rw)
	if count != 2 {
		t.Fatalf("expected r1 and r2 admitted, got count %d", count)
	}
	if mode != RWWriteFirst {
		t.Fatalf("expected w2 ahead of r3, got %s", mode)
	}
	for name, want := range map[string]bool{"r1": true, "r2": true, "r3": false, "w2": false} {
		info, _ := k.TaskInfoOf(ids[name])
		if got := info.State&StatePending == 0; got != want {
			t.Fatalf("%s: expected woken=%v, state %s", name, want, info.State)
		}
	}
}

func TestRWLockWriterRecursionAndMisuse(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	spawn(t, k, "w", 10)
	k.Schedule(0)
	rw, _ := k.RWLockCreate()

	mustStatus(t, "WLock", k.WLock(0, rw, WaitForever), StatusOK)
	mustStatus(t, "WLock again", k.WLock(0, rw, WaitForever), StatusOK)
	if count, _ := rwState(t, k, rw); count != -2 {
		t.Fatalf("expected depth 2, got %d", count)
	}
	mustStatus(t, "RLock by writer", k.RLock(0, rw, WaitForever), StatusDeadlock)
	mustStatus(t, "RWLockDestroy held", k.RWLockDestroy(rw), StatusInUse)

	other := spawn(t, k, "o", 5)
	k.Schedule(0)
	mustRun(t, k, 0, other)
	mustStatus(t, "RWUnlock by other", k.RWUnlock(0, rw), StatusNotOwner)
	mustStatus(t, "WLock try", k.WLock(0, rw, 0), StatusBusy)
	mustStatus(t, "RLock try", k.RLock(0, rw, 0), StatusBusy)
}

func TestRWLockWriterTimeoutAdmitsReaders(t *testing.T) {
	k, p := newTestKernel(t, 1)
	r := spawn(t, k, "r", 10)
	k.Schedule(0)
	rw, _ := k.RWLockCreate()
	mustStatus(t, "RLock r", k.RLock(0, rw, WaitForever), StatusOK)

	w := spawn(t, k, "w", 5)
	k.Schedule(0)
	mustStatus(t, "WLock w", k.WLock(0, rw, 2), StatusPending)

	r2 := spawn(t, k, "r2", 8)
	k.Schedule(0)
	mustStatus(t, "RLock r2", k.RLock(0, rw, WaitForever), StatusPending)
	mustRun(t, k, 0, r)

	advance(k, p, 0, 2)
	if st, done := waitResult(k, w); !done || st != StatusTimeout {
		t.Fatalf("expected writer timeout, got %s done=%v", st, done)
	}
	if count, mode := rwState(t, k, rw); count != 2 || mode != RWNone {
		t.Fatalf("expected r2 admitted after writer left, got %d %s", count, mode)
	}
	if st, done := waitResult(k, r2); !done || st != StatusOK {
		t.Fatalf("expected r2 granted, got %s done=%v", st, done)
	}
}

func TestRWLockUnlockCascadeStopsAtReaderLimit(t *testing.T) {
	p := &fakePlatform{}
	k, err := New(Config{CPUs: 1, MaxTasks: maxRWReaders + 8, CyclesPerTick: testTick}, p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	w := spawn(t, k, "w", 20)
	k.Schedule(0)
	rw, _ := k.RWLockCreate()
	mustStatus(t, "WLock w", k.WLock(0, rw, WaitForever), StatusOK)

	const readers = maxRWReaders + 3
	for i := 0; i < readers; i++ {
		r := spawn(t, k, "r", 10)
		k.Schedule(0)
		mustRun(t, k, 0, r)
		mustStatus(t, "RLock", k.RLock(0, rw, WaitForever), StatusPending)
	}
	mustRun(t, k, 0, w)

	mustStatus(t, "RWUnlock w", k.RWUnlock(0, rw), StatusOK)
	if count, mode := rwState(t, k, rw); count != maxRWReaders || mode != RWRead {
		t.Fatalf("expected %d readers admitted with the rest queued, got %d %s", maxRWReaders, count, mode)
	}
	if err := k.Check(); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
}

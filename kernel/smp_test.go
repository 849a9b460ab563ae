package kernel

import "testing"

func lastIPI(t *testing.T, p *fakePlatform) CPUMask {
	t.Helper()
	if len(p.ipis) == 0 {
		t.Fatal("expected an IPI")
	}
	return p.ipis[len(p.ipis)-1]
}

func TestReadyTaskNotifiesAffineCore(t *testing.T) {
	k, p := newTestKernel(t, 2)
	a := spawnAttr(t, k, TaskAttr{Name: "pinned", Priority: 10, Affinity: MaskOf(1)})
	if got := lastIPI(t, p); got != MaskOf(1) {
		t.Fatalf("expected IPI to {1}, got %s", got)
	}
	if k.CPUInfo(nil)[0].Pending {
		t.Fatal("expected cpu0 left alone for a task it may not run")
	}

	k.Schedule(0)
	if k.Current(0) == a {
		t.Fatal("expected cpu0 to skip a task pinned to cpu1")
	}
	k.HandleIPI(1)
	mustRun(t, k, 1, a)
}

func TestIPIExcludesSender(t *testing.T) {
	k, p := newTestKernel(t, 3)
	spawn(t, k, "a", 10)
	for _, m := range p.ipis {
		if m.Has(0) {
			t.Fatalf("expected sender excluded from IPI, got %s", m)
		}
	}
	if got := lastIPI(t, p); got != MaskOf(1)|MaskOf(2) {
		t.Fatalf("expected IPI to {1,2}, got %s", got)
	}
	if !k.CPUInfo(nil)[0].Pending {
		t.Fatal("expected sender flagged locally instead")
	}
}

func TestTimeoutPlacedOnLeastLoadedCore(t *testing.T) {
	k, p := newTestKernel(t, 2)
	a := spawnAttr(t, k, TaskAttr{Name: "a", Priority: 10, Affinity: MaskOf(0)})
	b := spawnAttr(t, k, TaskAttr{Name: "b", Priority: 12, Affinity: MaskOf(0)})
	k.Schedule(0)
	mustRun(t, k, 0, a)

	mustStatus(t, "Delay a", k.Delay(0, 2), StatusPending)
	mustRun(t, k, 0, b)
	p.ipis = nil
	mustStatus(t, "Delay b", k.Delay(0, 2), StatusPending)
	if got := lastIPI(t, p); got != MaskOf(1) {
		t.Fatalf("expected remote placement to notify cpu1, got %s", got)
	}

	cpus := k.CPUInfo(nil)
	if cpus[0].TaskNodes != 1 || cpus[1].TaskNodes != 1 {
		t.Fatalf("expected one timeout node per core, got %d/%d", cpus[0].TaskNodes, cpus[1].TaskNodes)
	}

	// cpu1 expires b's timeout even though b may only run on cpu0.
	p.now += 2 * testTick
	k.Tick(1)
	info, _ := k.TaskInfoOf(b)
	if info.State&StateReady == 0 {
		t.Fatalf("expected b ready after remote expiry, got %s", info.State)
	}
	k.Tick(0)
	mustRun(t, k, 0, a)
}

func TestPreemptedTaskMigrates(t *testing.T) {
	k, _ := newTestKernel(t, 2)
	a := spawn(t, k, "a", 10)
	k.Schedule(0)
	mustRun(t, k, 0, a)

	h := spawnAttr(t, k, TaskAttr{Name: "h", Priority: 2, Affinity: MaskOf(0)})
	k.Schedule(0)
	mustRun(t, k, 0, h)

	k.HandleIPI(1)
	mustRun(t, k, 1, a)
	info, _ := k.TaskInfoOf(a)
	if info.LastCPU != 1 {
		t.Fatalf("expected a on cpu1, got cpu%d", info.LastCPU)
	}
}

func TestSetAffinityMovesRunningTask(t *testing.T) {
	k, _ := newTestKernel(t, 2)
	a := spawn(t, k, "a", 10)
	k.Schedule(0)
	mustRun(t, k, 0, a)

	mustStatus(t, "SetAffinity", k.SetAffinity(0, a, MaskOf(1)), StatusOK)
	k.Schedule(0)
	if k.Current(0) == a {
		t.Fatal("expected a to leave cpu0")
	}
	k.HandleIPI(1)
	mustRun(t, k, 1, a)
	mustStatus(t, "SetAffinity empty", k.SetAffinity(1, a, MaskOf(7)), StatusInvalid)
}

func TestDeleteTaskRunningOnOtherCore(t *testing.T) {
	k, p := newTestKernel(t, 2)
	a := spawnAttr(t, k, TaskAttr{Name: "a", Priority: 10, Affinity: MaskOf(1)})
	k.HandleIPI(1)
	mustRun(t, k, 1, a)

	p.ipis = nil
	mustStatus(t, "DeleteTask", k.DeleteTask(0, a), StatusOK)
	if got := lastIPI(t, p); got != MaskOf(1) {
		t.Fatalf("expected IPI to cpu1, got %s", got)
	}
	if _, st := k.TaskInfoOf(a); st != StatusOK {
		t.Fatalf("expected task kept until cpu1 switches away, got %s", st)
	}
	k.HandleIPI(1)
	if _, st := k.TaskInfoOf(a); st != StatusBadHandle {
		t.Fatalf("expected task released, got %s", st)
	}
}

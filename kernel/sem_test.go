package kernel

import "testing"

func TestSemaphoreServesWaitersInArrivalOrder(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	poster := spawn(t, k, "poster", 20)
	k.Schedule(0)
	s, st := k.SemCreate(0, 2)
	mustStatus(t, "SemCreate", st, StatusOK)

	a := spawn(t, k, "a", 10)
	k.Schedule(0)
	mustStatus(t, "SemPend a", k.SemPend(0, s, WaitForever), StatusPending)
	b := spawn(t, k, "b", 5)
	k.Schedule(0)
	mustStatus(t, "SemPend b", k.SemPend(0, s, WaitForever), StatusPending)
	mustRun(t, k, 0, poster)

	mustStatus(t, "SemPost", k.SemPost(0, s), StatusOK)
	ai, _ := k.TaskInfoOf(a)
	bi, _ := k.TaskInfoOf(b)
	if ai.State&StatePending != 0 || bi.State&StatePending == 0 {
		t.Fatalf("expected a woken first, got a=%s b=%s", ai.State, bi.State)
	}
	if n, _ := k.SemCount(s); n != 0 {
		t.Fatalf("expected token handed over, count %d", n)
	}
	mustStatus(t, "SemDelete with waiter", k.SemDelete(s), StatusInUse)
}

func TestSemaphoreCountAndLimits(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	spawn(t, k, "a", 10)
	k.Schedule(0)

	if _, st := k.SemCreate(3, 2); st != StatusInvalid {
		t.Fatalf("expected count above max rejected, got %s", st)
	}
	s, _ := k.SemCreate(1, 2)
	mustStatus(t, "SemPend", k.SemPend(0, s, 0), StatusOK)
	mustStatus(t, "SemPend empty", k.SemPend(0, s, 0), StatusBusy)
	mustStatus(t, "SemPost", k.SemPost(0, s), StatusOK)
	mustStatus(t, "SemPost", k.SemPost(0, s), StatusOK)
	mustStatus(t, "SemPost full", k.SemPost(0, s), StatusOverflow)
	mustStatus(t, "SemDelete", k.SemDelete(s), StatusOK)
	mustStatus(t, "SemPost deleted", k.SemPost(0, s), StatusBadHandle)
}

func TestSemaphorePostFromInterruptPreemptsOnExit(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	low := spawn(t, k, "low", 20)
	k.Schedule(0)
	s, _ := k.SemCreate(0, 1)
	hi := spawn(t, k, "high", 2)
	k.Schedule(0)
	mustStatus(t, "SemPend", k.SemPend(0, s, WaitForever), StatusPending)
	mustRun(t, k, 0, low)

	k.IntEnter(0)
	mustStatus(t, "SemPost", k.SemPost(0, s), StatusOK)
	mustRun(t, k, 0, low)
	k.IntExit(0)
	mustRun(t, k, 0, hi)
}

package kernel

import (
	"math/rand"
	"testing"
)

func TestRunqueueBitmapsTrackLists(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ts := make([]task, 48)
	for i := range ts {
		ts[i].id = TaskID(i)
		ts[i].link = listLink{prev: InvalidTask, next: InvalidTask}
		ts[i].affinity = AllCPUs
	}
	var rq runqueue
	rq.init()

	for step := 0; step < 4000; step++ {
		tk := &ts[rng.Intn(len(ts))]
		if tk.state&StateReady != 0 {
			rq.remove(ts, tk)
			tk.state &^= StateReady
		} else {
			tk.basePrio = uint8(rng.Intn(4))
			tk.eff = uint8(rng.Intn(NumPriorities))
			if rng.Intn(2) == 0 {
				rq.pushHead(ts, tk)
			} else {
				rq.pushTail(ts, tk)
			}
			tk.state |= StateReady
		}
		if err := rq.check(ts); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}
}

func TestRunqueueTopRespectsAffinity(t *testing.T) {
	ts := make([]task, 3)
	for i := range ts {
		ts[i].id = TaskID(i)
		ts[i].link = listLink{prev: InvalidTask, next: InvalidTask}
	}
	var rq runqueue
	rq.init()

	ts[0].eff, ts[0].affinity = 1, MaskOf(1)
	ts[1].eff, ts[1].affinity = 4, MaskOf(0)|MaskOf(1)
	ts[2].eff, ts[2].affinity = 9, MaskOf(0)
	for i := range ts {
		rq.pushTail(ts, &ts[i])
	}

	if got := rq.top(ts, 1); got == nil || got.id != 0 {
		t.Fatalf("expected task 0 on cpu1, got %v", got)
	}
	if got := rq.top(ts, 0); got == nil || got.id != 1 {
		t.Fatalf("expected task 1 on cpu0, got %v", got)
	}
	if got := rq.top(ts, 2); got != nil {
		t.Fatalf("expected no task for cpu2, got %d", got.id)
	}
}

func TestMostUrgentTaskRuns(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	spawn(t, k, "low", 20)
	hi := spawn(t, k, "high", 5)
	spawn(t, k, "mid", 12)

	k.Schedule(0)
	mustRun(t, k, 0, hi)
	if got := k.Stats().Ready; got != 2 {
		t.Fatalf("expected 2 ready tasks, got %d", got)
	}
}

func TestBasePriorityDominates(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	spawnAttr(t, k, TaskAttr{Name: "a", BasePriority: 1, Priority: 0})
	b := spawnAttr(t, k, TaskAttr{Name: "b", BasePriority: 0, Priority: 31})

	k.Schedule(0)
	mustRun(t, k, 0, b)
}

func TestFreshSliceShrinksWithPeers(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	want := []int64{20000, 19500, 19000}
	for i, w := range want {
		id := spawn(t, k, "rr", 10)
		info, _ := k.TaskInfoOf(id)
		if info.SliceLeft != w {
			t.Fatalf("task %d: expected slice %d, got %d", i, w, info.SliceLeft)
		}
	}
}

package kernel

import (
	"errors"
	"strings"
	"testing"
)

func TestContextBlockingCallResumes(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	m, _ := k.MutexCreate(DefaultMutexAttr())

	var blocked, acquired int
	waiter := TaskFunc(func(c *Context) {
		done, err := c.MutexLock(m, WaitForever)
		if err != nil {
			t.Errorf("waiter MutexLock: %v", err)
			return
		}
		if !done {
			blocked++
			return
		}
		acquired++
		if err := c.MutexUnlock(m); err != nil {
			t.Errorf("waiter MutexUnlock: %v", err)
		}
		if err := c.Exit(); err != nil {
			t.Errorf("waiter Exit: %v", err)
		}
	})

	locked := false
	owner := TaskFunc(func(c *Context) {
		if !locked {
			if err := c.MutexTryLock(m); err != nil {
				t.Errorf("owner MutexTryLock: %v", err)
				return
			}
			locked = true
			if _, err := c.Spawn(TaskAttr{Name: "waiter", Priority: 5, Body: waiter}); err != nil {
				t.Errorf("Spawn: %v", err)
			}
			return
		}
		if _, eff := c.Priority(); eff != 5 {
			t.Errorf("expected owner boosted to 5, got %d", eff)
		}
		if err := c.MutexUnlock(m); err != nil {
			t.Errorf("owner MutexUnlock: %v", err)
		}
		if err := c.Exit(); err != nil {
			t.Errorf("owner Exit: %v", err)
		}
	})
	spawnAttr(t, k, TaskAttr{Name: "owner", Priority: 20, Body: owner})

	steps := 0
	for k.Step(0) {
		steps++
		if steps > 20 {
			t.Fatal("expected tasks to finish")
		}
	}
	if blocked != 1 || acquired != 1 {
		t.Fatalf("expected one block and one acquire, got %d/%d", blocked, acquired)
	}
	if got := len(k.Snapshot(nil)); got != 1 {
		t.Fatalf("expected only the idle task left, got %d", got)
	}
}

func TestContextDelayCompletes(t *testing.T) {
	k, p := newTestKernel(t, 1)
	var wakes int
	body := TaskFunc(func(c *Context) {
		done, err := c.Delay(2)
		if err != nil {
			t.Errorf("Delay: %v", err)
			return
		}
		if done {
			wakes++
			c.Exit()
		}
	})
	spawnAttr(t, k, TaskAttr{Name: "sleeper", Priority: 10, Body: body})

	if !k.Step(0) {
		t.Fatal("expected sleeper to run")
	}
	if k.Step(0) {
		t.Fatal("expected idle core while sleeping")
	}
	advance(k, p, 0, 2)
	k.Step(0)
	if wakes != 1 {
		t.Fatalf("expected one wake, got %d", wakes)
	}
}

func TestContextRejectsStaleTask(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	a := spawn(t, k, "a", 10)
	b := spawn(t, k, "b", 12)
	k.Schedule(0)
	mustRun(t, k, 0, a)

	m, _ := k.MutexCreate(DefaultMutexAttr())
	c := &Context{k: k, cpu: 0, id: b}
	if _, err := c.MutexLock(m, WaitForever); !errors.Is(err, StatusNotRunning) {
		t.Fatalf("expected StatusNotRunning, got %v", err)
	}
	if err := c.Yield(); !errors.Is(err, StatusNotRunning) {
		t.Fatalf("expected StatusNotRunning from Yield, got %v", err)
	}
}

func TestContextTimeoutIsAnError(t *testing.T) {
	k, p := newTestKernel(t, 1)
	s, _ := k.SemCreate(0, 1)
	var got error
	body := TaskFunc(func(c *Context) {
		done, err := c.SemPend(s, 1)
		if done || err != nil {
			got = err
			c.Exit()
		}
	})
	spawnAttr(t, k, TaskAttr{Name: "pender", Priority: 10, Body: body})
	k.Step(0)
	advance(k, p, 0, 1)
	k.Step(0)
	if !errors.Is(got, StatusTimeout) {
		t.Fatalf("expected timeout error, got %v", got)
	}
	if !strings.Contains(got.Error(), "timed out") {
		t.Fatalf("expected readable error, got %q", got.Error())
	}
}

func TestTaskPanicReachesHandler(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	var info PanicInfo
	SetPanicHandler(func(pi PanicInfo) { info = pi })
	id := spawnAttr(t, k, TaskAttr{Name: "bad", Priority: 10, Body: TaskFunc(func(*Context) {
		panic("boom")
	})})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		k.Step(0)
	}()
	if !InPanicMode() || info.TaskID != id || info.Value != "boom" {
		t.Fatalf("expected panic info for task %d, got %+v", id, info)
	}
	if len(info.Stack) == 0 {
		t.Fatal("expected captured stack")
	}
}

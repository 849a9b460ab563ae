package scenario

import (
	"fmt"

	"kestrel/kernel"
)

func init() {
	register(Scenario{Name: "inversion", About: "low task holds a mutex wanted by a high task while a mid task spins", load: loadInversion})
	register(Scenario{Name: "rwlock", About: "readers share a rwlock, a more urgent writer cuts in", load: loadRWLock})
	register(Scenario{Name: "rr", About: "three equal round-robin workers and a FIFO worker that yields", load: loadRR})
	register(Scenario{Name: "timers", About: "a periodic software timer feeds a semaphore consumer", load: loadTimers})
	register(Scenario{Name: "migrate", About: "a task hops between cores by changing its own affinity", load: loadMigrate})
}

func mutexLock(m kernel.MutexID, timeout uint32) func(c *kernel.Context) (bool, error) {
	return func(c *kernel.Context) (bool, error) { return c.MutexLock(m, timeout) }
}

func mutexUnlock(m kernel.MutexID) func(c *kernel.Context) error {
	return func(c *kernel.Context) error { return c.MutexUnlock(m) }
}

func loadInversion(k *kernel.Kernel, env Env) error {
	m, st := k.MutexCreate(kernel.DefaultMutexAttr())
	if st != kernel.StatusOK {
		return fmt.Errorf("mutex: %w", st)
	}
	tasks := []kernel.TaskAttr{
		{Name: "inv-low", Priority: 20, Body: &cycler{
			env: env, acquire: mutexLock(m, kernel.WaitForever), release: mutexUnlock(m),
			hold: 12, rest: 3,
		}},
		{Name: "inv-mid", Priority: 12, Body: &cycler{
			env: env, hold: 40, rest: 2, phase: phaseRest,
		}},
		{Name: "inv-high", Priority: 5, Body: &cycler{
			env: env, acquire: mutexLock(m, 20), release: mutexUnlock(m),
			hold: 2, rest: 4, phase: phaseRest,
		}},
	}
	for _, attr := range tasks {
		if _, err := spawn(k, attr); err != nil {
			return err
		}
	}
	return nil
}

func loadRWLock(k *kernel.Kernel, env Env) error {
	rw, st := k.RWLockCreate()
	if st != kernel.StatusOK {
		return fmt.Errorf("rwlock: %w", st)
	}
	release := func(c *kernel.Context) error { return c.RWUnlock(rw) }
	for i := 0; i < 3; i++ {
		_, err := spawn(k, kernel.TaskAttr{
			Name:     fmt.Sprintf("rw-reader%d", i),
			Priority: 14,
			Body: &cycler{
				env:     env,
				acquire: func(c *kernel.Context) (bool, error) { return c.RLock(rw, kernel.WaitForever) },
				release: release,
				hold:    3 + i,
				rest:    1,
			},
		})
		if err != nil {
			return err
		}
	}
	_, err := spawn(k, kernel.TaskAttr{
		Name:     "rw-writer",
		Priority: 8,
		Body: &cycler{
			env:     env,
			acquire: func(c *kernel.Context) (bool, error) { return c.WLock(rw, 50) },
			release: release,
			hold:    2,
			rest:    5,
			phase:   phaseRest,
		},
	})
	return err
}

func loadRR(k *kernel.Kernel, env Env) error {
	for i := 0; i < 3; i++ {
		_, err := spawn(k, kernel.TaskAttr{
			Name:     fmt.Sprintf("rr%d", i),
			Priority: 18,
			Policy:   kernel.PolicyRR,
			Body: &cycler{
				env:  env,
				hold: 16,
				onRound: func(c *kernel.Context, round int) {
					if round%8 == 0 {
						c.Log(fmt.Sprintf("round %d", round))
					}
				},
			},
		})
		if err != nil {
			return err
		}
	}
	_, err := spawn(k, kernel.TaskAttr{
		Name:     "fifo",
		Priority: 18,
		Policy:   kernel.PolicyFIFO,
		Body:     &cycler{env: env, hold: 6, yield: true},
	})
	return err
}

func loadTimers(k *kernel.Kernel, env Env) error {
	s, st := k.SemCreate(0, 4)
	if st != kernel.StatusOK {
		return fmt.Errorf("semaphore: %w", st)
	}
	tm, st := k.TimerCreate(kernel.TimerAttr{
		Mode:     kernel.TimerPeriodic,
		Interval: 10,
		Handler: func(cpu int, _ kernel.TimerID) {
			// A full semaphore means the consumer fell behind.
			k.SemPost(cpu, s)
		},
	})
	if st != kernel.StatusOK {
		return fmt.Errorf("timer: %w", st)
	}
	if st := k.TimerStart(0, tm); st != kernel.StatusOK {
		return fmt.Errorf("timer start: %w", st)
	}
	_, err := spawn(k, kernel.TaskAttr{
		Name:     "tmr-consumer",
		Priority: 6,
		Body: &cycler{
			env:     env,
			acquire: func(c *kernel.Context) (bool, error) { return c.SemPend(s, 25) },
			hold:    1,
			onRound: func(c *kernel.Context, round int) {
				if round%5 == 0 {
					c.Log(fmt.Sprintf("%d periods consumed", round))
				}
			},
		},
	})
	return err
}

func loadMigrate(k *kernel.Kernel, env Env) error {
	cpus := k.CPUs()
	_, err := spawn(k, kernel.TaskAttr{
		Name:     "migrant",
		Priority: 16,
		Affinity: kernel.MaskOf(0),
		Body: &cycler{
			env:  env,
			hold: 4,
			rest: 1,
			onRound: func(c *kernel.Context, round int) {
				next := round % cpus
				c.Log(fmt.Sprintf("on cpu%d, moving to cpu%d", c.CPU(), next))
				if st := k.SetAffinity(c.CPU(), c.TaskID(), kernel.MaskOf(next)); st != kernel.StatusOK {
					c.Log("set affinity: " + st.Error())
				}
			},
		},
	})
	return err
}

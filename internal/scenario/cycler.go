package scenario

import (
	"errors"
	"fmt"

	"kestrel/kernel"
)

type phase uint8

const (
	phaseAcquire phase = iota
	phaseHold
	phaseRest
)

// cycler is the body shared by every workload task: acquire a resource,
// work for hold steps while holding it, release it, then rest.
//
// A nil acquire makes the task a plain worker. A zero rest goes straight
// back to acquire; yield makes the task give up the core at the end of
// each round instead.
type cycler struct {
	env     Env
	acquire func(c *kernel.Context) (bool, error)
	release func(c *kernel.Context) error
	hold    int
	rest    uint32
	yield   bool
	rounds  int
	// onRound runs after each release, before resting.
	onRound func(c *kernel.Context, round int)

	phase   phase
	n       int
	round   int
	boosted bool
}

func (w *cycler) Step(c *kernel.Context) {
	switch w.phase {
	case phaseAcquire:
		if w.acquire != nil {
			done, err := w.acquire(c)
			if errors.Is(err, kernel.StatusTimeout) {
				c.Log("timed out")
				w.phase = phaseRest
				return
			}
			if err != nil {
				w.fail(c, "acquire", err)
				return
			}
			if !done {
				return
			}
			c.Log("acquired")
		}
		w.phase = phaseHold
		w.n = 0
		w.boosted = false

	case phaseHold:
		w.env.work()
		w.n++
		if own, eff := c.Priority(); eff != own && !w.boosted {
			w.boosted = true
			c.Log(fmt.Sprintf("running at priority %d (own %d)", eff, own))
		}
		if w.n < w.hold {
			return
		}
		if w.release != nil {
			if err := w.release(c); err != nil {
				w.fail(c, "release", err)
				return
			}
			c.Log("released")
		}
		w.round++
		if w.onRound != nil {
			w.onRound(c, w.round)
		}
		if w.rounds > 0 && w.round >= w.rounds {
			c.Log("done")
			c.Exit()
			return
		}
		w.phase = phaseRest
		if w.yield {
			c.Yield()
		}

	case phaseRest:
		if w.rest == 0 {
			w.phase = phaseAcquire
			return
		}
		done, err := c.Delay(w.rest)
		if err != nil {
			w.fail(c, "delay", err)
			return
		}
		if done {
			w.phase = phaseAcquire
		}
	}
}

func (w *cycler) fail(c *kernel.Context, op string, err error) {
	c.Log(op + ": " + err.Error())
	c.Exit()
}

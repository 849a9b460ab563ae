//go:build !tinygo

package hal

import "time"

// hostTime publishes the number of milliseconds since boot. Each step sends
// only the newest count, so a slow consumer sees gaps instead of a backlog.
type hostTime struct {
	ch    chan uint64
	start time.Time
	seq   uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) step() {
	now := time.Now()
	if t.start.IsZero() {
		t.start = now
	}
	seq := uint64(now.Sub(t.start) / time.Millisecond)
	if seq == t.seq && seq != 0 {
		return
	}
	t.seq = seq
	select {
	case <-t.ch:
	default:
	}
	select {
	case t.ch <- seq:
	default:
	}
}

package sortlink

import (
	"math/rand"
	"testing"
)

func expiries(l *Link) []uint64 {
	var out []uint64
	l.Walk(func(n *Node) bool {
		out = append(out, n.Expiry())
		return true
	})
	return out
}

func TestInsertOrdersByExpiry(t *testing.T) {
	var l Link
	nodes := make([]Node, 3)
	for i, e := range []uint64{100, 50, 75} {
		nodes[i].Init(uint32(i))
		l.Insert(&nodes[i], e)
	}

	got := expiries(&l)
	want := []uint64{50, 75, 100}
	if len(got) != len(want) {
		t.Fatalf("walk = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk = %v, want %v", got, want)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if next := l.NextExpiry(); next != 50 {
		t.Fatalf("NextExpiry() = %d, want 50", next)
	}
}

func TestEqualExpiryKeepsArrivalOrder(t *testing.T) {
	var l Link
	nodes := make([]Node, 4)
	for i := range nodes {
		nodes[i].Init(uint32(i))
	}
	l.Insert(&nodes[0], 10)
	l.Insert(&nodes[1], 20)
	l.Insert(&nodes[2], 10)
	l.Insert(&nodes[3], 20)

	var owners []uint32
	l.Walk(func(n *Node) bool {
		owners = append(owners, n.Owner)
		return true
	})
	want := []uint32{0, 2, 1, 3}
	for i := range want {
		if owners[i] != want[i] {
			t.Fatalf("owners = %v, want %v", owners, want)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	var l Link
	var n Node
	n.Init(7)
	l.Insert(&n, 42)

	if !l.Remove(&n) {
		t.Fatalf("Remove() = false, want true")
	}
	if l.Remove(&n) {
		t.Fatalf("second Remove() = true, want false")
	}
	if l.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", l.Len())
	}
	if n.Linked() || n.Expiry() != Invalid {
		t.Fatalf("node still linked after remove: expiry=%d", n.Expiry())
	}
	if next := l.NextExpiry(); next != Invalid {
		t.Fatalf("NextExpiry() = %d, want Invalid", next)
	}
}

func TestDoubleInsertPanics(t *testing.T) {
	var l Link
	var n Node
	n.Init(1)
	l.Insert(&n, 5)

	defer func() {
		if recover() == nil {
			t.Fatalf("second Insert did not panic")
		}
	}()
	l.Insert(&n, 6)
}

func TestRemoveFromWrongLinkPanics(t *testing.T) {
	var a, b Link
	var n Node
	n.Init(1)
	a.Insert(&n, 5)

	defer func() {
		if recover() == nil {
			t.Fatalf("Remove from foreign link did not panic")
		}
	}()
	b.Remove(&n)
}

func TestPopExpired(t *testing.T) {
	var l Link
	nodes := make([]Node, 3)
	for i, e := range []uint64{30, 10, 20} {
		nodes[i].Init(uint32(i))
		l.Insert(&nodes[i], e)
	}

	if n := l.PopExpired(5); n != nil {
		t.Fatalf("PopExpired(5) = owner %d, want nil", n.Owner)
	}
	var got []uint32
	for n := l.PopExpired(20); n != nil; n = l.PopExpired(20) {
		got = append(got, n.Owner)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("popped owners = %v, want [1 2]", got)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}

func TestRandomOpsKeepOrderAndCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var l Link
	nodes := make([]Node, 64)
	for i := range nodes {
		nodes[i].Init(uint32(i))
	}

	for step := 0; step < 5000; step++ {
		n := &nodes[rng.Intn(len(nodes))]
		if n.Linked() {
			l.Remove(n)
		} else {
			l.Insert(n, uint64(rng.Intn(1000)))
		}

		var prev uint64
		walked := 0
		l.Walk(func(n *Node) bool {
			if n.Expiry() < prev {
				t.Fatalf("step %d: expiry %d after %d", step, n.Expiry(), prev)
			}
			prev = n.Expiry()
			walked++
			return true
		})

		linked := 0
		for i := range nodes {
			if nodes[i].Expiry() != Invalid {
				linked++
			}
		}
		if l.Len() != linked || walked != linked {
			t.Fatalf("step %d: Len()=%d walked=%d linked=%d", step, l.Len(), walked, linked)
		}
	}
}

func TestRemaining(t *testing.T) {
	var l Link
	var n Node
	n.Init(0)
	if got := n.Remaining(10); got != 0 {
		t.Fatalf("Remaining() unlinked = %d, want 0", got)
	}
	l.Insert(&n, Deadline(100, 50))
	if got := n.Remaining(120); got != 30 {
		t.Fatalf("Remaining(120) = %d, want 30", got)
	}
	if got := n.Remaining(200); got != 0 {
		t.Fatalf("Remaining(200) = %d, want 0", got)
	}
	if got := Deadline(Invalid-3, 10); got != Invalid-1 {
		t.Fatalf("Deadline saturation = %d, want %d", got, Invalid-1)
	}
}

func TestSetPlacesOnLeastLoaded(t *testing.T) {
	s := NewSet(3)
	var busy [2]Node
	busy[0].Init(0)
	busy[1].Init(1)
	s.Link(0, Tasks).Insert(&busy[0], 10)
	s.Link(1, Timers).Insert(&busy[1], 10)

	var n Node
	n.Init(9)
	cpu := s.Add(Tasks, &n, 50)
	if cpu != 2 {
		t.Fatalf("Add() cpu = %d, want 2", cpu)
	}
	if n.CPU() != 2 {
		t.Fatalf("node CPU() = %d, want 2", n.CPU())
	}
	if s.LeastLoaded() != 0 {
		t.Fatalf("LeastLoaded() = %d, want 0", s.LeastLoaded())
	}
	if next := s.NextExpiry(1); next != 10 {
		t.Fatalf("NextExpiry(1) = %d, want 10", next)
	}
	if !s.Remove(&n) {
		t.Fatalf("Set.Remove() = false, want true")
	}
	if s.Remove(&n) {
		t.Fatalf("second Set.Remove() = true, want false")
	}
	if s.Load(2) != 0 {
		t.Fatalf("Load(2) = %d, want 0", s.Load(2))
	}
}

// Package sortlink keeps wait nodes ordered by absolute expiry time.
//
// One Link exists per core and per purpose (task timeouts, software timers).
// The head of a Link is always the node that expires first, so the tick path
// only ever looks at the front of the list.
package sortlink

import (
	"math"
	"sync"
	"sync/atomic"
)

// Invalid is the expiry of a node that is not linked anywhere.
const Invalid uint64 = math.MaxUint64

// Node is embedded in every object that waits on a deadline.
//
// A node must be initialised with Init before first use. The object that
// embeds the node is responsible for serialising Insert/Remove calls made on
// its behalf; the Link lock only protects the list itself.
type Node struct {
	prev, next *Node
	link       *Link
	expiry     uint64

	// Owner is the handle of the embedding object.
	Owner uint32
}

// Init resets n to the unlinked state and records its owner handle.
func (n *Node) Init(owner uint32) {
	*n = Node{expiry: Invalid, Owner: owner}
}

// Expiry returns the absolute expiry time, or Invalid when unlinked.
func (n *Node) Expiry() uint64 { return n.expiry }

// Linked reports whether n is a member of a Link.
func (n *Node) Linked() bool { return n.expiry != Invalid }

// CPU returns the index of the core whose Link holds n, or -1.
func (n *Node) CPU() int {
	if n.link == nil {
		return -1
	}
	return n.link.cpu
}

// Remaining returns the time left until n expires, 0 when already due or
// when n is not linked.
func (n *Node) Remaining(now uint64) uint64 {
	if n.expiry == Invalid || now >= n.expiry {
		return 0
	}
	return n.expiry - now
}

// Deadline returns start+delay, saturating below Invalid.
func Deadline(start, delay uint64) uint64 {
	if delay >= Invalid-start {
		return Invalid - 1
	}
	return start + delay
}

// Link is an ordered list of nodes guarded by its own lock.
type Link struct {
	_     [0]func() // prevent accidental copying.
	mu    sync.Mutex
	head  Node
	count atomic.Int32
	cpu   int
}

func (l *Link) lazyInit() {
	if l.head.next == nil {
		l.head.next = &l.head
		l.head.prev = &l.head
		l.head.expiry = Invalid
	}
}

// Len returns the number of resident nodes.
func (l *Link) Len() int { return int(l.count.Load()) }

// CPU returns the core index the Link belongs to.
func (l *Link) CPU() int { return l.cpu }

// Insert links n with the given absolute expiry.
//
// Inserting a node that is already linked is a programming error and panics.
func (l *Link) Insert(n *Node, expiry uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(n, expiry)
}

func (l *Link) insertLocked(n *Node, expiry uint64) {
	if n.expiry != Invalid || n.link != nil {
		panic("sortlink: node inserted twice")
	}
	if expiry == Invalid {
		expiry = Invalid - 1
	}
	l.lazyInit()
	n.expiry = expiry
	n.link = l

	first := l.head.next
	if first == &l.head || expiry < first.expiry {
		insertAfter(&l.head, n)
		l.count.Add(1)
		return
	}

	// New deadlines tend to land near the tail, so scan backwards. The loop
	// stops at first at the latest because first.expiry <= expiry.
	p := l.head.prev
	for p.expiry > expiry {
		p = p.prev
	}
	insertAfter(p, n)
	l.count.Add(1)
}

// Remove unlinks n. Removing an unlinked node is a no-op and returns false.
func (l *Link) Remove(n *Node) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(n)
}

func (l *Link) removeLocked(n *Node) bool {
	if n.expiry == Invalid {
		return false
	}
	if n.link != l || n.prev == nil || n.next == nil || n.prev.next != n || n.next.prev != n {
		panic("sortlink: node is not on the list it claims")
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next, n.link = nil, nil, nil
	n.expiry = Invalid
	l.count.Add(-1)
	return true
}

// NextExpiry returns the expiry of the head node, or Invalid when empty.
func (l *Link) NextExpiry() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lazyInit()
	if l.head.next == &l.head {
		return Invalid
	}
	return l.head.next.expiry
}

// PopExpired unlinks and returns the head node if it is due at now.
func (l *Link) PopExpired(now uint64) *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lazyInit()
	first := l.head.next
	if first == &l.head || first.expiry > now {
		return nil
	}
	l.removeLocked(first)
	return first
}

// Walk calls fn for every node from head to tail until fn returns false.
// fn runs with the Link lock held and must not call back into the Link.
func (l *Link) Walk(fn func(n *Node) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lazyInit()
	for n := l.head.next; n != &l.head; n = n.next {
		if !fn(n) {
			return
		}
	}
}

func insertAfter(p, n *Node) {
	n.prev = p
	n.next = p.next
	p.next.prev = n
	p.next = n
}

// Purpose selects one of the per-core Links.
type Purpose uint8

const (
	Tasks Purpose = iota
	Timers
	numPurposes
)

func (p Purpose) String() string {
	switch p {
	case Tasks:
		return "tasks"
	case Timers:
		return "timers"
	default:
		return "unknown"
	}
}

// Set holds the Links of every core.
type Set struct {
	links [][numPurposes]Link
}

// NewSet allocates Links for ncpu cores.
func NewSet(ncpu int) *Set {
	if ncpu < 1 {
		ncpu = 1
	}
	s := &Set{links: make([][numPurposes]Link, ncpu)}
	for cpu := range s.links {
		for p := range s.links[cpu] {
			s.links[cpu][p].cpu = cpu
			s.links[cpu][p].lazyInit()
		}
	}
	return s
}

// CPUs returns the number of cores covered by the set.
func (s *Set) CPUs() int { return len(s.links) }

// Link returns the Link of cpu for purpose p.
func (s *Set) Link(cpu int, p Purpose) *Link { return &s.links[cpu][p] }

// Load returns the number of nodes (all purposes) resident on cpu.
func (s *Set) Load(cpu int) int {
	n := 0
	for p := range s.links[cpu] {
		n += s.links[cpu][p].Len()
	}
	return n
}

// LeastLoaded returns the core holding the fewest nodes. Ties go to the
// lowest index.
func (s *Set) LeastLoaded() int {
	best, bestLoad := 0, s.Load(0)
	for cpu := 1; cpu < len(s.links); cpu++ {
		if load := s.Load(cpu); load < bestLoad {
			best, bestLoad = cpu, load
		}
	}
	return best
}

// Add places n on the least loaded core and returns that core.
func (s *Set) Add(p Purpose, n *Node, expiry uint64) int {
	cpu := s.LeastLoaded()
	s.links[cpu][p].Insert(n, expiry)
	return cpu
}

// Remove unlinks n from whichever Link holds it.
func (s *Set) Remove(n *Node) bool {
	l := n.link
	if l == nil {
		return false
	}
	return l.Remove(n)
}

// NextExpiry returns the earliest expiry across all purposes of cpu.
func (s *Set) NextExpiry(cpu int) uint64 {
	next := Invalid
	for p := range s.links[cpu] {
		if e := s.links[cpu][p].NextExpiry(); e < next {
			next = e
		}
	}
	return next
}

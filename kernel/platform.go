package kernel

import (
	"math/bits"
	"strconv"
	"strings"
)

// CPUMask is a set of cores, bit i selecting core i.
type CPUMask uint32

// AllCPUs selects every core.
const AllCPUs CPUMask = 0xFFFFFFFF

// MaskOf returns the mask selecting only cpu.
func MaskOf(cpu int) CPUMask { return 1 << uint(cpu) }

// Has reports whether cpu is in m.
func (m CPUMask) Has(cpu int) bool { return m&(1<<uint(cpu)) != 0 }

// Count returns the number of cores in m.
func (m CPUMask) Count() int { return bits.OnesCount32(uint32(m)) }

func (m CPUMask) String() string {
	if m == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for v := uint32(m); v != 0; v &= v - 1 {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(bits.TrailingZeros32(v)))
	}
	b.WriteByte('}')
	return b.String()
}

// Platform is the architecture and interrupt-controller layer.
//
// All methods may be called with the scheduler lock held and must not call
// back into the Kernel.
type Platform interface {
	// Now returns the monotonic cycle counter.
	Now() uint64
	// SendIPI asks every core in target to re-evaluate its ready set and
	// next deadline. The sender is never part of target.
	SendIPI(target CPUMask)
	// Switch performs the register-level switch from one task to another.
	Switch(cpu int, from, to TaskID)
	// SetTimer programs the next wakeup of cpu.
	SetTimer(cpu int, deadline uint64)
}

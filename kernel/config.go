package kernel

import (
	"fmt"
	"time"
)

const (
	// NumPriorities is the number of priority levels at both levels of the
	// ready queue. Lower values are more urgent.
	NumPriorities = 32
	// LowestPriority is the least urgent priority, used by idle tasks.
	LowestPriority = NumPriorities - 1

	// MaxCPUs bounds Config.CPUs (CPUMask is 32 bits wide).
	MaxCPUs = 32

	// WaitForever disables the timeout of a blocking call.
	WaitForever uint32 = 0xFFFFFFFF

	maxRWReaders = 127
	maxRWDepth   = 128
)

// Logger receives kernel log lines. hal.Logger satisfies it.
type Logger interface {
	WriteLineString(s string)
}

// Config holds the boot-time parameters of a Kernel.
//
// Time values are in cycles of the platform clock. The defaults assume a
// nanosecond clock.
type Config struct {
	CPUs       int
	MaxTasks   int
	MaxMutexes int
	MaxRWLocks int
	MaxSems    int
	MaxTimers  int

	CyclesPerTick uint64

	// SliceMin and SliceMax bound a fresh round-robin slice. The slice
	// shrinks linearly from SliceMax to SliceMin as the number of ready
	// tasks at the same priority approaches SliceReadyMax.
	SliceMin      uint64
	SliceMax      uint64
	SliceReadyMax int
	// SliceFloor is the remaining budget at or below which a slice counts
	// as exhausted.
	SliceFloor uint64
	// ResponsePrecision is the minimum distance between now and a
	// programmed wakeup.
	ResponsePrecision uint64

	// Trace logs every context switch.
	Trace  bool
	Logger Logger
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.CPUs == 0 {
		c.CPUs = 1
	}
	if c.MaxTasks == 0 {
		c.MaxTasks = 64
	}
	if c.MaxMutexes == 0 {
		c.MaxMutexes = 64
	}
	if c.MaxRWLocks == 0 {
		c.MaxRWLocks = 32
	}
	if c.MaxSems == 0 {
		c.MaxSems = 64
	}
	if c.MaxTimers == 0 {
		c.MaxTimers = 64
	}
	if c.CyclesPerTick == 0 {
		c.CyclesPerTick = uint64(time.Millisecond)
	}
	if c.SliceMin == 0 {
		c.SliceMin = 5 * c.CyclesPerTick
	}
	if c.SliceMax == 0 {
		c.SliceMax = 20 * c.CyclesPerTick
	}
	if c.SliceReadyMax == 0 {
		c.SliceReadyMax = 30
	}
	if c.SliceFloor == 0 {
		c.SliceFloor = c.CyclesPerTick / 20
	}
	if c.ResponsePrecision == 0 {
		c.ResponsePrecision = c.CyclesPerTick / 100
	}
	return c
}

func (c Config) validate() error {
	if c.CPUs < 1 || c.CPUs > MaxCPUs {
		return fmt.Errorf("kernel config: cpus %d out of range 1..%d", c.CPUs, MaxCPUs)
	}
	if c.MaxTasks <= c.CPUs || c.MaxTasks >= int(InvalidTask) {
		return fmt.Errorf("kernel config: max tasks %d must exceed cpus %d and stay below %d", c.MaxTasks, c.CPUs, InvalidTask)
	}
	for _, lim := range []struct {
		name string
		n    int
	}{
		{"mutexes", c.MaxMutexes},
		{"rwlocks", c.MaxRWLocks},
		{"semaphores", c.MaxSems},
		{"timers", c.MaxTimers},
	} {
		if lim.n < 0 || lim.n > 0xFFFF {
			return fmt.Errorf("kernel config: max %s %d out of range", lim.name, lim.n)
		}
	}
	if c.SliceMin > c.SliceMax {
		return fmt.Errorf("kernel config: slice min %d above max %d", c.SliceMin, c.SliceMax)
	}
	return nil
}

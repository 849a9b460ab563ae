//go:build linux && !tinygo

package hal

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinThread locks the calling goroutine to its OS thread and binds that
// thread to host core cpu modulo the number of host cores.
func PinThread(cpu int) error {
	runtime.LockOSThread()
	n := runtime.NumCPU()
	if n <= 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % n)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("pin cpu %d: %w", cpu, err)
	}
	return nil
}

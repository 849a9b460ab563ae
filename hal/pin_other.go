//go:build !linux || tinygo

package hal

// PinThread is only supported on linux hosts.
func PinThread(cpu int) error {
	_ = cpu
	return ErrNotImplemented
}

//go:build tinygo

package kernel

// TinyGo cannot walk goroutine stacks; panic reports carry no trace.
func captureStack() []byte { return nil }

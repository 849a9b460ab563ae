//go:build !tinygo

package kernel

import "runtime"

// maxStack bounds a captured panic stack; the panic screen shows only the
// top frames anyway.
const maxStack = 16 << 10

func captureStack() []byte {
	buf := make([]byte, maxStack)
	return buf[:runtime.Stack(buf, false)]
}

package app

import (
	"kestrel/hal"
	"kestrel/internal/buildinfo"
)

// bootScreen shows a banner until the first monitor frame replaces it.
func bootScreen(h hal.HAL, msg string) {
	if h == nil || h.Display() == nil {
		return
	}
	fb := h.Display().Framebuffer()
	if fb == nil || fb.Buffer() == nil {
		return
	}
	drawText(fb, []string{"kestrel " + buildinfo.Short(), msg}, white, black)
}

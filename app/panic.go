package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"kestrel/hal"
	"kestrel/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	textHeight = int16(10)
	textOffset = int16(6)
)

var (
	black = color.RGBA{A: 0xFF}
	white = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// installPanicHandler reports the first task panic on the logger and the
// display, then parks the panicking core for good. Other cores keep
// running but the monitor stops redrawing.
func installPanicHandler(h hal.HAL) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicReport(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if disp := h.Display(); disp != nil {
			if fb := disp.Framebuffer(); fb != nil {
				drawText(fb, lines, white, black)
			}
		}
		select {}
	})
}

func panicReport(info kernel.PanicInfo) []string {
	lines := []string{
		fmt.Sprintf("kestrel panic: cpu=%d task=%d", info.CPU, info.TaskID),
		fmt.Sprintf("panic: %v", info.Value),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			lines = append(lines, strings.ReplaceAll(line, "\t", "  "))
		}
	}
	return lines
}

// drawText clears fb to bg and draws lines top-down in fg, wrapping long
// lines at the screen width, until the screen is full.
func drawText(fb hal.Framebuffer, lines []string, fg, bg color.RGBA) {
	d := newFBDisplay(fb)
	font := &proggy.TinySZ8pt7b
	_, w := tinyfont.LineWidth(font, "0")
	fontWidth := int16(w)
	if fontWidth <= 0 {
		return
	}
	fb.ClearRGB(bg.R, bg.G, bg.B)

	cols := int16(fb.Width()) / fontWidth
	maxH := int16(fb.Height())
	y := int16(0)
	for _, line := range lines {
		for len(line) > 0 {
			if y+textHeight > maxH {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			x := int16(0)
			for _, r := range chunk {
				tinyfont.DrawChar(d, font, x, y+textOffset, r, fg)
				x += fontWidth
			}
			y += textHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}

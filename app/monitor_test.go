package app

import (
	"strings"
	"testing"

	"kestrel/hal"
	"kestrel/internal/sim"
	"kestrel/kernel"
)

type testFB struct {
	w, h     int
	buf      []byte
	presents int
}

func newTestFB(w, h int) *testFB { return &testFB{w: w, h: h, buf: make([]byte, w*h*2)} }

func (f *testFB) Width() int              { return f.w }
func (f *testFB) Height() int             { return f.h }
func (f *testFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *testFB) StrideBytes() int        { return f.w * 2 }
func (f *testFB) Buffer() []byte          { return f.buf }
func (f *testFB) Present() error          { f.presents++; return nil }

func (f *testFB) ClearRGB(r, g, b uint8) {
	for i := range f.buf {
		f.buf[i] = 0
	}
}

type testDisplay struct{ fb hal.Framebuffer }

func (d testDisplay) Framebuffer() hal.Framebuffer { return d.fb }

type testLogger struct{ lines []string }

func (l *testLogger) WriteLineString(s string) { l.lines = append(l.lines, s) }
func (l *testLogger) WriteLineBytes(b []byte)  { l.lines = append(l.lines, string(b)) }

type testLED struct{ on bool }

func (l *testLED) High() { l.on = true }
func (l *testLED) Low()  { l.on = false }

func newMonitorKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	m, err := sim.New(kernel.Config{CPUs: 2}, sim.Options{})
	if err != nil {
		t.Fatalf("sim.New() error: %v", err)
	}
	if _, st := m.K.CreateTask(0, kernel.TaskAttr{Name: "worker", Priority: 9}); st != kernel.StatusOK {
		t.Fatalf("CreateTask() = %s", st)
	}
	m.K.Schedule(0)
	return m.K
}

func TestMonitorDrawsOnFramebuffer(t *testing.T) {
	k := newMonitorKernel(t)
	fb := newTestFB(320, 240)
	led := &testLED{}
	mon := NewMonitor(k, testDisplay{fb: fb}, nil, led)
	mon.Render()

	if fb.presents != 1 {
		t.Fatalf("presents = %d, want 1", fb.presents)
	}
	lit := 0
	for _, b := range fb.buf {
		if b != 0 {
			lit++
		}
	}
	if lit == 0 {
		t.Fatal("expected text pixels on the framebuffer")
	}
	mon.Render()
	if !led.on {
		t.Fatal("expected led toggled on the second frame")
	}
}

func TestMonitorTextMode(t *testing.T) {
	k := newMonitorKernel(t)
	log := &testLogger{}
	NewMonitor(k, nil, log, nil).Render()

	out := strings.Join(log.lines, "\n")
	for _, want := range []string{"cpu0  worker", "cpu1  idle", "worker", "running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in monitor output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape codes in text mode:\n%s", out)
	}
	if strings.Contains(out, "idle/0") {
		t.Fatalf("expected system tasks hidden:\n%s", out)
	}
}

func TestTakeRunes(t *testing.T) {
	for _, tc := range []struct {
		in         string
		n          int16
		head, rest string
	}{
		{"abcdef", 4, "abcd", "ef"},
		{"abc", 4, "abc", ""},
		{"äöü", 2, "äö", "ü"},
		{"x", 0, "", "x"},
	} {
		head, rest := takeRunes(tc.in, tc.n)
		if head != tc.head || rest != tc.rest {
			t.Fatalf("takeRunes(%q, %d) = %q, %q, want %q, %q", tc.in, tc.n, head, rest, tc.head, tc.rest)
		}
	}
}

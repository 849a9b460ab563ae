package app

import (
	"fmt"
	"io"
	"strings"

	"kestrel/hal"
	"kestrel/kernel"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

const (
	sgrReset  = "\x1b[0m"
	sgrGreen  = "\x1b[32m"
	sgrYellow = "\x1b[33m"
	sgrCyan   = "\x1b[36m"
)

// Monitor renders the kernel's task and core tables. With a framebuffer it
// draws through a VT100 terminal; without one it writes to the logger.
type Monitor struct {
	k   *kernel.Kernel
	fb  hal.Framebuffer
	d   *fbDisplay
	t   *tinyterm.Terminal
	log hal.Logger
	led hal.LED

	tasks  []kernel.TaskInfo
	cpus   []kernel.CPUInfo
	frames uint64
}

// NewMonitor binds a monitor to k. Any of disp, log and led may be nil.
func NewMonitor(k *kernel.Kernel, disp hal.Display, log hal.Logger, led hal.LED) *Monitor {
	m := &Monitor{k: k, log: log, led: led}
	if disp != nil {
		if fb := disp.Framebuffer(); fb != nil && fb.Buffer() != nil {
			m.fb = fb
			m.d = newFBDisplay(fb)
		}
	}
	return m
}

func (m *Monitor) reset() {
	m.t = tinyterm.NewTerminal(m.d)
	m.t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        6,
		UseSoftwareScroll: true,
	})
	m.fb.ClearRGB(0, 0, 0)
}

// Render takes a snapshot and draws it. It does nothing once a task has
// panicked so the panic screen stays up.
func (m *Monitor) Render() {
	if kernel.InPanicMode() {
		return
	}
	m.tasks = m.k.Snapshot(m.tasks[:0])
	m.cpus = m.k.CPUInfo(m.cpus[:0])
	m.frames++
	if m.led != nil {
		if m.frames%2 == 0 {
			m.led.High()
		} else {
			m.led.Low()
		}
	}

	if m.fb == nil {
		if m.log != nil {
			var b strings.Builder
			m.write(&b, false)
			for _, line := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
				m.log.WriteLineString(line)
			}
		}
		return
	}
	m.reset()
	m.write(m.t, true)
	m.t.Display()
}

func (m *Monitor) write(w io.Writer, color bool) {
	paint := func(sgr, s string) string {
		if !color {
			return s
		}
		return sgr + s + sgrReset
	}

	st := m.k.Stats()
	fmt.Fprintf(w, "%s\n", paint(sgrCyan, fmt.Sprintf("kestrel  switches %d  ipis %d  timeouts %d  timers %d  ready %d",
		st.Switches, st.IPIs, st.Timeouts, st.TimerFires, st.Ready)))
	for _, c := range m.cpus {
		run := "idle"
		for _, ti := range m.tasks {
			if ti.ID == c.Running && !c.Idle {
				run = ti.Name
			}
		}
		flags := ""
		if c.Pending {
			flags += " pending"
		}
		if c.PreemptLock > 0 {
			flags += fmt.Sprintf(" lock=%d", c.PreemptLock)
		}
		fmt.Fprintf(w, "cpu%-2d %-12s ipis=%-6d nodes=%d/%d%s\n", c.ID, run, c.IPIs, c.TaskNodes, c.TimerNodes, flags)
	}
	fmt.Fprintf(w, "%s\n", paint(sgrCyan, " id name         prio  state          cpu wait"))
	for _, ti := range m.tasks {
		if ti.System {
			continue
		}
		line := fmt.Sprintf("%3d %-12.12s %2d/%-2d %-14.14s %3s %s",
			ti.ID, ti.Name, ti.Priority, ti.Effective, ti.State, cpuLabel(ti.CPU), waitLabel(ti))
		switch {
		case ti.State&kernel.StateRunning != 0:
			line = paint(sgrGreen, line)
		case ti.Effective != ti.Priority:
			line = paint(sgrYellow, line)
		}
		fmt.Fprintf(w, "%s\n", line)
	}
}

func cpuLabel(cpu int) string {
	if cpu < 0 {
		return "-"
	}
	return fmt.Sprint(cpu)
}

func waitLabel(ti kernel.TaskInfo) string {
	if ti.Wait == kernel.WaitNone {
		return ""
	}
	return fmt.Sprintf("%s#%d", ti.Wait, ti.WaitObj)
}

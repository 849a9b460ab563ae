// Command schedtrace runs a scheduler scenario on a virtual clock and prints
// the task log, an optional switch trace and the final kernel state.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"kestrel/internal/scenario"
	"kestrel/internal/sim"
	"kestrel/kernel"
)

func main() {
	var (
		name    = flag.String("scenario", "inversion", "Scenario to run (see -list).")
		list    = flag.Bool("list", false, "List scenarios and exit.")
		cpus    = flag.Int("cpus", 1, "Number of simulated cores.")
		dur     = flag.Duration("for", 100*time.Millisecond, "Virtual time to run.")
		quantum = flag.Duration("quantum", 250*time.Microsecond, "Virtual time one unit of task work takes.")
		trace   = flag.Bool("trace", false, "Log every context switch.")
		quiet   = flag.Bool("quiet", false, "Only print the final state.")
	)
	flag.Parse()

	if *list {
		fmt.Print(scenario.Usage())
		return
	}
	s, ok := scenario.Lookup(*name)
	if !ok {
		fatalf(2, "unknown scenario %q; scenarios:\n%s", *name, scenario.Usage())
	}
	if *dur <= 0 || *quantum <= 0 {
		fatalf(2, "usage: schedtrace [-scenario name] [-cpus n] [-for 100ms] [-quantum 250us] [-trace]")
	}

	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}
	m, err := sim.New(kernel.Config{CPUs: *cpus, Trace: *trace}, sim.Options{
		Quantum: uint64(*quantum),
		Out:     out,
	})
	if err != nil {
		fatalf(1, "schedtrace: %v", err)
	}
	if err := s.Load(m.K, scenario.Env{Work: m.Work}); err != nil {
		fatalf(1, "schedtrace: %v", err)
	}
	if err := m.RunFor(uint64(*dur)); err != nil {
		fatalf(1, "schedtrace: %v", err)
	}
	report(os.Stdout, m)
}

func report(w io.Writer, m *sim.Machine) {
	fmt.Fprintf(w, "\n== after %v, %d steps\n", time.Duration(m.Now()), m.Steps())
	for _, ti := range m.K.Snapshot(nil) {
		fmt.Fprintln(w, ti.String())
	}
	for _, c := range m.K.CPUInfo(nil) {
		fmt.Fprintf(w, "cpu%d running=%d idle=%v ipis=%d switches=%d task-nodes=%d timer-nodes=%d\n",
			c.ID, c.Running, c.Idle, c.IPIs, m.P.Switches(c.ID), c.TaskNodes, c.TimerNodes)
	}
	st := m.K.Stats()
	fmt.Fprintf(w, "switches=%d ipis=%d timeouts=%d timer-fires=%d deleted=%d ready=%d\n",
		st.Switches, st.IPIs, st.Timeouts, st.TimerFires, st.Deleted, st.Ready)
}

func fatalf(code int, format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}

// Package scenario holds the demo workloads shared by the host machine and
// the trace tool. A scenario only creates kernel objects and tasks; the
// caller decides how cores are driven and what one unit of work costs.
package scenario

import (
	"fmt"
	"sort"
	"strings"

	"kestrel/kernel"
)

// Env adapts a workload to the machine it runs on.
type Env struct {
	// Work consumes one unit of task compute time. Nil means free.
	Work func()
}

func (e Env) work() {
	if e.Work != nil {
		e.Work()
	}
}

// Scenario is a named workload.
type Scenario struct {
	Name  string
	About string
	load  func(k *kernel.Kernel, env Env) error
}

// Load creates the scenario's objects and tasks on k.
func (s Scenario) Load(k *kernel.Kernel, env Env) error {
	if err := s.load(k, env); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return nil
}

var registry = map[string]Scenario{}

func register(s Scenario) { registry[s.Name] = s }

// Lookup returns the scenario called name. "all" loads every scenario.
func Lookup(name string) (Scenario, bool) {
	if name == "all" {
		return Scenario{Name: "all", About: "every scenario at once", load: loadAll}, true
	}
	s, ok := registry[name]
	return s, ok
}

// Names returns the registered scenario names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Usage lists the scenarios for flag help text.
func Usage() string {
	var b strings.Builder
	for _, n := range Names() {
		fmt.Fprintf(&b, "  %-10s %s\n", n, registry[n].About)
	}
	fmt.Fprintf(&b, "  %-10s %s\n", "all", "every scenario at once")
	return b.String()
}

func loadAll(k *kernel.Kernel, env Env) error {
	for _, n := range Names() {
		if err := registry[n].Load(k, env); err != nil {
			return err
		}
	}
	return nil
}

func spawn(k *kernel.Kernel, attr kernel.TaskAttr) (kernel.TaskID, error) {
	id, st := k.CreateTask(0, attr)
	if st != kernel.StatusOK {
		return kernel.InvalidTask, fmt.Errorf("create %s: %w", attr.Name, st)
	}
	return id, nil
}

//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"kestrel/app"
	"kestrel/hal"
	"kestrel/internal/scenario"
)

func main() {
	cfg := app.DefaultConfig()
	var hcfg hal.HeadlessConfig
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window; the monitor prints to stdout.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Runner frame rate.")
	flag.Uint64Var(&hcfg.Frames, "frames", 0, "Stop after N frames in headless mode (0 = run until interrupted).")
	flag.IntVar(&cfg.Machine.CPUs, "cpus", cfg.Machine.CPUs, "Number of simulated cores.")
	flag.BoolVar(&cfg.Machine.Trace, "trace", false, "Log context switches and task messages.")
	flag.BoolVar(&cfg.Machine.Pin, "pin", false, "Pin each core goroutine to a host CPU (linux).")
	flag.DurationVar(&cfg.Machine.Quantum, "quantum", 0, "Wall time of one unit of task work (default 250us).")
	flag.StringVar(&cfg.Machine.Scenario, "demo", cfg.Machine.Scenario, "Workload to run:\n"+scenario.Usage())
	flag.Uint64Var(&cfg.RefreshMs, "refresh", cfg.RefreshMs, "Monitor period in milliseconds.")
	flag.Parse()

	if _, ok := scenario.Lookup(cfg.Machine.Scenario); !ok {
		fmt.Fprintf(os.Stderr, "unknown demo %q\n", cfg.Machine.Scenario)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if hcfg.Enabled {
		cfg.TextMonitor = true
		if err := hal.RunHeadless(ctx, func(h hal.HAL) func() error {
			return app.New(ctx, h, cfg)
		}, hcfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(func(h hal.HAL) func() error {
		return app.New(ctx, h, cfg)
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

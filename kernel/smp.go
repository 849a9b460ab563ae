package kernel

// sendIPI interrupts every core in target except from.
func (k *Kernel) sendIPI(from int, target CPUMask) {
	target &= k.allCPUs
	if from >= 0 {
		target &^= MaskOf(from)
	}
	if target == 0 {
		return
	}
	k.stats.ipis.Add(1)
	k.hw.SendIPI(target)
}

// poke asks core c to re-run its scheduler: directly when c is the calling
// core, by IPI otherwise.
func (k *Kernel) poke(from, c int) {
	if c < 0 {
		return
	}
	if c == from {
		k.cpus[c].pending = true
		return
	}
	k.sendIPI(from, MaskOf(c))
}

// notifyReady tells every core that should preempt in favour of the newly
// ready task t.
func (k *Kernel) notifyReady(from int, t *task) {
	var target CPUMask
	for c := range k.cpus {
		if !t.affinity.Has(c) {
			continue
		}
		if compare(t, &k.tasks[k.cpus[c].running]) >= 0 {
			continue
		}
		if c == from {
			k.cpus[c].pending = true
			continue
		}
		target |= MaskOf(c)
	}
	if target != 0 {
		k.sendIPI(from, target)
	}
}

// HandleIPI is the inter-processor interrupt handler of cpu. It re-evaluates
// the ready queue and reprograms the core's timer.
func (k *Kernel) HandleIPI(cpu int) {
	if !k.cpuOK(cpu) {
		return
	}
	k.IntEnter(cpu)
	k.mu.Lock()
	pc := &k.cpus[cpu]
	pc.ipis++
	pc.pending = true
	k.program(cpu, k.hw.Now())
	k.mu.Unlock()
	k.IntExit(cpu)
}

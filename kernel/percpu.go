package kernel

// IntEnter marks the start of an interrupt handler on cpu. Handlers nest.
func (k *Kernel) IntEnter(cpu int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return
	}
	pc := &k.cpus[cpu]
	if pc.intNesting == 0 {
		pc.intStart = k.hw.Now()
	}
	pc.intNesting++
}

// IntExit ends an interrupt handler. Leaving the outermost handler charges
// the time spent to no task and performs a pending reschedule.
func (k *Kernel) IntExit(cpu int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return
	}
	pc := &k.cpus[cpu]
	assert(pc.intNesting > 0, "kernel: IntExit without IntEnter")
	pc.intNesting--
	if pc.intNesting > 0 {
		return
	}
	if now := k.hw.Now(); now > pc.intStart {
		k.tasks[pc.running].irqTime += now - pc.intStart
	}
	if pc.pending {
		k.schedule(cpu)
	}
}

// InInterrupt reports whether cpu is inside an interrupt handler.
func (k *Kernel) InInterrupt(cpu int) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cpuOK(cpu) && k.cpus[cpu].intNesting > 0
}

// PreemptDisable stops cpu from switching tasks until the matching
// PreemptEnable. Calls nest.
func (k *Kernel) PreemptDisable(cpu int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return
	}
	k.cpus[cpu].lockCount++
}

// PreemptEnable undoes one PreemptDisable. A reschedule requested in the
// meantime stays pending until the next preemption point: the end of the
// current step or the exit of an interrupt.
func (k *Kernel) PreemptEnable(cpu int) Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.cpuOK(cpu) {
		return StatusInvalid
	}
	pc := &k.cpus[cpu]
	if pc.lockCount == 0 {
		return StatusInvalid
	}
	pc.lockCount--
	return StatusOK
}

// preemptable reports whether cpu may switch tasks right now. When it may
// not, the switch is recorded as pending.
func (k *Kernel) preemptable(cpu int) bool {
	pc := &k.cpus[cpu]
	if pc.lockCount > 0 || pc.intNesting > 0 {
		pc.pending = true
		return false
	}
	return true
}

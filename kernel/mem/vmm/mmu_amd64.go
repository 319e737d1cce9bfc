package vmm

import "pagevmm/kernel/cpu"

// cpuMMU drives the MMU of the CPU the kernel runs on. Its methods fault
// when invoked outside of ring 0.
type cpuMMU struct{}

func (cpuMMU) ActiveRoot() uintptr { return cpu.ActivePDT() }

func (cpuMMU) SwitchRoot(rootPhysAddr uintptr) { cpu.SwitchPDT(rootPhysAddr) }

func (cpuMMU) FlushTLBEntry(virtAddr uintptr) { cpu.FlushTLBEntry(virtAddr) }

var defaultMMU MMU = cpuMMU{}

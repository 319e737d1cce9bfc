//go:build !plan9 && !windows

// Package machine assembles a simulated machine that the vmm package can
// manage outside of the kernel: physical memory backed by a host mapping, a
// memory map, a frame allocator and a software MMU with a TLB.
package machine

import (
	"fmt"
	"pagevmm/kernel"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/memmap"
	"pagevmm/kernel/mem/physmem"
	"pagevmm/kernel/mem/pmm"
	"pagevmm/kernel/mem/pmm/allocator"
)

// Config describes the simulated machine.
type Config struct {
	// MemorySize is the amount of simulated physical memory.
	MemorySize mem.Size

	// Regions describes the memory map. If empty, all memory is reported
	// as available. Regions must lie within MemorySize.
	Regions []memmap.Region

	// Reserved lists physical ranges that the frame allocator must never
	// hand out, e.g. memory that holds pre-built tables.
	Reserved []memmap.Region
}

// Machine is a simulated machine.
type Machine struct {
	Memory    *physmem.Memory
	MemoryMap *memmap.Map
	Allocator *allocator.BitmapAllocator
	MMU       *MMU
}

// New creates a machine as described by cfg.
func New(cfg Config) (*Machine, error) {
	memory, err := physmem.New(cfg.MemorySize)
	if err != nil {
		return nil, err
	}

	memMap, err := buildMemoryMap(cfg, memory.Size())
	if err != nil {
		_ = memory.Release()
		return nil, err
	}

	alloc := allocator.NewBitmapAllocator(memMap)
	for _, region := range cfg.Reserved {
		alloc.ReserveRegion(uintptr(region.PhysAddress), mem.Size(region.Length))
	}

	return &Machine{
		Memory:    memory,
		MemoryMap: memMap,
		Allocator: alloc,
		MMU:       NewMMU(memory),
	}, nil
}

func buildMemoryMap(cfg Config, memSize mem.Size) (*memmap.Map, error) {
	memMap := memmap.New()

	regions := cfg.Regions
	if len(regions) == 0 {
		regions = []memmap.Region{{Length: uint64(memSize), Type: memmap.Available}}
	}

	for index, region := range regions {
		if region.End() > uint64(memSize) {
			return nil, fmt.Errorf("machine: region %d [0x%x, 0x%x) exceeds memory size 0x%x", index, region.PhysAddress, region.End(), uint64(memSize))
		}

		if err := memMap.Add(region); err != nil {
			return nil, fmt.Errorf("machine: region %d: %w", index, err)
		}
	}

	return memMap, nil
}

// AllocFrame reserves a frame from the machine's frame allocator. It can be
// registered as a pmm.AllocatorFn.
func (m *Machine) AllocFrame() (pmm.Frame, *kernel.Error) {
	return m.Allocator.AllocFrame()
}

// NewRoot allocates and clears a frame for a new top-level page table.
func (m *Machine) NewRoot() (pmm.Frame, *kernel.Error) {
	frame, err := m.Allocator.AllocFrame()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	if err = m.Memory.Fill(frame.Address(), 0, mem.PageSize); err != nil {
		return pmm.InvalidFrame, err
	}

	return frame, nil
}

// Release returns the machine memory to the host.
func (m *Machine) Release() error {
	return m.Memory.Release()
}

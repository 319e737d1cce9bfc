package vmm

import (
	"pagevmm/kernel"
	"pagevmm/kernel/kfmt"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/pmm"
	"unsafe"
)

var (
	// ptePtrFn returns a pointer to the supplied table address. It is
	// used by tests to observe the table addresses generated by walk.
	// When compiling the kernel this function will be automatically
	// inlined.
	ptePtrFn = func(tableAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(tableAddr)
	}
)

// walkMode controls how walk treats missing tables.
type walkMode uint8

const (
	// walkAlloc allocates and installs missing tables. Without it a
	// missing table aborts the walk with ErrInvalidMapping.
	walkAlloc walkMode = 1 << iota

	// walkUser sets FlagUserAccessible on every entry along the path.
	walkUser

	// walkStopAtP2 resolves the tables down to P2. Huge P2 entries are
	// left untouched.
	walkStopAtP2
)

// tableWalk holds the tables visited by walk, indexed by page level. Tables
// are always accessed through the direct map.
type tableWalk struct {
	tables [pageLevels]*PageTable
}

// entry returns a pointer to the entry selected by idx at the given level.
func (tw *tableWalk) entry(level int, idx Indices) *PageTableEntry {
	return &tw.tables[level][idx[level]]
}

// tableAt returns a pointer to the page table stored at the physical address
// tableAddr.
func tableAt(tableAddr uintptr) (*PageTable, *kernel.Error) {
	virtAddr, err := directMap.PhysToVirt(tableAddr)
	if err != nil {
		return nil, err
	}

	return (*PageTable)(ptePtrFn(virtAddr)), nil
}

// allocTable reserves a frame from the registered frame allocator and clears
// its contents.
func allocTable() (pmm.Frame, *PageTable, *kernel.Error) {
	if frameAllocator == nil {
		return pmm.InvalidFrame, nil, ErrAllocationFailed
	}

	frame, err := frameAllocator()
	if err != nil {
		kfmt.Printf("[vmm] page table allocation failed: %s\n", err.Error())
		return pmm.InvalidFrame, nil, ErrAllocationFailed
	}

	virtAddr, err := directMap.PhysToVirt(frame.Address())
	if err != nil {
		return pmm.InvalidFrame, nil, err
	}

	mem.Memset(virtAddr, 0, mem.PageSize)
	return frame, (*PageTable)(ptePtrFn(virtAddr)), nil
}

// walk resolves the tables that the indices in idx select under the top-level
// table at root. Missing tables are allocated when mode includes walkAlloc.
// Unless the walk stops at P2, a huge P2 entry is split into a table of 4K
// entries covering the same physical range; splitting allocates even without
// walkAlloc. Tables installed before a failure are kept.
func walk(root uintptr, idx Indices, mode walkMode) (tableWalk, *kernel.Error) {
	var (
		tw        tableWalk
		err       *kernel.Error
		lastLevel = levelP1
	)

	if mode&walkStopAtP2 != 0 {
		lastLevel = levelP2
	}

	if tw.tables[levelP4], err = tableAt(root); err != nil {
		return tw, err
	}

	for level := levelP4; level < lastLevel; level++ {
		pte := tw.entry(level, idx)

		switch {
		case pte.HasFlags(FlagPresent | FlagHugePage):
			if level != levelP2 {
				return tw, errNoHugePageSupport
			}

			if err = splitHugeEntry(pte, idx); err != nil {
				return tw, err
			}
		case !pte.HasFlags(FlagPresent):
			if mode&walkAlloc == 0 {
				return tw, ErrInvalidMapping
			}

			if err = installTable(pte, idx); err != nil {
				return tw, err
			}
		}

		if mode&walkUser != 0 && !pte.HasFlags(FlagUserAccessible) {
			pte.SetFlags(FlagUserAccessible)
			mmu.FlushTLBEntry(idx.Address())
		}

		if tw.tables[level+1], err = tableAt(pte.Frame().Address()); err != nil {
			return tw, err
		}
	}

	return tw, nil
}

// installTable points pte to a newly allocated, zeroed table.
func installTable(pte *PageTableEntry, idx Indices) *kernel.Error {
	frame, _, err := allocTable()
	if err != nil {
		return err
	}

	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | FlagRW)
	mmu.FlushTLBEntry(idx.Address())
	return nil
}

// splitHugeEntry replaces the huge P2 entry pte with a table of 4K entries
// that map the same 2M physical region with the same permissions and
// invalidates every page in the region.
func splitHugeEntry(pte *PageTableEntry, idx Indices) *kernel.Error {
	frame, table, err := allocTable()
	if err != nil {
		return err
	}

	var (
		physAddr = pte.hugeFrameAddress()
		flags    = pte.Flags() & tablePermissionMask
	)

	for i := range table {
		table[i] = PageTableEntry(uint64(physAddr)+uint64(i)<<mem.PageShift) | PageTableEntry(flags)
	}

	// The user flag must stay on the path so the split entries remain
	// reachable from user mode.
	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | FlagRW | (flags & FlagUserAccessible))

	idx[levelP1] = 0
	regionStart := idx.Address()
	for i := uintptr(0); i < tableEntries; i++ {
		mmu.FlushTLBEntry(regionStart + i<<mem.PageShift)
	}

	kfmt.Printf("[vmm] split huge page at 0x%x\n", regionStart)
	return nil
}

package vmm

import (
	"pagevmm/kernel"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/pmm"
)

// AddressSpace identifies the page tables reachable from a top-level (P4)
// table. The vmm package never allocates or releases the top-level table
// itself; its owner must keep it alive while the AddressSpace is in use.
type AddressSpace struct {
	root pmm.Frame
}

// NewAddressSpace returns an AddressSpace for the top-level table stored at
// the supplied frame. The frame must be zeroed before its first use.
func NewAddressSpace(root pmm.Frame) AddressSpace {
	return AddressSpace{root: root}
}

// ActiveAddressSpace returns the AddressSpace that is currently loaded in the
// MMU root register.
func ActiveAddressSpace() (AddressSpace, *kernel.Error) {
	defer rangeLock.AcquireGuard().Release()

	if mmu == nil {
		return AddressSpace{}, errNotInitialized
	}

	return AddressSpace{root: pmm.FrameFromAddress(mmu.ActiveRoot())}, nil
}

// Root returns the frame that holds the top-level table.
func (as AddressSpace) Root() pmm.Frame {
	return as.root
}

// Map establishes count consecutive 4K mappings from virtAddr to physAddr.
// Pages that are already mapped are left untouched and reported as
// conflicts; the remaining pages are still processed. Missing page tables
// are allocated from the registered frame allocator and huge pages in the
// range are split.
func (as AddressSpace) Map(physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	return as.applyRange(opMap, physAddr, virtAddr, count, flags)
}

// Remap behaves like Map but overwrites existing mappings instead of
// reporting a conflict.
func (as AddressSpace) Remap(physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	return as.applyRange(opRemap, physAddr, virtAddr, count, flags)
}

// Unmap clears count consecutive 4K mappings starting at virtAddr. Pages that
// are not mapped are reported as conflicts. Neither the mapped frames nor
// page tables that become empty are released.
func (as AddressSpace) Unmap(virtAddr uintptr, count int) (Report, *kernel.Error) {
	return as.applyRange(opUnmap, 0, virtAddr, count, 0)
}

// MapHuge establishes count consecutive 2M mappings from virtAddr to
// physAddr. Both addresses must be 2M aligned. Any present P2 entry for the
// range, huge or not, is reported as a conflict.
func (as AddressSpace) MapHuge(physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	return as.applyRange(opMapHuge, physAddr, virtAddr, count, flags)
}

// Lookup returns the entry that maps virtAddr together with the size of the
// page it maps. It returns ErrInvalidMapping if virtAddr is not mapped. Lookup
// never modifies the page tables.
func (as AddressSpace) Lookup(virtAddr uintptr) (PageTableEntry, mem.Size, *kernel.Error) {
	if !IsCanonical(virtAddr) {
		return 0, 0, ErrNonCanonicalAddress
	}

	defer rangeLock.AcquireGuard().Release()

	if directMap == nil {
		return 0, 0, errNotInitialized
	}

	idx := ToIndices(virtAddr)
	tw, err := walk(as.root.Address(), idx, walkStopAtP2)
	if err != nil {
		return 0, 0, err
	}

	pte := *tw.entry(levelP2, idx)
	switch {
	case !pte.HasFlags(FlagPresent):
		return 0, 0, ErrInvalidMapping
	case pte.HasFlags(FlagHugePage):
		return pte, mem.HugePageSize, nil
	}

	if tw.tables[levelP1], err = tableAt(pte.Frame().Address()); err != nil {
		return 0, 0, err
	}

	if pte = *tw.entry(levelP1, idx); !pte.HasFlags(FlagPresent) {
		return 0, 0, ErrInvalidMapping
	}

	return pte, mem.PageSize, nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, pageSize, err := as.Lookup(virtAddr)
	if err != nil {
		return 0, err
	}

	if pageSize == mem.HugePageSize {
		return pte.hugeFrameAddress() + virtAddr&uintptr(mem.HugePageSize-1), nil
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// Activate loads the top-level table of this address space into the MMU
// root register and flushes the TLB.
func (as AddressSpace) Activate() *kernel.Error {
	defer rangeLock.AcquireGuard().Release()

	if mmu == nil {
		return errNotInitialized
	}

	mmu.SwitchRoot(as.root.Address())
	return nil
}

// Map establishes mappings in the active address space. See AddressSpace.Map.
func Map(physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	as, err := ActiveAddressSpace()
	if err != nil {
		return Report{}, err
	}

	return as.Map(physAddr, virtAddr, count, flags)
}

// Remap overwrites mappings in the active address space. See
// AddressSpace.Remap.
func Remap(physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	as, err := ActiveAddressSpace()
	if err != nil {
		return Report{}, err
	}

	return as.Remap(physAddr, virtAddr, count, flags)
}

// Unmap removes mappings from the active address space. See
// AddressSpace.Unmap.
func Unmap(virtAddr uintptr, count int) (Report, *kernel.Error) {
	as, err := ActiveAddressSpace()
	if err != nil {
		return Report{}, err
	}

	return as.Unmap(virtAddr, count)
}

// Lookup returns the entry mapping virtAddr in the active address space.
func Lookup(virtAddr uintptr) (PageTableEntry, mem.Size, *kernel.Error) {
	as, err := ActiveAddressSpace()
	if err != nil {
		return 0, 0, err
	}

	return as.Lookup(virtAddr)
}

// Translate returns the physical address that virtAddr maps to in the active
// address space.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	as, err := ActiveAddressSpace()
	if err != nil {
		return 0, err
	}

	return as.Translate(virtAddr)
}

// FlushTLB reloads the MMU root register which discards all non-global
// cached translations.
func FlushTLB() *kernel.Error {
	as, err := ActiveAddressSpace()
	if err != nil {
		return err
	}

	return as.Activate()
}

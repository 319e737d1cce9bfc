// Package vmm manages the 4-level page tables of one or more address spaces.
// Page tables are only ever accessed through a DirectMap; frames for new
// tables are obtained from a registered frame allocator and translation
// cache maintenance is delegated to an MMU.
package vmm

import (
	"pagevmm/kernel"
	"pagevmm/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator pmm.AllocatorFn

	// directMap provides access to page table contents. It is registered
	// using SetDirectMap.
	directMap DirectMap

	// mmu provides access to the root table register and the TLB. It
	// defaults to the CPU on architectures that provide an implementation.
	mmu = defaultMMU

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrAllocationFailed is returned when a page table could not be
	// allocated while walking the page tables.
	ErrAllocationFailed = &kernel.Error{Module: "vmm", Message: "unable to allocate frame for page table"}

	// ErrMisalignedAddress is returned when a physical or virtual address
	// is not aligned to the page size used by the operation.
	ErrMisalignedAddress = &kernel.Error{Module: "vmm", Message: "address is not aligned to the page size"}

	// ErrNonCanonicalAddress is returned when a virtual address range is
	// not fully contained in one of the canonical halves of the address space.
	ErrNonCanonicalAddress = &kernel.Error{Module: "vmm", Message: "virtual address is not canonical"}

	// ErrPhysAddrOutOfRange is returned when a physical address range
	// cannot be encoded in a page table entry.
	ErrPhysAddrOutOfRange = &kernel.Error{Module: "vmm", Message: "physical address exceeds the addressable range"}

	// ErrRangeOverflow is returned when a page count makes an address
	// range wrap around.
	ErrRangeOverflow = &kernel.Error{Module: "vmm", Message: "page count overflows the address range"}

	// ErrInvalidFlags is returned when the supplied flags overlap the
	// frame address bits or request a page size that the operation does
	// not install.
	ErrInvalidFlags = &kernel.Error{Module: "vmm", Message: "invalid page table entry flags"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errNotInitialized    = &kernel.Error{Module: "vmm", Message: "frame allocator, direct map and MMU must be registered"}
	errOutsideDirectMap  = &kernel.Error{Module: "vmm", Message: "physical address is not covered by the direct map"}
)

// DirectMap translates physical addresses into addresses that the caller can
// dereference.
type DirectMap interface {
	PhysToVirt(physAddr uintptr) (uintptr, *kernel.Error)
}

// OffsetDirectMap is a DirectMap where physical memory [0, Limit) is
// mapped at the virtual address Offset.
type OffsetDirectMap struct {
	Offset uintptr
	Limit  uintptr
}

// PhysToVirt implements DirectMap.
func (m OffsetDirectMap) PhysToVirt(physAddr uintptr) (uintptr, *kernel.Error) {
	if physAddr >= m.Limit {
		return 0, errOutsideDirectMap
	}

	return m.Offset + physAddr, nil
}

// MMU provides access to the root table register and the translation
// lookaside buffer.
type MMU interface {
	// ActiveRoot returns the physical address of the active top-level table.
	ActiveRoot() uintptr

	// SwitchRoot loads a new top-level table and flushes the TLB.
	SwitchRoot(rootPhysAddr uintptr)

	// FlushTLBEntry invalidates the cached translation for a virtual address.
	FlushTLBEntry(virtAddr uintptr)
}

// Config bundles the collaborators required by the vmm package. A nil MMU
// selects the architecture default.
type Config struct {
	FrameAllocator pmm.AllocatorFn
	DirectMap      DirectMap
	MMU            MMU
}

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn pmm.AllocatorFn) {
	defer rangeLock.AcquireGuard().Release()
	frameAllocator = allocFn
}

// SetDirectMap registers the DirectMap used for accessing page tables.
func SetDirectMap(dm DirectMap) {
	defer rangeLock.AcquireGuard().Release()
	directMap = dm
}

// SetMMU registers the MMU used for root register access and TLB
// maintenance.
func SetMMU(m MMU) {
	defer rangeLock.AcquireGuard().Release()
	mmu = m
}

// Init registers all collaborators in cfg.
func Init(cfg Config) *kernel.Error {
	if cfg.FrameAllocator == nil || cfg.DirectMap == nil {
		return errNotInitialized
	}

	if cfg.MMU == nil {
		if cfg.MMU = defaultMMU; cfg.MMU == nil {
			return errNotInitialized
		}
	}

	SetFrameAllocator(cfg.FrameAllocator)
	SetDirectMap(cfg.DirectMap)
	SetMMU(cfg.MMU)
	return nil
}

//go:build !plan9 && !windows

package machine

import (
	"pagevmm/kernel"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/physmem"
	"pagevmm/kernel/sync"
)

// Entry bits interpreted by the page walker.
const (
	entryPresent  = uint64(1) << 0
	entryRW       = uint64(1) << 1
	entryUser     = uint64(1) << 2
	entryHuge     = uint64(1) << 7
	entryGlobal   = uint64(1) << 8
	entryNoExec   = uint64(1) << 63
	entryAddrMask = uint64(0x000ffffffffff000)
	entryHugeMask = uint64(0x000fffffffe00000)
)

var (
	errPageFault = &kernel.Error{Module: "mmu", Message: "page fault: address is not mapped"}
	errHugeP3    = &kernel.Error{Module: "mmu", Message: "page fault: 1G pages are not supported"}
	errBadTable  = &kernel.Error{Module: "mmu", Message: "page table address is outside physical memory"}
)

// Translation describes how the MMU resolves a virtual address.
type Translation struct {
	// PhysAddr is the physical address the virtual address maps to.
	PhysAddr uintptr

	// PageSize is the size of the page containing the address.
	PageSize mem.Size

	// Writable, User and Executable are the effective permissions, i.e.
	// the combination of the permission bits at every level.
	Writable   bool
	User       bool
	Executable bool

	global bool
}

// MMU is a software model of an amd64 MMU. It keeps a root table register
// and a TLB that caches translations until they are explicitly flushed, so
// missing invalidations show up as stale entries.
type MMU struct {
	lock   sync.Spinlock
	memory *physmem.Memory

	root uintptr

	// tlb is keyed by the virtual address of the first byte of the
	// cached page.
	tlb map[uintptr]Translation

	entryFlushes uint64
	rootSwitches uint64
}

// NewMMU returns an MMU that walks page tables stored in memory. The root
// register is initially 0.
func NewMMU(memory *physmem.Memory) *MMU {
	return &MMU{
		memory: memory,
		tlb:    make(map[uintptr]Translation),
	}
}

// ActiveRoot returns the contents of the root table register.
func (u *MMU) ActiveRoot() uintptr {
	defer u.lock.AcquireGuard().Release()
	return u.root
}

// SwitchRoot loads the root table register and drops every cached
// translation that is not global.
func (u *MMU) SwitchRoot(rootPhysAddr uintptr) {
	defer u.lock.AcquireGuard().Release()

	u.root = rootPhysAddr
	u.rootSwitches++
	for virtAddr, tr := range u.tlb {
		if !tr.global {
			delete(u.tlb, virtAddr)
		}
	}
}

// FlushTLBEntry drops the cached translation for the page that contains
// virtAddr, whatever its size.
func (u *MMU) FlushTLBEntry(virtAddr uintptr) {
	defer u.lock.AcquireGuard().Release()

	u.entryFlushes++
	delete(u.tlb, virtAddr&^uintptr(mem.PageSize-1))
	delete(u.tlb, virtAddr&^uintptr(mem.HugePageSize-1))
}

// Translate resolves virtAddr the way the CPU would: cached translations are
// served from the TLB and misses are filled by walking the page tables of the
// active root.
func (u *MMU) Translate(virtAddr uintptr) (Translation, *kernel.Error) {
	defer u.lock.AcquireGuard().Release()

	for _, pageSize := range []mem.Size{mem.PageSize, mem.HugePageSize} {
		base := virtAddr &^ uintptr(pageSize-1)
		if tr, ok := u.tlb[base]; ok && tr.PageSize == pageSize {
			tr.PhysAddr += virtAddr - base
			return tr, nil
		}
	}

	tr, err := u.walk(u.root, virtAddr)
	if err != nil {
		return tr, err
	}

	base := virtAddr &^ uintptr(tr.PageSize-1)
	cached := tr
	cached.PhysAddr -= virtAddr - base
	u.tlb[base] = cached
	return tr, nil
}

// Walk resolves virtAddr against the tables of root without consulting or
// updating the TLB.
func (u *MMU) Walk(root, virtAddr uintptr) (Translation, *kernel.Error) {
	defer u.lock.AcquireGuard().Release()
	return u.walk(root, virtAddr)
}

func (u *MMU) walk(root, virtAddr uintptr) (Translation, *kernel.Error) {
	var (
		tr        = Translation{Writable: true, User: true, Executable: true}
		tableAddr = root &^ uintptr(mem.PageSize-1)
	)

	for level, shift := 0, uint(39); level < 4; level, shift = level+1, shift-9 {
		entryAddr := tableAddr + ((virtAddr>>shift)&0x1ff)<<mem.PointerShift
		entry, err := u.memory.ReadUint64(entryAddr)
		if err != nil {
			return Translation{}, errBadTable
		}

		if entry&entryPresent == 0 {
			return Translation{}, errPageFault
		}

		tr.Writable = tr.Writable && entry&entryRW != 0
		tr.User = tr.User && entry&entryUser != 0
		tr.Executable = tr.Executable && entry&entryNoExec == 0

		switch {
		case level == 3:
			tr.PageSize = mem.PageSize
			tr.PhysAddr = uintptr(entry&entryAddrMask) + virtAddr&uintptr(mem.PageSize-1)
		case entry&entryHuge == 0:
			tableAddr = uintptr(entry & entryAddrMask)
			continue
		case level == 2:
			tr.PageSize = mem.HugePageSize
			tr.PhysAddr = uintptr(entry&entryHugeMask) + virtAddr&uintptr(mem.HugePageSize-1)
		default:
			return Translation{}, errHugeP3
		}

		tr.global = entry&entryGlobal != 0
		return tr, nil
	}

	return Translation{}, errPageFault
}

// StaleEntries returns the virtual addresses of cached translations that no
// longer match the page tables of the active root.
func (u *MMU) StaleEntries() []uintptr {
	defer u.lock.AcquireGuard().Release()

	var stale []uintptr
	for virtAddr, cached := range u.tlb {
		tr, err := u.walk(u.root, virtAddr)
		if err != nil || tr != cached {
			stale = append(stale, virtAddr)
		}
	}

	return stale
}

// TLBSize returns the number of cached translations.
func (u *MMU) TLBSize() int {
	defer u.lock.AcquireGuard().Release()
	return len(u.tlb)
}

// EntryFlushes returns the number of FlushTLBEntry calls.
func (u *MMU) EntryFlushes() uint64 {
	defer u.lock.AcquireGuard().Release()
	return u.entryFlushes
}

// RootSwitches returns the number of SwitchRoot calls.
func (u *MMU) RootSwitches() uint64 {
	defer u.lock.AcquireGuard().Release()
	return u.rootSwitches
}

package vmm

import (
	"math/bits"
	"pagevmm/kernel"
	"pagevmm/kernel/kfmt"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/sync"
	"time"
)

var (
	// rangeLock serializes every page table operation across all address
	// spaces.
	rangeLock sync.Spinlock

	// conflictLog reports entries that a range operation had to skip.
	conflictLog = kfmt.RateLimited(time.Second)
)

// Outcome describes what a range operation did to a single page.
type Outcome uint8

const (
	// NotAttempted is reported for the pages that follow a failed page.
	NotAttempted Outcome = iota

	// Applied is reported when the entry for the page was updated.
	Applied

	// Conflict is reported when map found the page already mapped or
	// unmap found it absent. The entry is left untouched.
	Conflict

	// Failed is reported for the page whose page table walk failed.
	Failed
)

// String implements fmt.Stringer for Outcome.
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Conflict:
		return "conflict"
	case Failed:
		return "failed"
	default:
		return "not attempted"
	}
}

// Report describes the outcome of a range operation for each page in the
// range.
type Report struct {
	Outcomes []Outcome
}

// Conflict returns true if any page in the range was reported as a conflict.
func (r Report) Conflict() bool {
	return r.Count(Conflict) != 0
}

// Count returns the number of pages that were reported with outcome o.
func (r Report) Count(o Outcome) int {
	var n int
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

type rangeOp uint8

const (
	opMap rangeOp = iota
	opRemap
	opUnmap
	opMapHuge
)

func (op rangeOp) String() string {
	switch op {
	case opMap:
		return "map"
	case opRemap:
		return "remap"
	case opUnmap:
		return "unmap"
	default:
		return "map huge"
	}
}

func (op rangeOp) pageSize() mem.Size {
	if op == opMapHuge {
		return mem.HugePageSize
	}
	return mem.PageSize
}

// validateRange checks the arguments of a range operation. Unmap ignores
// physAddr.
func validateRange(op rangeOp, physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) *kernel.Error {
	pageSize := uint64(op.pageSize())

	if count < 0 {
		return ErrRangeOverflow
	}

	if uint64(flags)&ptePhysPageMask != 0 || (op != opMapHuge && flags&FlagHugePage != 0) {
		return ErrInvalidFlags
	}

	if uint64(virtAddr)&(pageSize-1) != 0 {
		return ErrMisalignedAddress
	}

	if !IsCanonical(virtAddr) {
		return ErrNonCanonicalAddress
	}

	if count == 0 {
		return nil
	}

	hi, span := bits.Mul64(uint64(count), pageSize)
	if hi != 0 {
		return ErrRangeOverflow
	}

	lastPage := uint64(virtAddr) + span - pageSize
	if lastPage < uint64(virtAddr) {
		return ErrRangeOverflow
	}

	// Both ends must be canonical and in the same half
	if !IsCanonical(uintptr(lastPage)) || (lastPage^uint64(virtAddr))>>63 != 0 {
		return ErrNonCanonicalAddress
	}

	if op == opUnmap {
		return nil
	}

	if uint64(physAddr)&(pageSize-1) != 0 {
		return ErrMisalignedAddress
	}

	if end := uint64(physAddr) + span; end < uint64(physAddr) || end > maxPhysAddr {
		return ErrPhysAddrOutOfRange
	}

	return nil
}

// applyRange runs op over count consecutive pages starting at physAddr and
// virtAddr. The whole call runs with rangeLock held. Conflicting pages are
// skipped and processing continues; a failed page table walk aborts the
// call and the remaining pages are reported as NotAttempted.
func (as AddressSpace) applyRange(op rangeOp, physAddr, virtAddr uintptr, count int, flags PageTableEntryFlag) (Report, *kernel.Error) {
	if err := validateRange(op, physAddr, virtAddr, count, flags); err != nil {
		return Report{}, err
	}

	report := Report{Outcomes: make([]Outcome, count)}
	if count == 0 {
		return report, nil
	}

	defer rangeLock.AcquireGuard().Release()

	if directMap == nil || mmu == nil {
		return report, errNotInitialized
	}

	var (
		mode     walkMode
		level    = levelP1
		entry    = PageTableEntry(flags | FlagPresent)
		pageSize = uintptr(op.pageSize())
		root     = as.root.Address()
	)

	switch op {
	case opMap, opRemap:
		mode = walkAlloc
	case opMapHuge:
		mode, level = walkAlloc|walkStopAtP2, levelP2
		entry |= PageTableEntry(FlagHugePage)
	}

	if flags&FlagUserAccessible != 0 {
		mode |= walkUser
	}

	for page := 0; page < count; page, physAddr, virtAddr = page+1, physAddr+pageSize, virtAddr+pageSize {
		idx := ToIndices(virtAddr)

		tw, err := walk(root, idx, mode)
		switch {
		case err == ErrInvalidMapping && op == opUnmap:
			report.Outcomes[page] = Conflict
			conflictLog.Printf("[vmm] %s conflict at 0x%x: page is not mapped\n", op, virtAddr)
			continue
		case err != nil:
			report.Outcomes[page] = Failed
			kfmt.Printf("[vmm] %s failed at 0x%x: %s\n", op, virtAddr, err.Error())
			return report, err
		}

		pte := tw.entry(level, idx)
		switch {
		case op == opUnmap && !pte.HasFlags(FlagPresent):
			report.Outcomes[page] = Conflict
			conflictLog.Printf("[vmm] %s conflict at 0x%x: page is not mapped\n", op, virtAddr)
			continue
		case (op == opMap || op == opMapHuge) && pte.HasFlags(FlagPresent):
			report.Outcomes[page] = Conflict
			conflictLog.Printf("[vmm] %s conflict at 0x%x: entry 0x%x already present\n", op, virtAddr, uint64(*pte))
			continue
		case op == opUnmap:
			*pte = 0
		default:
			*pte = entry | PageTableEntry(physAddr)
		}

		mmu.FlushTLBEntry(virtAddr)
		report.Outcomes[page] = Applied
	}

	return report, nil
}

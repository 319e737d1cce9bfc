package vmm

import "math"

const (
	// pageLevels indicates the number of page levels supported by the
	// amd64 architecture.
	pageLevels = 4

	// The levels of the paging hierarchy. Each level is used as an index
	// into Indices and pageLevelShifts.
	levelP4 = 0
	levelP3 = 1
	levelP2 = 2
	levelP1 = 3

	// tableEntries is the number of entries in a page table of any level.
	tableEntries = 1 << 9

	// ptePhysPageMask is a mask that allows us to extract the physical
	// memory address pointed to by a page table entry. For this
	// particular architecture, bits 12-51 contain the physical memory
	// address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// pteHugePhysPageMask extracts the 2M-aligned physical address from a
	// P2 entry that has FlagHugePage set.
	pteHugePhysPageMask = uint64(0x000fffffffe00000)

	// maxPhysAddr is one past the highest physical address that can be
	// encoded in a page table entry.
	maxPhysAddr = uint64(1) << 52

	// canonicalBit is the highest implemented virtual address bit. Bits
	// 48-63 of a canonical address are copies of it.
	canonicalBit = 47
)

var (
	// pageLevelBits defines the virtual address bits that correspond to
	// each page level. For the amd64 architecture each PageLevel uses
	// 9 bits which amounts to 512 entries for each page level.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set if when using 2Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagAvail0, FlagAvail1 and FlagAvail2 are ignored by the MMU and
	// can be used to tag mappings.
	FlagAvail0
	FlagAvail1
	FlagAvail2

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

// tablePermissionMask selects the flags that a huge entry passes on to the
// entries of the table that replaces it when it gets split.
const tablePermissionMask = PageTableEntryFlag(math.MaxUint64) &^ PageTableEntryFlag(ptePhysPageMask) &^ FlagHugePage

package vmm

// Indices holds the table index for each level of the paging hierarchy that
// a virtual address resolves to, starting with the top-most (P4) level.
type Indices [pageLevels]uint16

// ToIndices splits a virtual address into its per-level table indices. The
// page offset and the sign-extension bits are discarded.
func ToIndices(virtAddr uintptr) Indices {
	var idx Indices
	for level := 0; level < pageLevels; level++ {
		idx[level] = uint16((virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1))
	}

	return idx
}

// Address reassembles the page-aligned virtual address described by idx. The
// result is always canonical: bits 48-63 are filled with copies of bit 47.
func (idx Indices) Address() uintptr {
	var virtAddr uintptr
	for level := 0; level < pageLevels; level++ {
		virtAddr |= uintptr(idx[level]&((1<<pageLevelBits[level])-1)) << pageLevelShifts[level]
	}

	return canonicalize(virtAddr)
}

// canonicalize sign-extends bit 47 of virtAddr into bits 48-63.
func canonicalize(virtAddr uintptr) uintptr {
	const shift = 63 - canonicalBit
	return uintptr(int64(virtAddr<<shift) >> shift)
}

// IsCanonical returns true if bits 48-63 of virtAddr are copies of bit 47.
func IsCanonical(virtAddr uintptr) bool {
	return canonicalize(virtAddr) == virtAddr
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}

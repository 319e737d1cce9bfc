package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uint64)). Page table
	// entries are always 8 bytes wide so entry offsets inside a table are
	// calculated as (index << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// HugePageShift is equal to log2(HugePageSize).
	HugePageShift = 21

	// HugePageSize defines the size of a region mapped by a single
	// middle-level (P2) entry with the huge page flag set.
	HugePageSize = Size(1 << HugePageShift)
)

// Package memmap keeps track of the physical memory map of a machine: the list
// of physical address ranges together with their availability type.
package memmap

import (
	"pagevmm/kernel"
	"pagevmm/kernel/mem"

	"github.com/google/btree"
)

// RegionType defines the type of a Region.
type RegionType uint32

const (
	// Available indicates that the memory region is available for use.
	Available RegionType = iota + 1

	// Reserved indicates that the memory region is not available for use.
	Reserved

	// AcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	AcpiReclaimable

	// Nvs indicates memory that must be preserved when hibernating.
	Nvs

	// Any value >= typeUnknown will be mapped to Reserved.
	typeUnknown
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case Available:
		return "available"
	case Reserved:
		return "reserved"
	case AcpiReclaimable:
		return "ACPI (reclaimable)"
	case Nvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// ParseRegionType maps the textual representation of a region type (as
// returned by String) back to a RegionType. Unknown names map to Reserved.
func ParseRegionType(name string) RegionType {
	for t := Available; t < typeUnknown; t++ {
		if t.String() == name {
			return t
		}
	}

	return Reserved
}

// Region describes a contiguous physical memory range, namely its physical
// address, its length and its type.
type Region struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type RegionType
}

// End returns the first physical address past the end of the region.
func (r Region) End() uint64 {
	return r.PhysAddress + r.Length
}

// Visitor defines a visitor function that gets invoked by Map.Visit for each
// registered region in ascending address order. The visitor must return true
// to continue or false to abort the scan.
type Visitor func(region Region) bool

var (
	errEmptyRegion       = &kernel.Error{Module: "memmap", Message: "memory region length must be greater than zero"}
	errRegionOverflow    = &kernel.Error{Module: "memmap", Message: "memory region wraps around the physical address space"}
	errOverlappingRegion = &kernel.Error{Module: "memmap", Message: "memory region overlaps an existing region"}
)

// Map is an ordered set of non-overlapping physical memory regions. The zero
// value is not usable; use New to create a Map.
type Map struct {
	regions *btree.BTreeG[Region]
}

// New returns an empty memory map.
func New() *Map {
	return &Map{
		regions: btree.NewG(8, func(a, b Region) bool {
			return a.PhysAddress < b.PhysAddress
		}),
	}
}

// Add registers a new region with the map. Regions with an unknown type are
// recorded as Reserved. Add returns an error if the region is empty, wraps
// around the address space or overlaps a region that is already registered.
func (m *Map) Add(region Region) *kernel.Error {
	if region.Length == 0 {
		return errEmptyRegion
	}

	if region.End() < region.PhysAddress {
		return errRegionOverflow
	}

	if region.Type == 0 || region.Type >= typeUnknown {
		region.Type = Reserved
	}

	overlaps := false
	m.regions.DescendLessOrEqual(region, func(prev Region) bool {
		overlaps = prev.End() > region.PhysAddress
		return false
	})
	m.regions.AscendGreaterOrEqual(region, func(next Region) bool {
		overlaps = overlaps || next.PhysAddress < region.End()
		return false
	})
	if overlaps {
		return errOverlappingRegion
	}

	m.regions.ReplaceOrInsert(region)
	return nil
}

// Find returns the region that contains the given physical address.
func (m *Map) Find(physAddr uint64) (Region, bool) {
	var (
		found Region
		ok    bool
	)

	m.regions.DescendLessOrEqual(Region{PhysAddress: physAddr}, func(r Region) bool {
		found, ok = r, physAddr < r.End()
		return false
	})

	return found, ok
}

// Visit invokes visitor for each region in ascending address order.
func (m *Map) Visit(visitor Visitor) {
	m.regions.Ascend(btree.ItemIteratorG[Region](visitor))
}

// Len returns the number of regions in the map.
func (m *Map) Len() int {
	return m.regions.Len()
}

// Size returns the total size of all regions with the given type.
func (m *Map) Size(regionType RegionType) mem.Size {
	var total mem.Size
	m.Visit(func(r Region) bool {
		if r.Type == regionType {
			total += mem.Size(r.Length)
		}
		return true
	})

	return total
}

// Limit returns the first physical address past the end of the highest
// region in the map or 0 if the map is empty.
func (m *Map) Limit() uint64 {
	last, ok := m.regions.Max()
	if !ok {
		return 0
	}

	return last.End()
}

package memmap

import (
	"pagevmm/kernel/mem"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMapAdd(t *testing.T) {
	m := New()

	specs := []struct {
		region Region
		expErr error
	}{
		{Region{PhysAddress: 0x100000, Length: 0x100000, Type: Available}, nil},
		{Region{PhysAddress: 0x0, Length: 0x9f000, Type: Available}, nil},
		{Region{PhysAddress: 0x9f000, Length: 0x61000, Type: Reserved}, nil},
		// empty
		{Region{PhysAddress: 0x400000, Length: 0, Type: Available}, errEmptyRegion},
		// wraps around
		{Region{PhysAddress: ^uint64(0) - 10, Length: 0x1000, Type: Available}, errRegionOverflow},
		// overlaps the start of an existing region
		{Region{PhysAddress: 0x1ff000, Length: 0x2000, Type: Available}, errOverlappingRegion},
		// overlaps the end of an existing region
		{Region{PhysAddress: 0x9e000, Length: 0x2000, Type: Available}, errOverlappingRegion},
		// fully contained
		{Region{PhysAddress: 0x101000, Length: 0x1000, Type: Available}, errOverlappingRegion},
		// same start
		{Region{PhysAddress: 0x100000, Length: 0x1000, Type: Available}, errOverlappingRegion},
		// unknown type gets mapped to reserved
		{Region{PhysAddress: 0x200000, Length: 0x1000, Type: RegionType(42)}, nil},
	}

	for specIndex, spec := range specs {
		err := m.Add(spec.region)
		if spec.expErr == nil && err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}
		if spec.expErr != nil && err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	var got []Region
	m.Visit(func(r Region) bool {
		got = append(got, r)
		return true
	})

	exp := []Region{
		{PhysAddress: 0x0, Length: 0x9f000, Type: Available},
		{PhysAddress: 0x9f000, Length: 0x61000, Type: Reserved},
		{PhysAddress: 0x100000, Length: 0x100000, Type: Available},
		{PhysAddress: 0x200000, Length: 0x1000, Type: Reserved},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected region list (-want +got):\n%s", diff)
	}

	if exp, got := 4, m.Len(); got != exp {
		t.Errorf("expected map to contain %d regions; got %d", exp, got)
	}

	if exp, got := mem.Size(0x9f000+0x100000), m.Size(Available); got != exp {
		t.Errorf("expected available size to be %d; got %d", exp, got)
	}

	if exp, got := uint64(0x201000), m.Limit(); got != exp {
		t.Errorf("expected map limit to be 0x%x; got 0x%x", exp, got)
	}
}

func TestMapFind(t *testing.T) {
	m := New()
	if _, ok := m.Find(0); ok {
		t.Fatal("expected Find on an empty map to fail")
	}

	if exp, got := uint64(0), m.Limit(); got != exp {
		t.Fatalf("expected empty map limit to be %d; got %d", exp, got)
	}

	_ = m.Add(Region{PhysAddress: 0x1000, Length: 0x2000, Type: Available})
	_ = m.Add(Region{PhysAddress: 0x8000, Length: 0x1000, Type: Nvs})

	specs := []struct {
		addr    uint64
		expOK   bool
		expType RegionType
	}{
		{0x0, false, 0},
		{0x1000, true, Available},
		{0x2fff, true, Available},
		{0x3000, false, 0},
		{0x8800, true, Nvs},
		{0x9000, false, 0},
	}

	for specIndex, spec := range specs {
		region, ok := m.Find(spec.addr)
		if ok != spec.expOK {
			t.Errorf("[spec %d] expected Find(0x%x) ok to be %t; got %t", specIndex, spec.addr, spec.expOK, ok)
			continue
		}
		if ok && region.Type != spec.expType {
			t.Errorf("[spec %d] expected region type %s; got %s", specIndex, spec.expType, region.Type)
		}
	}
}

func TestMapVisitAbort(t *testing.T) {
	m := New()
	for i := uint64(0); i < 10; i++ {
		_ = m.Add(Region{PhysAddress: i * 0x1000, Length: 0x1000, Type: Available})
	}

	visited := 0
	m.Visit(func(r Region) bool {
		visited++
		return visited < 3
	})

	if exp := 3; visited != exp {
		t.Fatalf("expected visitor to be invoked %d times; got %d", exp, visited)
	}
}

func TestRegionTypeString(t *testing.T) {
	for regionType := Available; regionType < typeUnknown; regionType++ {
		if got := ParseRegionType(regionType.String()); got != regionType {
			t.Errorf("expected ParseRegionType(%q) to return %d; got %d", regionType.String(), regionType, got)
		}
	}

	if got := RegionType(0).String(); got != "unknown" {
		t.Errorf("expected unknown region type string; got %q", got)
	}

	if got := ParseRegionType("bogus"); got != Reserved {
		t.Errorf("expected unknown names to map to reserved; got %s", got)
	}
}

package vmm

import "testing"

func TestIndices(t *testing.T) {
	specs := []struct {
		virtAddr uintptr
		exp      Indices
	}{
		{0, Indices{0, 0, 0, 0}},
		{0x400000, Indices{0, 0, 2, 0}},
		{0x8080604000, Indices{1, 2, 3, 4}},
		{0x00007ffffffff000, Indices{255, 511, 511, 511}},
		{0xffff800000000000, Indices{256, 0, 0, 0}},
		{0xffffffff80000000, Indices{511, 510, 0, 0}},
		{0xfffffffffffff000, Indices{511, 511, 511, 511}},
	}

	for specIndex, spec := range specs {
		idx := ToIndices(spec.virtAddr)
		if idx != spec.exp {
			t.Errorf("[spec %d] expected ToIndices(0x%x) to return %v; got %v", specIndex, spec.virtAddr, spec.exp, idx)
			continue
		}

		if got := idx.Address(); got != spec.virtAddr {
			t.Errorf("[spec %d] expected round trip to return 0x%x; got 0x%x", specIndex, spec.virtAddr, got)
		}
	}
}

func TestIndicesDropPageOffset(t *testing.T) {
	// This address breaks down to:
	// p4 index: 1
	// p3 index: 2
	// p2 index: 3
	// p1 index: 4
	// offset  : 1024
	idx := ToIndices(0x8080604400)

	if exp := (Indices{1, 2, 3, 4}); idx != exp {
		t.Fatalf("expected indices %v; got %v", exp, idx)
	}

	if exp, got := uintptr(0x8080604000), idx.Address(); got != exp {
		t.Fatalf("expected address 0x%x; got 0x%x", exp, got)
	}
}

func TestIsCanonical(t *testing.T) {
	specs := []struct {
		virtAddr uintptr
		exp      bool
	}{
		{0, true},
		{0x00007fffffffffff, true},
		{0x0000800000000000, false},
		{0x0001000000000000, false},
		{0xffff7fffffffffff, false},
		{0xffff800000000000, true},
		{0xffffffffffffffff, true},
	}

	for specIndex, spec := range specs {
		if got := IsCanonical(spec.virtAddr); got != spec.exp {
			t.Errorf("[spec %d] expected IsCanonical(0x%x) to return %t; got %t", specIndex, spec.virtAddr, spec.exp, got)
		}
	}
}

func TestPageOffset(t *testing.T) {
	specs := []struct {
		virtAddr uintptr
		exp      uintptr
	}{
		{0x8080604400, 0x400},
		{0x1000, 0},
		{0xffffffffffffffff, 0xfff},
	}

	for specIndex, spec := range specs {
		if got := PageOffset(spec.virtAddr); got != spec.exp {
			t.Errorf("[spec %d] expected offset 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}
}

package vmm

import (
	"pagevmm/kernel/mem/pmm"
	"testing"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   PageTableEntry
		flag1 = PageTableEntryFlag(1 << 10)
		flag2 = PageTableEntryFlag(1 << 21)
	)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       PageTableEntry
		physFrame = pmm.Frame(123)
		flags     = FlagPresent | FlagRW | FlagNoExecute
	)

	pte.SetFlags(flags)
	pte.SetFrame(physFrame)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected pte.Frame() to return %v; got %v", physFrame, got)
	}

	if got := pte.Flags(); got != flags {
		t.Fatalf("expected pte.Flags() to return 0x%x; got 0x%x", uint64(flags), uint64(got))
	}

	// Frames beyond the encodable range are truncated to bits 12-51
	for _, frame := range []pmm.Frame{1 << 40, 1 << 41, 1<<40 | 0x7} {
		pte.SetFrame(frame)
		if exp, got := frame&0x7, pte.Frame(); got != exp {
			t.Fatalf("[frame 0x%x] expected frame bits above bit 51 to be dropped; got %v", uint64(frame), got)
		}

		if got := pte.Flags(); got != flags {
			t.Fatalf("[frame 0x%x] expected SetFrame to preserve flags 0x%x; got 0x%x", uint64(frame), uint64(flags), uint64(got))
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
		{0xffff800000201abc, Page(0xffff800000201)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}

		if got := spec.expPage.Address(); got != spec.input&^0xfff {
			t.Errorf("[spec %d] expected page address to be 0x%x; got 0x%x", specIndex, spec.input&^0xfff, got)
		}
	}
}

func TestPageIndices(t *testing.T) {
	page := PageFromAddress(0x8080604400)
	if exp, got := (Indices{1, 2, 3, 4}), page.Indices(); got != exp {
		t.Fatalf("expected page indices %v; got %v", exp, got)
	}

	if exp, got := ToIndices(0xffff800000201000), PageFromAddress(0xffff800000201abc).Indices(); got != exp {
		t.Fatalf("expected upper-half page indices %v; got %v", exp, got)
	}
}

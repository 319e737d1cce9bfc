package mem

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(uintptr(0), 0x00, 0)

	for pageCount := uint32(1); pageCount <= 10; pageCount++ {
		buf := make([]byte, PageSize<<pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		addr := uintptr(unsafe.Pointer(&buf[0]))
		Memset(addr, 0x00, Size(len(buf)))

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}
}

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uint64
		expHuge  uint64
	}{
		{1023 * Kb, 256, 1},
		{1024 * Kb, 256, 1},
		{1 * Byte, 1, 1},
		{2 * Mb, 512, 1},
		{2*Mb + 1, 513, 2},
		{0, 0, 0},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}
		if got := spec.size.HugePages(); got != spec.expHuge {
			t.Errorf("[spec %d] expected HugePages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expHuge, got)
		}
	}
}

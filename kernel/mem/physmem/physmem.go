//go:build !plan9 && !windows

// Package physmem models the physical memory of a machine with an anonymous
// host mapping so that page tables can be built, walked and inspected outside
// of the kernel. Physical address p is backed by byte p of the mapping and the
// host address of the mapping start acts as the direct map offset.
package physmem

import (
	"fmt"
	"pagevmm/kernel"
	"pagevmm/kernel/mem"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errAddrOutOfRange = &kernel.Error{Module: "physmem", Message: "physical address is not backed by memory"}
	errUnalignedRead  = &kernel.Error{Module: "physmem", Message: "unaligned 64-bit access"}
	errReleased       = &kernel.Error{Module: "physmem", Message: "memory has been released"}
)

// Memory is a block of simulated physical memory starting at physical
// address 0.
type Memory struct {
	buf  []byte
	base uintptr
}

// New reserves size bytes of simulated physical memory. The size is rounded up
// to the nearest page boundary. Pages are populated lazily by the host so
// large memories only consume what is actually touched.
func New(size mem.Size) (*Memory, error) {
	if size == 0 {
		return nil, fmt.Errorf("physmem.New: size must be greater than zero")
	}

	size = mem.Size(size.Pages()) << mem.PageShift
	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("physmem.New %d: %w", size, err)
	}

	return &Memory{
		buf:  buf,
		base: uintptr(unsafe.Pointer(&buf[0])),
	}, nil
}

// Size returns the amount of simulated physical memory in bytes.
func (m *Memory) Size() mem.Size {
	return mem.Size(len(m.buf))
}

// Offset returns the direct map offset, i.e. the host address that
// corresponds to physical address 0.
func (m *Memory) Offset() uintptr {
	return m.base
}

// PhysToVirt translates a physical address to the host address through which
// it can be accessed.
func (m *Memory) PhysToVirt(physAddr uintptr) (uintptr, *kernel.Error) {
	if m.buf == nil {
		return 0, errReleased
	}

	if physAddr >= uintptr(len(m.buf)) {
		return 0, errAddrOutOfRange
	}

	return m.base + physAddr, nil
}

// Bytes returns a slice that aliases size bytes of physical memory starting
// at physAddr.
func (m *Memory) Bytes(physAddr uintptr, size mem.Size) ([]byte, *kernel.Error) {
	if m.buf == nil {
		return nil, errReleased
	}

	end := uint64(physAddr) + uint64(size)
	if end < uint64(physAddr) || end > uint64(len(m.buf)) {
		return nil, errAddrOutOfRange
	}

	return m.buf[physAddr:end:end], nil
}

// ReadUint64 reads the naturally aligned 64-bit value stored at physAddr.
func (m *Memory) ReadUint64(physAddr uintptr) (uint64, *kernel.Error) {
	if physAddr&7 != 0 {
		return 0, errUnalignedRead
	}

	if _, err := m.Bytes(physAddr, 8); err != nil {
		return 0, err
	}

	return *(*uint64)(unsafe.Pointer(&m.buf[physAddr])), nil
}

// WriteUint64 stores a naturally aligned 64-bit value at physAddr.
func (m *Memory) WriteUint64(physAddr uintptr, value uint64) *kernel.Error {
	if physAddr&7 != 0 {
		return errUnalignedRead
	}

	if _, err := m.Bytes(physAddr, 8); err != nil {
		return err
	}

	*(*uint64)(unsafe.Pointer(&m.buf[physAddr])) = value
	return nil
}

// Fill sets size bytes starting at physAddr to value.
func (m *Memory) Fill(physAddr uintptr, value byte, size mem.Size) *kernel.Error {
	if _, err := m.Bytes(physAddr, size); err != nil {
		return err
	}

	mem.Memset(m.base+physAddr, value, size)
	return nil
}

// Release returns the memory to the host. Any further access through
// PhysToVirt or Bytes fails and host addresses obtained earlier must no
// longer be dereferenced.
func (m *Memory) Release() error {
	if m.buf == nil {
		return fmt.Errorf("physmem.Release already called")
	}

	if err := unix.Munmap(m.buf); err != nil {
		return fmt.Errorf("physmem.Release: %w", err)
	}

	m.buf, m.base = nil, 0
	return nil
}

// Package allocator provides physical frame allocators that operate on the
// available regions of a machine memory map.
package allocator

import (
	"pagevmm/kernel"
	"pagevmm/kernel/kfmt"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/memmap"
	"pagevmm/kernel/mem/pmm"
	"pagevmm/kernel/sync"
)

var (
	errBitmapAllocOutOfMemory     = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocFrameNotManaged = &kernel.Error{Module: "bitmap_alloc", Message: "frame not managed by this allocator"}
	errBitmapAllocDoubleFree      = &kernel.Error{Module: "bitmap_alloc", Message: "frame is already free"}
)

// markAs is used to indicate whether a frame should be marked as reserved or
// free.
type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame pmm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame pmm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool. A set bit indicates
	// a reserved frame.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps. It is safe
// for concurrent use.
type BitmapAllocator struct {
	lock sync.Spinlock

	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools []framePool
}

// NewBitmapAllocator creates a frame pool for each available region of the
// supplied memory map. Region boundaries that are not page-aligned are
// rounded inwards and regions smaller than a page are ignored.
func NewBitmapAllocator(memMap *memmap.Map) *BitmapAllocator {
	var (
		alloc          = new(BitmapAllocator)
		pageSizeMinus1 = uint64(mem.PageSize - 1)
	)

	memMap.Visit(func(region memmap.Region) bool {
		if region.Type != memmap.Available {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		regionStart := (region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1
		regionEnd := region.End() & ^pageSizeMinus1
		if regionEnd <= regionStart {
			return true
		}

		startFrame := pmm.Frame(regionStart >> mem.PageShift)
		endFrame := pmm.Frame(regionEnd>>mem.PageShift) - 1
		pageCount := uint32(endFrame - startFrame + 1)

		alloc.pools = append(alloc.pools, framePool{
			startFrame: startFrame,
			endFrame:   endFrame,
			freeCount:  pageCount,
			// To represent the free page bitmap we need pageCount bits. Since our
			// slice uses uint64 for storing the bitmap we need to round up the
			// required bits so they are a multiple of 64 bits
			freeBitmap: make([]uint64, (pageCount+63)>>6),
		})
		alloc.totalPages += pageCount
		return true
	})

	return alloc
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not managed by any pool.
func (alloc *BitmapAllocator) poolForFrame(frame pmm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame. It returns false if the frame was
// already in the requested state.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame pmm.Frame, flag markAs) bool {
	var (
		pool        = &alloc.pools[poolIndex]
		relFrame    = uint32(frame - pool.startFrame)
		block       = relFrame >> 6
		mask        = uint64(1) << (relFrame & 63)
		wasReserved = pool.freeBitmap[block]&mask != 0
	)

	switch flag {
	case markFree:
		if !wasReserved {
			return false
		}
		pool.freeBitmap[block] &^= mask
		pool.freeCount++
		alloc.reservedPages--
	default:
		if wasReserved {
			return false
		}
		pool.freeBitmap[block] |= mask
		pool.freeCount--
		alloc.reservedPages++
	}

	return true
}

// ReserveRegion flags every managed frame that overlaps the physical region
// [physAddr, physAddr+size) as reserved so it will never be handed out by
// AllocFrame. Frames outside the allocator pools are ignored.
func (alloc *BitmapAllocator) ReserveRegion(physAddr uintptr, size mem.Size) {
	defer alloc.lock.AcquireGuard().Release()

	if size == 0 {
		return
	}

	startFrame := pmm.FrameFromAddress(physAddr)
	endFrame := pmm.FrameFromAddress(physAddr + uintptr(size) - 1)
	for frame := startFrame; frame <= endFrame; frame++ {
		if poolIndex := alloc.poolForFrame(frame); poolIndex >= 0 {
			alloc.markFrame(poolIndex, frame, markReserved)
		}
	}
}

// AllocFrame reserves and returns the lowest available physical frame.
func (alloc *BitmapAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	defer alloc.lock.AcquireGuard().Release()

	for poolIndex := 0; poolIndex < len(alloc.pools); poolIndex++ {
		pool := &alloc.pools[poolIndex]
		if pool.freeCount == 0 {
			continue
		}

		for blockIndex, block := range pool.freeBitmap {
			if block == ^uint64(0) {
				continue
			}

			for bitIndex := uint32(0); bitIndex < 64; bitIndex++ {
				if block&(uint64(1)<<bitIndex) != 0 {
					continue
				}

				frame := pool.startFrame + pmm.Frame(uint32(blockIndex)<<6+bitIndex)
				if frame > pool.endFrame {
					// padding bits past the end of the pool
					break
				}

				alloc.markFrame(poolIndex, frame, markReserved)
				return frame, nil
			}
		}
	}

	return pmm.InvalidFrame, errBitmapAllocOutOfMemory
}

// FreeFrame releases a frame previously reserved via AllocFrame or
// ReserveRegion.
func (alloc *BitmapAllocator) FreeFrame(frame pmm.Frame) *kernel.Error {
	defer alloc.lock.AcquireGuard().Release()

	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 {
		return errBitmapAllocFrameNotManaged
	}

	if !alloc.markFrame(poolIndex, frame, markFree) {
		return errBitmapAllocDoubleFree
	}

	return nil
}

// TotalPages returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalPages() uint32 {
	defer alloc.lock.AcquireGuard().Release()
	return alloc.totalPages
}

// ReservedPages returns the number of frames that are currently reserved.
func (alloc *BitmapAllocator) ReservedPages() uint32 {
	defer alloc.lock.AcquireGuard().Release()
	return alloc.reservedPages
}

// PrintStats outputs the allocator pool layout and usage.
func (alloc *BitmapAllocator) PrintStats() {
	defer alloc.lock.AcquireGuard().Release()

	kfmt.Printf("[bitmap_alloc] page stats: free: %d/%d (%d reserved)\n",
		alloc.totalPages-alloc.reservedPages,
		alloc.totalPages,
		alloc.reservedPages,
	)
	for poolIndex, pool := range alloc.pools {
		kfmt.Printf("[bitmap_alloc] pool %d: frames [0x%x - 0x%x], free: %d\n",
			poolIndex, uint64(pool.startFrame), uint64(pool.endFrame), pool.freeCount,
		)
	}
}

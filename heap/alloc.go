package heap

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

// Alloc reserves a block with room for at least size payload bytes and returns the offset of
// its payload, which is a multiple of Alignment. The payload contents are whatever the region
// held before. A request for 0 bytes still returns a distinct Pointer that must be freed.
//
// If no free block is large enough, Alloc returns Null and an error wrapping
// memutils.ErrOutOfMemory, and the heap is unchanged.
func (h *Heap) Alloc(size int) (Pointer, error) {
	if size < 0 {
		return Null, cerrors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	memutils.DebugValidate(h)

	needed, ok := blockSizeFor(size, h.end)
	if !ok {
		h.logAllocFailure(size)
		return Null, cerrors.Wrapf(memutils.ErrOutOfMemory, "requested %d bytes from a heap of %d", size, h.end)
	}

	block := h.findFreeBlock(needed)
	if block == noBlock {
		h.logAllocFailure(size)
		return Null, cerrors.Wrapf(memutils.ErrOutOfMemory, "requested %d bytes", size)
	}

	h.takeFreeBlock(block, needed)

	memutils.DebugValidate(h)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocated block",
		slog.Int("offset", int(block)),
		slog.Int("blockSize", int(h.blockSize(block))),
		slog.Int("requested", size))

	return payloadOf(block), nil
}

func (h *Heap) logAllocFailure(size int) {
	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Could not allocate block",
		slog.Int("requested", size))
}

func (h *Heap) findFreeBlock(needed uint32) uint32 {
	if h.Strategy() == AllocationStrategyMinMemory {
		best := noBlock
		var bestSize uint32

		for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
			size := h.blockSize(block)
			if size < needed {
				continue
			}

			// Strictly smaller, so an earlier (lower) block wins a tie
			if best == noBlock || size < bestSize {
				best = block
				bestSize = size
			}

			if size == needed {
				break
			}
		}

		return best
	}

	for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
		if h.blockSize(block) >= needed {
			return block
		}
	}

	return noBlock
}

// takeFreeBlock marks a free block of at least needed bytes as used, splitting the tail off
// into a new free block when it is big enough to stand alone. Otherwise the slack stays with
// the allocation.
func (h *Heap) takeFreeBlock(block uint32, needed uint32) {
	size := h.blockSize(block)

	if size-needed < MinBlockSize {
		h.removeFreeBlock(block)
		h.setHeader(block, size, true)
		return
	}

	remainder := block + needed
	remainderSize := size - needed

	h.replaceFreeBlock(block, remainder)
	h.setHeader(remainder, remainderSize, false)
	h.setPrevSize(remainder, needed)
	h.linkSuccessor(remainder, remainderSize)

	h.setHeader(block, needed, true)
}

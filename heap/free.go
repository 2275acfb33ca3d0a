package heap

import (
	"context"

	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

// Free returns the block behind p to the heap, merging it with any free neighbor so that
// no two adjacent blocks are ever both free. Freeing Null does nothing.
//
// p must have been returned by Alloc or Resize on this heap and not freed since. Freeing
// anything else corrupts the heap; Free does not detect it.
func (h *Heap) Free(p Pointer) {
	if p == Null {
		return
	}

	memutils.DebugValidate(h)

	block := blockOf(p)
	size := h.blockSize(block)
	merged := h.release(block, size)

	memutils.DebugValidate(h)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Released block",
		slog.Int("offset", int(block)),
		slog.Int("blockSize", int(size)),
		slog.Int("freeRangeOffset", int(merged)),
		slog.Int("freeRangeSize", int(h.blockSize(merged))))
}

// release turns [block, block+size) into free space, coalescing with the physical neighbors,
// and returns the offset of the resulting free block. The range need not currently carry a
// valid header; Resize uses this to give back the tail of a shrunken block.
func (h *Heap) release(block uint32, size uint32) uint32 {
	next := block + size
	nextIsFree := next < h.end && !h.isUsed(next)

	prev := noBlock
	if prevSize := h.prevSize(block); block != 0 && prevSize != 0 {
		if candidate := block - prevSize; !h.isUsed(candidate) {
			prev = candidate
		}
	}

	switch {
	case prev != noBlock && nextIsFree:
		// prev keeps its place on the free list and swallows both
		h.removeFreeBlock(next)
		mergedSize := h.blockSize(prev) + size + h.blockSize(next)
		h.setHeader(prev, mergedSize, false)
		h.linkSuccessor(prev, mergedSize)
		return prev
	case prev != noBlock:
		mergedSize := h.blockSize(prev) + size
		h.setHeader(prev, mergedSize, false)
		h.linkSuccessor(prev, mergedSize)
		return prev
	case nextIsFree:
		// Nothing free lies between block and next, so block can take next's place on the list
		mergedSize := size + h.blockSize(next)
		h.replaceFreeBlock(next, block)
		h.setHeader(block, mergedSize, false)
		h.linkSuccessor(block, mergedSize)
		return block
	default:
		h.setHeader(block, size, false)
		h.linkSuccessor(block, size)
		h.insertFreeBlock(block)
		return block
	}
}

package heap

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/heaplib/memutils"
)

var _ memutils.Validatable = &Heap{}

// Validate walks every block and the free list and checks the heap's structural invariants.
// When the heap is functioning correctly, it should not be possible for this method to
// return an error. It is O(number of blocks) and is run after every mutating call when
// built with the debug_mem_utils tag.
func (h *Heap) Validate() error {
	if h.u32(h.end+trailerMagicOffset) != trailerMagic {
		return errors.New("heap trailer magic has been overwritten")
	}

	if h.u32(h.end+trailerSizeOffset) != h.end {
		return errors.Errorf("heap trailer records %d usable bytes, but the heap has %d", h.u32(h.end+trailerSizeOffset), h.end)
	}

	if strategy, ok := h.Strategy().resolve(); !ok || strategy != h.Strategy() {
		return errors.Errorf("heap trailer records unknown strategy %d", uint32(h.Strategy()))
	}

	var offset, prevSize uint32
	var freeCount int
	prevWasFree := false

	for offset < h.end {
		word := h.u32(offset)
		size := word &^ flagMask

		if word&flagMask&^flagUsed != 0 {
			return errors.Errorf("block at offset %d has unknown flags %#x", offset, word&flagMask)
		}

		if size < MinBlockSize {
			return errors.Errorf("block at offset %d has size %d, which is below the minimum block size", offset, size)
		}

		if size > h.end-offset {
			return errors.Errorf("block at offset %d with size %d runs past the end of the heap at %d", offset, size, h.end)
		}

		if h.prevSize(offset) != prevSize {
			return errors.Errorf("block at offset %d records a previous block of size %d, but the previous block has size %d", offset, h.prevSize(offset), prevSize)
		}

		free := word&flagUsed == 0
		if free {
			if prevWasFree {
				return errors.Errorf("block at offset %d is free and so is the block before it", offset)
			}
			freeCount++
		}

		prevWasFree = free
		prevSize = size
		offset += size
	}

	if offset != h.end {
		return errors.Errorf("the blocks add up to %d bytes, but the heap has %d", offset, h.end)
	}

	var listCount int
	prev := noBlock
	for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
		if block >= h.end || !memutils.IsAligned(block, Alignment) {
			return errors.Errorf("free list contains invalid offset %d", block)
		}

		if h.isUsed(block) {
			return errors.Errorf("block at offset %d is in the free list but is not free", block)
		}

		if h.prevFree(block) != prev {
			return errors.Errorf("block at offset %d lists %d as its previous free block, but the list reached it from %d", block, h.prevFree(block), prev)
		}

		if prev != noBlock && block <= prev {
			return errors.Errorf("free list is out of address order: %d follows %d", block, prev)
		}

		listCount++
		if listCount > freeCount {
			return errors.Errorf("the free list holds more entries than the %d free blocks in the heap", freeCount)
		}

		prev = block
	}

	if listCount != freeCount {
		return errors.Errorf("the number of free blocks in the physical list and the number of blocks in the free list do not match! free list size: %d, physical list free blocks: %d", listCount, freeCount)
	}

	return nil
}

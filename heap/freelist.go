package heap

// The free list is doubly linked through the payloads of free blocks and is kept in address
// order, so the first fitting block on the list is also the lowest-addressed one.

func (h *Heap) insertFreeBlock(block uint32) {
	prev := noBlock
	next := h.freeHead()
	for next != noBlock && next < block {
		prev = next
		next = h.nextFree(next)
	}

	h.setNextFree(block, next)
	h.setPrevFree(block, prev)

	if prev == noBlock {
		h.setFreeHead(block)
	} else {
		h.setNextFree(prev, block)
	}

	if next != noBlock {
		h.setPrevFree(next, block)
	}
}

func (h *Heap) removeFreeBlock(block uint32) {
	prev := h.prevFree(block)
	next := h.nextFree(block)

	if prev == noBlock {
		h.setFreeHead(next)
	} else {
		h.setNextFree(prev, next)
	}

	if next != noBlock {
		h.setPrevFree(next, prev)
	}
}

// replaceFreeBlock puts replacement in old's position on the free list. The caller must
// guarantee that no other free block lies between the two offsets, which keeps the list
// in address order without a walk. Both links are read before any are written because the
// replacement's links may overlap old's header.
func (h *Heap) replaceFreeBlock(old uint32, replacement uint32) {
	prev := h.prevFree(old)
	next := h.nextFree(old)

	h.setNextFree(replacement, next)
	h.setPrevFree(replacement, prev)

	if prev == noBlock {
		h.setFreeHead(replacement)
	} else {
		h.setNextFree(prev, replacement)
	}

	if next != noBlock {
		h.setPrevFree(next, replacement)
	}
}

package heap

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

// Resize changes the payload behind p to hold at least size bytes and returns the Pointer
// to use from then on. The first min(Capacity(p), size) bytes of the payload are preserved.
//
// The policies are tried in order:
//   - p is Null: behaves exactly like Alloc(size).
//   - the block is already big enough: p is returned, and any tail large enough to form a
//     block of its own is given back to the heap.
//   - the block is followed by a free block and together they are big enough: the block
//     grows in place and p is returned.
//   - otherwise a new block is allocated, the payload copied into it, and p freed.
//
// If none of these succeed, Resize returns Null and an error wrapping memutils.ErrOutOfMemory,
// and the block behind p is left exactly as it was.
func (h *Heap) Resize(p Pointer, size int) (Pointer, error) {
	if p == Null {
		return h.Alloc(size)
	}

	if size < 0 {
		return Null, cerrors.Wrapf(memutils.ErrInvalidSize, "requested %d bytes", size)
	}

	memutils.DebugValidate(h)

	block := blockOf(p)
	currentSize := h.blockSize(block)

	needed, ok := blockSizeFor(size, h.end)
	if !ok {
		h.logResizeFailure(block, size)
		return Null, cerrors.Wrapf(memutils.ErrOutOfMemory, "resize to %d bytes in a heap of %d", size, h.end)
	}

	if needed <= currentSize {
		h.shrinkInPlace(block, currentSize, needed)
		memutils.DebugValidate(h)

		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Resized block in place",
			slog.Int("offset", int(block)),
			slog.Int("oldBlockSize", int(currentSize)),
			slog.Int("blockSize", int(h.blockSize(block))),
			slog.Int("requested", size))
		return p, nil
	}

	if h.growInPlace(block, currentSize, needed) {
		memutils.DebugValidate(h)

		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Resized block in place",
			slog.Int("offset", int(block)),
			slog.Int("oldBlockSize", int(currentSize)),
			slog.Int("blockSize", int(h.blockSize(block))),
			slog.Int("requested", size))
		return p, nil
	}

	// Allocating before freeing leaves the original untouched if nothing fits
	relocated, err := h.Alloc(size)
	if err != nil {
		h.logResizeFailure(block, size)
		return Null, cerrors.Wrapf(err, "relocate block at offset %d", block)
	}

	preserved := h.Capacity(p)
	if size < preserved {
		preserved = size
	}
	copy(h.Payload(relocated)[:preserved], h.Payload(p)[:preserved])

	h.Free(p)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Relocated block",
		slog.Int("oldOffset", int(block)),
		slog.Int("offset", int(blockOf(relocated))),
		slog.Int("copied", preserved),
		slog.Int("requested", size))

	return relocated, nil
}

func (h *Heap) logResizeFailure(block uint32, size int) {
	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Could not resize block",
		slog.Int("offset", int(block)),
		slog.Int("requested", size))
}

func (h *Heap) shrinkInPlace(block uint32, currentSize uint32, needed uint32) {
	if currentSize-needed < MinBlockSize {
		return
	}

	tail := block + needed
	h.setHeader(block, needed, true)
	h.setPrevSize(tail, needed)
	h.release(tail, currentSize-needed)
}

func (h *Heap) growInPlace(block uint32, currentSize uint32, needed uint32) bool {
	next := block + currentSize
	if next >= h.end || h.isUsed(next) {
		return false
	}

	combined := currentSize + h.blockSize(next)
	if combined < needed {
		return false
	}

	if combined-needed < MinBlockSize {
		h.removeFreeBlock(next)
		h.setHeader(block, combined, true)
		h.linkSuccessor(block, combined)
		return true
	}

	// The remainder sits inside what was next, so it inherits next's place on the free list.
	// It may overlap next's header, which is why the list is updated before any header is written.
	remainder := block + needed
	remainderSize := combined - needed

	h.replaceFreeBlock(next, remainder)
	h.setHeader(remainder, remainderSize, false)
	h.setPrevSize(remainder, needed)
	h.linkSuccessor(remainder, remainderSize)

	h.setHeader(block, needed, true)
	return true
}

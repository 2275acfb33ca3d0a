package heap

import (
	"encoding/binary"
	"math"

	"github.com/vkngwrapper/heaplib/memutils"
)

// Pointer is the offset in bytes of a payload from the start of the heap region.
// Every block begins with a header, so no payload can live at offset 0 and
// Null is free to act as the "no allocation" value.
type Pointer uint32

// Null is returned by Alloc and Resize when a request cannot be satisfied, and is
// accepted by Free and Resize as "no allocation".
const Null Pointer = 0

const (
	// Alignment is the boundary, in bytes, that every payload offset is a multiple of
	Alignment = 8
	// MinHeapSize is the smallest region Init will accept
	MinHeapSize = 1024
	// MaxHeapSize is the largest region whose block sizes fit in the 32-bit headers
	MaxHeapSize uint64 = math.MaxUint32 &^ (Alignment - 1)

	// BlockHeaderSize is the number of bytes of metadata that precede each payload
	BlockHeaderSize = 8
	// MinBlockSize is the smallest block that can be carved out of the heap: a header plus
	// room for the free list links a free block keeps in its payload
	MinBlockSize = BlockHeaderSize + 8

	// TrailerSize is the fixed overhead at the end of the region that describes the heap
	TrailerSize = 16
)

// Block header, at the start of every block:
//
//	+0 size of this block including the header, low bits hold flags
//	+4 size of the physically preceding block, 0 for the first block
//
// A free block additionally threads the free list through its payload:
//
//	+8  offset of the next free block
//	+12 offset of the previous free block
//
// Heap trailer, at the end of the usable area:
//
//	+0  magic
//	+4  usable size, the offset of the trailer itself
//	+8  offset of the first free block
//	+12 allocation strategy
const (
	flagUsed uint32 = 1 << 0
	flagMask uint32 = Alignment - 1

	prevSizeOffset = 4
	nextFreeOffset = BlockHeaderSize
	prevFreeOffset = BlockHeaderSize + 4

	trailerMagicOffset    = 0
	trailerSizeOffset     = 4
	trailerFreeHeadOffset = 8
	trailerFlagsOffset    = 12

	trailerMagic uint32 = 0x42494C48 // "HLIB"

	// noBlock terminates the free list. It can never be a block offset since offsets are aligned.
	noBlock uint32 = math.MaxUint32
)

func (h *Heap) u32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(h.region[offset:])
}

func (h *Heap) putU32(offset uint32, value uint32) {
	binary.LittleEndian.PutUint32(h.region[offset:], value)
}

func (h *Heap) blockSize(block uint32) uint32 {
	return h.u32(block) &^ flagMask
}

func (h *Heap) isUsed(block uint32) bool {
	return h.u32(block)&flagUsed != 0
}

func (h *Heap) setHeader(block uint32, size uint32, used bool) {
	word := size
	if used {
		word |= flagUsed
	}
	h.putU32(block, word)
}

func (h *Heap) prevSize(block uint32) uint32 {
	return h.u32(block + prevSizeOffset)
}

func (h *Heap) setPrevSize(block uint32, size uint32) {
	h.putU32(block+prevSizeOffset, size)
}

// linkSuccessor updates the boundary tag of whatever block follows block, if any
func (h *Heap) linkSuccessor(block uint32, size uint32) {
	next := block + size
	if next < h.end {
		h.setPrevSize(next, size)
	}
}

func (h *Heap) nextFree(block uint32) uint32 {
	return h.u32(block + nextFreeOffset)
}

func (h *Heap) setNextFree(block uint32, next uint32) {
	h.putU32(block+nextFreeOffset, next)
}

func (h *Heap) prevFree(block uint32) uint32 {
	return h.u32(block + prevFreeOffset)
}

func (h *Heap) setPrevFree(block uint32, prev uint32) {
	h.putU32(block+prevFreeOffset, prev)
}

func (h *Heap) freeHead() uint32 {
	return h.u32(h.end + trailerFreeHeadOffset)
}

func (h *Heap) setFreeHead(block uint32) {
	h.putU32(h.end+trailerFreeHeadOffset, block)
}

// Strategy returns the placement strategy recorded in the heap trailer
func (h *Heap) Strategy() AllocationStrategy {
	return AllocationStrategy(h.u32(h.end + trailerFlagsOffset))
}

func blockOf(p Pointer) uint32 {
	return uint32(p) - BlockHeaderSize
}

func payloadOf(block uint32) Pointer {
	return Pointer(block + BlockHeaderSize)
}

// blockSizeFor returns the size of the block needed to hold a payload of the requested
// size, and false if no block in a heap of the given usable size could hold it
func blockSizeFor(size int, usable uint32) (uint32, bool) {
	if uint64(size)+BlockHeaderSize > uint64(usable) {
		return 0, false
	}

	needed := memutils.AlignUp(uint32(size), Alignment) + BlockHeaderSize
	if needed < MinBlockSize {
		needed = MinBlockSize
	}

	return needed, needed <= usable
}

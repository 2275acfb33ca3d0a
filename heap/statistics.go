package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

// VisitAllRegions calls handleBlock once for every block in address order, with the offset
// of the block's header and its full size. Iteration stops at the first error, which is
// returned.
func (h *Heap) VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error {
	for block := uint32(0); block < h.end; block += h.blockSize(block) {
		err := handleBlock(int(block), int(h.blockSize(block)), !h.isUsed(block))
		if err != nil {
			return err
		}
	}

	return nil
}

// AllocationCount returns the number of live allocations
func (h *Heap) AllocationCount() int {
	var count int
	for block := uint32(0); block < h.end; block += h.blockSize(block) {
		if h.isUsed(block) {
			count++
		}
	}

	return count
}

// FreeRegionsCount returns the number of free blocks. Since free neighbors are always merged,
// this is also the number of disjoint free ranges.
func (h *Heap) FreeRegionsCount() int {
	var count int
	for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
		count++
	}

	return count
}

// SumFreeSize returns the total size of all free blocks, headers included
func (h *Heap) SumFreeSize() int {
	var sum int
	for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
		sum += int(h.blockSize(block))
	}

	return sum
}

// LargestFreeSize returns the payload capacity of the biggest free block, which is the
// largest request Alloc could currently satisfy
func (h *Heap) LargestFreeSize() int {
	var largest uint32
	for block := h.freeHead(); block != noBlock; block = h.nextFree(block) {
		if size := h.blockSize(block); size > largest {
			largest = size
		}
	}

	if largest == 0 {
		return 0
	}

	return int(largest - BlockHeaderSize)
}

// IsEmpty returns true if the heap has no live allocations
func (h *Heap) IsEmpty() bool {
	return h.freeHead() == 0 && h.blockSize(0) == h.end
}

// AddStatistics sums this heap's allocation statistics into stats
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	stats.HeapCount++
	stats.HeapBytes += int(h.end)

	for block := uint32(0); block < h.end; block += h.blockSize(block) {
		stats.HeaderBytes += BlockHeaderSize
		if h.isUsed(block) {
			stats.AllocationCount++
			stats.AllocationBytes += int(h.blockSize(block))
		}
	}
}

// AddDetailedStatistics sums this heap's allocation and free range statistics into stats
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.HeapCount++
	stats.HeapBytes += int(h.end)

	for block := uint32(0); block < h.end; block += h.blockSize(block) {
		if h.isUsed(block) {
			stats.AddAllocation(int(h.blockSize(block)), BlockHeaderSize)
		} else {
			stats.AddFreeRange(int(h.blockSize(block)), BlockHeaderSize)
		}
	}
}

// BlockJsonData populates a json object with summary information about this heap
func (h *Heap) BlockJsonData(json *jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	json.Name("TotalBytes").Int(stats.HeapBytes)
	json.Name("UnusedBytes").Int(stats.FreeBytes())
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.FreeRangeCount)
	json.Name("HeaderBytes").Int(stats.HeaderBytes)
	json.Name("Strategy").String(h.Strategy().String())
}

// PrintDetailedMap writes a json object describing the heap and every block in it
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	json := writer.Object()
	defer json.End()

	h.BlockJsonData(&json)

	blocks := json.Name("Blocks").Array()
	defer blocks.End()

	_ = h.VisitAllRegions(func(offset int, size int, free bool) error {
		obj := blocks.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("FREE")
		} else {
			obj.Name("Type").String("USED")
			obj.Name("Payload").Int(offset + BlockHeaderSize)
			obj.Name("Capacity").Int(size - BlockHeaderSize)
		}

		return nil
	})
}

// DebugLogAllAllocations calls logFunc once for every live allocation, in address order
func (h *Heap) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, p Pointer, capacity int)) {
	for block := uint32(0); block < h.end; block += h.blockSize(block) {
		if h.isUsed(block) {
			logFunc(logger, payloadOf(block), int(h.blockSize(block)-BlockHeaderSize))
		}
	}
}

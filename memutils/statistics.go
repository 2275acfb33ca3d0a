package memutils

import "math"

// Statistics is a cheap summary of one or more heaps. HeapBytes and AllocationBytes count whole
// blocks, headers included; HeaderBytes is the share of HeapBytes spent on block headers.
type Statistics struct {
	HeapCount       int
	AllocationCount int
	HeapBytes       int
	AllocationBytes int
	HeaderBytes     int
}

func (s *Statistics) Clear() {
	s.HeapCount = 0
	s.AllocationCount = 0
	s.HeapBytes = 0
	s.AllocationBytes = 0
	s.HeaderBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.HeapCount += other.HeapCount
	s.AllocationCount += other.AllocationCount
	s.HeapBytes += other.HeapBytes
	s.AllocationBytes += other.AllocationBytes
	s.HeaderBytes += other.HeaderBytes
}

// FreeBytes is the number of bytes in the summarized heaps that are not held by a live allocation
func (s *Statistics) FreeBytes() int {
	return s.HeapBytes - s.AllocationBytes
}

// PayloadBytes is the number of bytes available to callers: every block's size less its header
func (s *Statistics) PayloadBytes() int {
	return s.HeapBytes - s.HeaderBytes
}

// DetailedStatistics extends Statistics with per-range information gathered by walking every block.
// Call Clear before accumulating into a fresh value so the minimums start at math.MaxInt.
type DetailedStatistics struct {
	Statistics
	FreeRangeCount    int
	AllocationSizeMin int
	AllocationSizeMax int
	FreeRangeSizeMin  int
	FreeRangeSizeMax  int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.FreeRangeSizeMin = math.MaxInt
	s.FreeRangeSizeMax = 0
}

// AddFreeRange records a free block of size bytes, headerSize of which are its header
func (s *DetailedStatistics) AddFreeRange(size int, headerSize int) {
	s.FreeRangeCount++
	s.HeaderBytes += headerSize

	if size < s.FreeRangeSizeMin {
		s.FreeRangeSizeMin = size
	}

	if size > s.FreeRangeSizeMax {
		s.FreeRangeSizeMax = size
	}
}

// AddAllocation records a used block of size bytes, headerSize of which are its header
func (s *DetailedStatistics) AddAllocation(size int, headerSize int) {
	s.AllocationCount++
	s.AllocationBytes += size
	s.HeaderBytes += headerSize

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeRangeCount += other.FreeRangeCount

	if other.FreeRangeSizeMin < s.FreeRangeSizeMin {
		s.FreeRangeSizeMin = other.FreeRangeSizeMin
	}

	if other.FreeRangeSizeMax > s.FreeRangeSizeMax {
		s.FreeRangeSizeMax = other.FreeRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// Fragmentation is the share of free bytes that lie outside the largest free range: 0 when
// all free space is one range (or there is none), approaching 1 as free space splinters.
// Across several heaps, the largest range of any one heap is used.
func (s *DetailedStatistics) Fragmentation() float64 {
	free := s.FreeBytes()
	if s.FreeRangeCount <= 1 || free <= 0 {
		return 0
	}

	return 1 - float64(s.FreeRangeSizeMax)/float64(free)
}

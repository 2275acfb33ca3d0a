package heap_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heaplib/heap"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

func TestDetailedStatistics(t *testing.T) {
	h := holeyHeap(t, 0)

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			HeapCount:       1,
			HeapBytes:       1008,
			AllocationCount: 2,
			AllocationBytes: 32,
			HeaderBytes:     40,
		},
		FreeRangeCount:    3,
		AllocationSizeMin: 16,
		AllocationSizeMax: 16,
		FreeRangeSizeMin:  72,
		FreeRangeSizeMax:  696,
	}, stats)

	var summary memutils.Statistics
	h.AddStatistics(&summary)
	require.Equal(t, stats.Statistics, summary)
	require.Equal(t, 976, summary.FreeBytes())
	require.Equal(t, 1008-5*heap.BlockHeaderSize, summary.PayloadBytes())
	require.InDelta(t, 1-696.0/976.0, stats.Fragmentation(), 1e-9)
	require.Equal(t, summary.FreeBytes(), h.SumFreeSize())
	require.Equal(t, 3, h.FreeRegionsCount())
	require.Equal(t, 696-heap.BlockHeaderSize, h.LargestFreeSize())
	require.False(t, h.IsEmpty())
}

func TestDetailedStatisticsAccumulate(t *testing.T) {
	first := newTestHeap(t, 1024, 0)
	second := newTestHeap(t, 2048, 0)

	_, err := first.Alloc(100)
	require.NoError(t, err)
	_, err = second.Alloc(300)
	require.NoError(t, err)

	var total, other memutils.DetailedStatistics
	total.Clear()
	other.Clear()
	first.AddDetailedStatistics(&total)
	second.AddDetailedStatistics(&other)
	total.AddDetailedStatistics(&other)

	require.Equal(t, 2, total.HeapCount)
	require.Equal(t, 1008+2032, total.HeapBytes)
	require.Equal(t, 2, total.AllocationCount)
	require.Equal(t, 112, total.AllocationSizeMin)
	require.Equal(t, 312, total.AllocationSizeMax)
	require.Equal(t, 2, total.FreeRangeCount)
	require.Equal(t, 4*heap.BlockHeaderSize, total.HeaderBytes)

	// Each heap's free space is a single range
	require.Zero(t, other.Fragmentation())
}

func TestPrintDetailedMap(t *testing.T) {
	h := holeyHeap(t, heap.AllocationStrategyMinMemory)

	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())

	var parsed struct {
		TotalBytes   int
		UnusedBytes  int
		Allocations  int
		UnusedRanges int
		HeaderBytes  int
		Strategy     string
		Blocks       []struct {
			Offset   int
			Size     int
			Type     string
			Payload  *int
			Capacity *int
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &parsed))

	require.Equal(t, 1008, parsed.TotalBytes)
	require.Equal(t, 976, parsed.UnusedBytes)
	require.Equal(t, 2, parsed.Allocations)
	require.Equal(t, 3, parsed.UnusedRanges)
	require.Equal(t, 40, parsed.HeaderBytes)
	require.Equal(t, "AllocationStrategyMinMemory", parsed.Strategy)
	require.Len(t, parsed.Blocks, 5)

	require.Equal(t, "FREE", parsed.Blocks[0].Type)
	require.Nil(t, parsed.Blocks[0].Payload)
	require.Equal(t, "USED", parsed.Blocks[1].Type)
	require.Equal(t, 208, parsed.Blocks[1].Offset)
	require.Equal(t, 216, *parsed.Blocks[1].Payload)
	require.Equal(t, 8, *parsed.Blocks[1].Capacity)
}

func TestDebugLogAllAllocations(t *testing.T) {
	h := holeyHeap(t, 0)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf))

	var seen []heap.Pointer
	h.DebugLogAllAllocations(logger, func(log *slog.Logger, p heap.Pointer, capacity int) {
		seen = append(seen, p)
		log.Info("live allocation", slog.Int("payload", int(p)), slog.Int("capacity", capacity))
	})

	require.Equal(t, []heap.Pointer{216, 304}, seen)
	require.Contains(t, buf.String(), "payload=216")
	require.Contains(t, buf.String(), "capacity=8")
}

func TestVisitAllRegionsStopsOnError(t *testing.T) {
	h := holeyHeap(t, 0)

	var visited int
	stop := memutils.ErrOutOfMemory
	err := h.VisitAllRegions(func(offset int, size int, free bool) error {
		visited++
		if !free {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, visited)
}

package trace_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heaplib/heap"
	"github.com/vkngwrapper/heaplib/internal/trace"
	"github.com/vkngwrapper/heaplib/internal/trace/mocks"
	"github.com/vkngwrapper/heaplib/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func parse(t *testing.T, text string) []trace.Op {
	ops, err := trace.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return ops
}

func TestReplayAgainstHeap(t *testing.T) {
	h, err := heap.Init(make([]byte, 1024), heap.CreateOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	replayer := trace.NewReplayer(h, slog.New(slog.NewTextHandler(&buf)))

	result, err := replayer.Replay(context.Background(), parse(t, `
alloc a 100
alloc b 200
resize a 400
free b
alloc c 2000
resize a 5000
alloc e 0
resize e 64
free e
reset
alloc d 10
`))
	require.NoError(t, err)
	require.NoError(t, h.Validate())

	require.Equal(t, 5, result.Allocs)
	require.Equal(t, 3, result.Resizes)
	require.Equal(t, 2, result.Frees)
	require.Equal(t, 1, result.Resets)
	require.Equal(t, 1, result.AllocFailures)
	require.Equal(t, 1, result.ResizeFailures)
	require.Equal(t, 1, result.Live)
	require.Equal(t, 1, result.Stats.AllocationCount)
	require.Equal(t, 1, result.Stats.HeapCount)
	require.Equal(t, 1008, result.Stats.HeapBytes)

	require.Contains(t, buf.String(), "Could not create block")
	require.Contains(t, buf.String(), "Could not resize block")
}

func TestReplayNameErrors(t *testing.T) {
	for _, test := range []struct {
		text     string
		expected error
	}{
		{text: "alloc a 10\nalloc a 20", expected: trace.ErrDuplicateName},
		{text: "free a", expected: trace.ErrUnknownName},
		{text: "resize a 10", expected: trace.ErrUnknownName},
		{text: "alloc a 10\nreset\nfree a", expected: trace.ErrUnknownName},
	} {
		h, err := heap.Init(make([]byte, 1024), heap.CreateOptions{})
		require.NoError(t, err)

		_, err = trace.NewReplayer(h, nil).Replay(context.Background(), parse(t, test.text))
		require.ErrorIs(t, err, test.expected, test.text)
	}
}

func TestReplayResetForgetsNames(t *testing.T) {
	h, err := heap.Init(make([]byte, 1024), heap.CreateOptions{})
	require.NoError(t, err)

	result, err := trace.NewReplayer(h, nil).Replay(context.Background(), parse(t, `
alloc a 10
alloc b 20
reset
alloc a 30
resize a 40
reset
reset
alloc b 50
free b
`))
	require.NoError(t, err)
	require.NoError(t, h.Validate())
	require.Equal(t, 3, result.Resets)
	require.Equal(t, 0, result.Live)
	require.True(t, h.IsEmpty())
}

func TestReplayCountsExhaustion(t *testing.T) {
	ctrl := gomock.NewController(t)

	allocator := mocks.NewMockAllocator(ctrl)
	allocator.EXPECT().Alloc(64).Return(heap.Null, cerrors.Wrap(memutils.ErrOutOfMemory, "full"))
	allocator.EXPECT().AddDetailedStatistics(gomock.Any())

	result, err := trace.NewReplayer(allocator, nil).Replay(context.Background(), parse(t, "alloc a 64"))
	require.NoError(t, err)
	require.Equal(t, 1, result.AllocFailures)
	require.Equal(t, 0, result.Live)
}

func TestReplayStopsOnOtherErrors(t *testing.T) {
	ctrl := gomock.NewController(t)

	allocator := mocks.NewMockAllocator(ctrl)
	allocator.EXPECT().Alloc(64).Return(heap.Null, memutils.ErrInvalidSize)

	_, err := trace.NewReplayer(allocator, nil).Replay(context.Background(), parse(t, "alloc a 64"))
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
	require.ErrorContains(t, err, "line 1")
}

func TestReplayVerifiesResizedContents(t *testing.T) {
	ctrl := gomock.NewController(t)

	original := make([]byte, 64)
	moved := make([]byte, 128)

	allocator := mocks.NewMockAllocator(ctrl)
	allocator.EXPECT().Alloc(64).Return(heap.Pointer(8), nil)
	allocator.EXPECT().Payload(heap.Pointer(8)).Return(original)
	allocator.EXPECT().Resize(heap.Pointer(8), 128).DoAndReturn(func(p heap.Pointer, size int) (heap.Pointer, error) {
		copy(moved, original)
		return heap.Pointer(80), nil
	})
	allocator.EXPECT().Payload(heap.Pointer(80)).Return(moved)
	allocator.EXPECT().Free(heap.Pointer(80))
	allocator.EXPECT().AddDetailedStatistics(gomock.Any())

	result, err := trace.NewReplayer(allocator, nil).Replay(context.Background(), parse(t, `
alloc a 64
resize a 128
free a
`))
	require.NoError(t, err)
	require.Equal(t, 0, result.Live)

	// The grown tail carries on the same pattern
	require.Equal(t, moved[63]+1, moved[64])
}

func TestReplayDetectsCorruptPayload(t *testing.T) {
	ctrl := gomock.NewController(t)

	allocator := mocks.NewMockAllocator(ctrl)
	allocator.EXPECT().Alloc(32).Return(heap.Pointer(8), nil)
	allocator.EXPECT().Payload(heap.Pointer(8)).Return(make([]byte, 32))
	allocator.EXPECT().Resize(heap.Pointer(8), 64).Return(heap.Pointer(48), nil)
	allocator.EXPECT().Payload(heap.Pointer(48)).Return(make([]byte, 64))

	_, err := trace.NewReplayer(allocator, nil).Replay(context.Background(), parse(t, "alloc a 32\nresize a 64"))
	require.ErrorIs(t, err, trace.ErrCorruptPayload)
	require.ErrorContains(t, err, "line 2")
}

func TestReplayHonorsCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := trace.NewReplayer(allocator, nil).Replay(ctx, parse(t, "alloc a 32"))
	require.ErrorIs(t, err, context.Canceled)
}

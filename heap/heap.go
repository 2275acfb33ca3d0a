package heap

import (
	"context"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

// CreateOptions configures a Heap handle.
type CreateOptions struct {
	// Strategy selects how free blocks are chosen for new allocations. The zero value selects
	// AllocationStrategyMinOffset. Init records the strategy in the region; Open ignores this
	// field and uses the recorded value.
	Strategy AllocationStrategy
	// Logger receives debug-level records of every allocation, release and resize. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Heap manages allocations within a single caller-owned region of memory. All bookkeeping
// (block headers, the free list, and the heap's own size and strategy) lives inside the
// region, so any number of Heap values created with Open over the same region observe the
// same state. The Heap value itself only caches the region bounds and the logger.
//
// Heap is not safe for concurrent use. Callers that share a region between goroutines must
// serialize every call against it.
type Heap struct {
	region []byte
	end    uint32
	logger *slog.Logger
}

func checkRegion(region []byte) (uint32, error) {
	if len(region) == 0 {
		return 0, cerrors.Wrap(memutils.ErrInvalidRegion, "region is empty")
	}

	if !memutils.IsAligned(uintptr(unsafe.Pointer(unsafe.SliceData(region))), Alignment) {
		return 0, cerrors.Wrapf(memutils.ErrInvalidRegion, "region base %p is not %d-byte aligned", unsafe.SliceData(region), Alignment)
	}

	if len(region) < MinHeapSize {
		return 0, cerrors.Wrapf(memutils.ErrHeapTooSmall, "region is %d bytes, minimum is %d", len(region), MinHeapSize)
	}

	if uint64(len(region)) > MaxHeapSize {
		return 0, cerrors.Wrapf(memutils.ErrHeapTooLarge, "region is %d bytes, maximum is %d", len(region), MaxHeapSize)
	}

	return memutils.AlignDown(uint32(len(region)-TrailerSize), Alignment), nil
}

func newHeap(region []byte, end uint32, logger *slog.Logger) *Heap {
	if logger == nil {
		logger = slog.Default()
	}

	return &Heap{
		region: region,
		end:    end,
		logger: logger,
	}
}

// Init formats region as an empty heap: one free block spanning everything but the trailer.
// It fails without writing to region if region is nil, empty, not 8-byte aligned, shorter than
// MinHeapSize, longer than MaxHeapSize, or if options names an unknown strategy.
//
// Calling Init on a region that already holds a heap discards every allocation in it. Any
// Pointer obtained before that must not be used again.
func Init(region []byte, options CreateOptions) (*Heap, error) {
	end, err := checkRegion(region)
	if err != nil {
		return nil, err
	}

	strategy, ok := options.Strategy.resolve()
	if !ok {
		return nil, cerrors.Wrapf(memutils.ErrInvalidStrategy, "strategy %d", uint32(options.Strategy))
	}

	h := newHeap(region, end, options.Logger)
	h.format(strategy)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Initialized heap",
		slog.Int("regionSize", len(region)),
		slog.Int("usableSize", int(end)),
		slog.String("strategy", strategy.String()))

	return h, nil
}

// Open attaches to a region previously formatted by Init, restoring the strategy it was
// formatted with. The region must have the same length it had when it was formatted.
func Open(region []byte, options CreateOptions) (*Heap, error) {
	end, err := checkRegion(region)
	if err != nil {
		return nil, err
	}

	h := newHeap(region, end, options.Logger)

	if h.u32(end+trailerMagicOffset) != trailerMagic {
		return nil, cerrors.Wrap(memutils.ErrNotInitialized, "heap trailer is missing")
	}

	if h.u32(end+trailerSizeOffset) != end {
		return nil, cerrors.Wrapf(memutils.ErrNotInitialized, "heap trailer records %d usable bytes but the region provides %d", h.u32(end+trailerSizeOffset), end)
	}

	if _, ok := h.Strategy().resolve(); !ok || h.Strategy() == 0 {
		return nil, cerrors.Wrapf(memutils.ErrNotInitialized, "heap trailer records unknown strategy %d", uint32(h.Strategy()))
	}

	memutils.DebugValidate(h)

	return h, nil
}

func (h *Heap) format(strategy AllocationStrategy) {
	h.putU32(h.end+trailerMagicOffset, trailerMagic)
	h.putU32(h.end+trailerSizeOffset, h.end)
	h.putU32(h.end+trailerFlagsOffset, uint32(strategy))

	h.setHeader(0, h.end, false)
	h.setPrevSize(0, 0)
	h.setNextFree(0, noBlock)
	h.setPrevFree(0, noBlock)
	h.setFreeHead(0)

	memutils.DebugValidate(h)
}

// Reset returns the heap to the state Init left it in, keeping its strategy. Every
// outstanding Pointer becomes invalid.
func (h *Heap) Reset() {
	h.format(h.Strategy())

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "Reset heap",
		slog.Int("usableSize", int(h.end)))
}

// Size returns the number of bytes available to blocks: the region length less the trailer
// and any bytes lost to aligning the trailer.
func (h *Heap) Size() int { return int(h.end) }

// Region returns the memory the heap manages.
func (h *Heap) Region() []byte { return h.region }

// Capacity returns the number of payload bytes usable through p, which is at least the size
// most recently requested for it. p must be a live allocation.
func (h *Heap) Capacity(p Pointer) int {
	if p == Null {
		return 0
	}

	return int(h.blockSize(blockOf(p)) - BlockHeaderSize)
}

// Payload returns the bytes of the live allocation p, sized to its full capacity. The slice
// aliases the region and must not be used after p is freed or relocated by Resize.
func (h *Heap) Payload(p Pointer) []byte {
	if p == Null {
		return nil
	}

	start := uint32(p)
	end := start + uint32(h.Capacity(p))
	return h.region[start:end:end]
}

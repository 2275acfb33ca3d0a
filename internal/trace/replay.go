package trace

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heaplib/heap"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

//go:generate mockgen -source replay.go -destination ./mocks/mock_allocator.go -package mocks

// Allocator is the set of heap operations a trace drives. *heap.Heap satisfies it.
type Allocator interface {
	Alloc(size int) (heap.Pointer, error)
	Free(p heap.Pointer)
	Resize(p heap.Pointer, size int) (heap.Pointer, error)
	Payload(p heap.Pointer) []byte
	Reset()
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
}

var _ Allocator = &heap.Heap{}

// Result summarizes a replayed trace
type Result struct {
	Allocs  int
	Resizes int
	Frees   int
	Resets  int

	// AllocFailures and ResizeFailures count requests the heap could not satisfy
	AllocFailures  int
	ResizeFailures int

	// Live is the number of named allocations still held when the trace ended
	Live  int
	Stats memutils.DetailedStatistics
}

type liveBlock struct {
	p    heap.Pointer
	size int
	seed byte
}

// Replayer applies parsed trace operations to an Allocator, tracking each allocation by the
// name the trace gives it. Every allocation is filled with a byte pattern derived from its
// name, and the pattern is checked after each resize.
type Replayer struct {
	allocator Allocator
	logger    *slog.Logger
	live      *swiss.Map[string, liveBlock]
}

// NewReplayer creates a Replayer over allocator. If logger is nil, slog.Default() is used.
func NewReplayer(allocator Allocator, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Replayer{
		allocator: allocator,
		logger:    logger,
		live:      swiss.NewMap[string, liveBlock](42),
	}
}

// Replay applies ops in order. A request the heap cannot satisfy is counted and logged, and
// the trace continues. Referring to an unknown name, allocating a name twice, or finding an
// allocation's contents changed stops the replay with an error.
func (r *Replayer) Replay(ctx context.Context, ops []Op) (*Result, error) {
	result := &Result{}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := r.apply(ctx, op, result); err != nil {
			return nil, err
		}
	}

	result.Live = r.live.Count()
	result.Stats.Clear()
	r.allocator.AddDetailedStatistics(&result.Stats)

	return result, nil
}

func (r *Replayer) apply(ctx context.Context, op Op, result *Result) error {
	switch op.Kind {
	case OpAlloc:
		result.Allocs++
		return r.alloc(ctx, op, result)
	case OpResize:
		result.Resizes++
		return r.resize(ctx, op, result)
	case OpFree:
		result.Frees++
		return r.free(op)
	case OpReset:
		result.Resets++
		r.allocator.Reset()
		r.live = swiss.NewMap[string, liveBlock](42)
		return nil
	}

	return cerrors.Newf("line %d: unknown operation kind %d", op.Line, op.Kind)
}

func (r *Replayer) alloc(ctx context.Context, op Op, result *Result) error {
	if r.live.Has(op.Name) {
		return cerrors.Wrapf(ErrDuplicateName, "line %d: %q", op.Line, op.Name)
	}

	p, err := r.allocator.Alloc(op.Size)
	if cerrors.Is(err, memutils.ErrOutOfMemory) {
		result.AllocFailures++
		r.logger.LogAttrs(ctx, slog.LevelInfo, "Could not create block",
			slog.Int("line", op.Line),
			slog.String("name", op.Name),
			slog.Int("size", op.Size),
		)
		return nil
	} else if err != nil {
		return cerrors.Wrapf(err, "line %d", op.Line)
	}

	block := liveBlock{p: p, size: op.Size, seed: patternSeed(op.Name)}
	fillPattern(r.allocator.Payload(p)[:op.Size], block.seed)
	r.live.Put(op.Name, block)

	return nil
}

func (r *Replayer) resize(ctx context.Context, op Op, result *Result) error {
	block, ok := r.live.Get(op.Name)
	if !ok {
		return cerrors.Wrapf(ErrUnknownName, "line %d: %q", op.Line, op.Name)
	}

	p, err := r.allocator.Resize(block.p, op.Size)
	if cerrors.Is(err, memutils.ErrOutOfMemory) {
		result.ResizeFailures++
		r.logger.LogAttrs(ctx, slog.LevelInfo, "Could not resize block",
			slog.Int("line", op.Line),
			slog.String("name", op.Name),
			slog.Int("size", op.Size),
		)
		return nil
	} else if err != nil {
		return cerrors.Wrapf(err, "line %d", op.Line)
	}

	preserved := min(block.size, op.Size)
	payload := r.allocator.Payload(p)
	if offset, ok := checkPattern(payload[:preserved], block.seed); !ok {
		return cerrors.Wrapf(ErrCorruptPayload, "line %d: %q differs at byte %d after resize from %d to %d bytes", op.Line, op.Name, offset, block.size, op.Size)
	}

	fillPattern(payload[:op.Size], block.seed)
	block.p = p
	block.size = op.Size
	r.live.Put(op.Name, block)

	return nil
}

func (r *Replayer) free(op Op) error {
	block, ok := r.live.Get(op.Name)
	if !ok {
		return cerrors.Wrapf(ErrUnknownName, "line %d: %q", op.Line, op.Name)
	}

	r.allocator.Free(block.p)
	r.live.Delete(op.Name)

	return nil
}

func patternSeed(name string) byte {
	var seed byte
	for i := 0; i < len(name); i++ {
		seed = seed*31 + name[i]
	}
	return seed
}

func fillPattern(payload []byte, seed byte) {
	for i := range payload {
		payload[i] = seed + byte(i)
	}
}

func checkPattern(payload []byte, seed byte) (int, bool) {
	for i, b := range payload {
		if b != seed+byte(i) {
			return i, false
		}
	}
	return 0, true
}

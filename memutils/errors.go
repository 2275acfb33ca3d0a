package memutils

import "github.com/pkg/errors"

var (
	// ErrInvalidRegion is returned when a heap is initialized over a nil, empty, or misaligned region
	ErrInvalidRegion error = errors.New("heap region must be a non-empty, 8-byte aligned span of memory")
	// ErrHeapTooSmall is returned when a heap is initialized over a region smaller than the minimum heap size
	ErrHeapTooSmall error = errors.New("heap region is smaller than the minimum heap size")
	// ErrHeapTooLarge is returned when a heap region cannot be described by the 32-bit block headers
	ErrHeapTooLarge error = errors.New("heap region is larger than the maximum heap size")
	// ErrNotInitialized is returned when attaching to a region that does not carry a valid heap trailer
	ErrNotInitialized error = errors.New("heap region has not been initialized")
	// ErrInvalidStrategy is returned when an unknown placement strategy is requested
	ErrInvalidStrategy error = errors.New("unknown allocation strategy")
	// ErrInvalidSize is returned when a negative payload size is requested
	ErrInvalidSize error = errors.New("payload size must not be negative")
	// ErrOutOfMemory is returned when no free block is large enough to satisfy a request
	ErrOutOfMemory error = errors.New("no free block large enough for the request")
)

package heap

import (
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heaplib/memutils"
)

// AllocationStrategy chooses which free block services an allocation when several could.
// Both strategies are deterministic, so the same sequence of requests always produces the
// same layout.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory selects the smallest free block that can hold the request
	// (best fit), preferring the lowest address among blocks of equal size. This keeps large
	// free ranges intact at the cost of a full walk of the free list.
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinOffset selects the lowest-addressed free block that can hold the
	// request (first fit). This is the default.
	AllocationStrategyMinOffset

	allocationStrategyMask = AllocationStrategyMinMemory | AllocationStrategyMinOffset
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "AllocationStrategyMinMemory",
	AllocationStrategyMinOffset: "AllocationStrategyMinOffset",
}

func (s AllocationStrategy) String() string {
	return allocationStrategyMapping[s]
}

// resolve maps the zero value to the default strategy and reports whether the result is usable
func (s AllocationStrategy) resolve() (AllocationStrategy, bool) {
	if s == 0 {
		return AllocationStrategyMinOffset, true
	}

	if s&^allocationStrategyMask != 0 || s == allocationStrategyMask {
		return s, false
	}

	return s, true
}

// ParseAllocationStrategy accepts the names used on the command line: "first-fit" or
// "min-offset" for AllocationStrategyMinOffset and "best-fit" or "min-memory" for
// AllocationStrategyMinMemory.
func ParseAllocationStrategy(name string) (AllocationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first-fit", "min-offset":
		return AllocationStrategyMinOffset, nil
	case "best-fit", "min-memory":
		return AllocationStrategyMinMemory, nil
	}

	return 0, cerrors.Wrapf(memutils.ErrInvalidStrategy, "%q", name)
}

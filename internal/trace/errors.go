package trace

import "github.com/pkg/errors"

var (
	// ErrSyntax is returned by Parse for a line that is not a valid operation
	ErrSyntax error = errors.New("malformed trace line")
	// ErrUnknownName is returned when a trace resizes or frees a name that holds no allocation
	ErrUnknownName error = errors.New("no live allocation with that name")
	// ErrDuplicateName is returned when a trace allocates a name that already holds an allocation
	ErrDuplicateName error = errors.New("name already holds a live allocation")
	// ErrCorruptPayload is returned when the bytes of an allocation no longer hold what was written to them
	ErrCorruptPayload error = errors.New("allocation contents were not preserved")
)

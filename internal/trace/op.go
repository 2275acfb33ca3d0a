package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	cerrors "github.com/cockroachdb/errors"
)

// OpKind identifies the heap operation a trace line performs
type OpKind int

const (
	OpAlloc OpKind = iota
	OpResize
	OpFree
	OpReset
)

var opKindMapping = map[OpKind]string{
	OpAlloc:  "alloc",
	OpResize: "resize",
	OpFree:   "free",
	OpReset:  "reset",
}

func (k OpKind) String() string {
	return opKindMapping[k]
}

// Op is a single parsed trace line. Name is empty for OpReset, and Size is only
// meaningful for OpAlloc and OpResize.
type Op struct {
	Kind OpKind
	Name string
	Size int
	Line int
}

// Parse reads a trace, one operation per line:
//
//	alloc <name> <size>
//	resize <name> <size>
//	free <name>
//	reset
//
// Everything after a '#' is ignored, as are blank lines. Errors wrap ErrSyntax and name the
// offending line.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		op, err := parseFields(fields, line)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, cerrors.Wrapf(err, "failed to read trace after line %d", line)
	}

	return ops, nil
}

func parseFields(fields []string, line int) (Op, error) {
	op := Op{Line: line}

	switch fields[0] {
	case "alloc", "resize":
		if len(fields) != 3 {
			return op, cerrors.Wrapf(ErrSyntax, "line %d: %s takes a name and a size", line, fields[0])
		}

		size, err := strconv.Atoi(fields[2])
		if err != nil || size < 0 {
			return op, cerrors.Wrapf(ErrSyntax, "line %d: invalid size %q", line, fields[2])
		}

		op.Kind = OpAlloc
		if fields[0] == "resize" {
			op.Kind = OpResize
		}
		op.Name = fields[1]
		op.Size = size
	case "free":
		if len(fields) != 2 {
			return op, cerrors.Wrapf(ErrSyntax, "line %d: free takes a name", line)
		}

		op.Kind = OpFree
		op.Name = fields[1]
	case "reset":
		if len(fields) != 1 {
			return op, cerrors.Wrapf(ErrSyntax, "line %d: reset takes no arguments", line)
		}

		op.Kind = OpReset
	default:
		return op, cerrors.Wrapf(ErrSyntax, "line %d: unknown operation %q", line, fields[0])
	}

	return op, nil
}

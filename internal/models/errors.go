package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies pipeline failures. Every kind is fatal to the current run.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = iota
	// KindValidation marks a bad input volume or parameter.
	KindValidation
	// KindRange marks an intensity spread too small to normalize.
	KindRange
	// KindSegmentation marks an empty foreground or zero components.
	KindSegmentation
	// KindData marks an operation attempted on an empty mask or instance set.
	KindData
	// KindRuntime marks a run that produced no instances at all.
	KindRuntime
	// KindIO marks file system failures.
	KindIO
	// KindNotFound marks a missing input file.
	KindNotFound
	// KindFormat marks a file that is not a readable volume.
	KindFormat
	// KindDimension marks a volume that is not exactly 3-dimensional.
	KindDimension
)

var kindNames = map[Kind]string{
	KindUnknown:      "UnknownError",
	KindValidation:   "ValidationError",
	KindRange:        "RangeError",
	KindSegmentation: "SegmentationError",
	KindData:         "DataError",
	KindRuntime:      "RuntimeError",
	KindIO:           "IOError",
	KindNotFound:     "NotFoundError",
	KindFormat:       "FormatError",
	KindDimension:    "DimensionError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a kinded failure raised by an operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a kinded error with a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// WrapError attaches a kind to an existing error. A nil err yields nil.
func WrapError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

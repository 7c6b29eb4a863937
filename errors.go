package serial

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNilIO indicates that a stream variant was called with a nil io.Reader/io.Writer.
	ErrNilIO = errors.New("serial: called with a nil io.Reader/io.Writer")

	// ErrNotPointer indicates Archive.Process was handed something other than a non-nil pointer.
	ErrNotPointer = errors.New("serial: Process requires a non-nil pointer")

	// ErrShortBuffer indicates an allocator returned a buffer smaller than the packed size.
	ErrShortBuffer = errors.New("serial: allocator returned a buffer shorter than the packed size")

	// ErrTruncatedData indicates that an unpack could not complete because the
	// underlying data source ended before all expected bytes were read.
	ErrTruncatedData = errors.New("serial: truncated data")

	// ErrLengthTooLarge indicates a decoded length that cannot fit in the remaining input.
	ErrLengthTooLarge = errors.New("serial: decoded length exceeds remaining input")

	// ErrMaxDepth indicates the traversal nested deeper than Options.MaxDepth,
	// usually because a pointer cycle was handed to a serializer that assumes owned children.
	ErrMaxDepth = errors.New("serial: maximum traversal depth exceeded")

	// ErrBufferReleased indicates use of a buffer after Release.
	ErrBufferReleased = errors.New("serial: buffer already released")

	// ErrInvalidFlag indicates a presence flag byte that is neither 0 nor 1.
	ErrInvalidFlag = errors.New("serial: invalid presence flag")

	// ErrVariantIndex indicates a variant index outside the variant's arm list.
	ErrVariantIndex = errors.New("serial: variant index out of range")
)

// TypeMismatchError is raised in error-checking mode when the type index
// embedded in the data does not match the type being unpacked.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("serial: expected type %s got type %s", e.Expected, e.Got)
}

// SizeMismatchError is raised when a sizer and a packer or unpacker disagree
// on the number of bytes a value occupies. It indicates a Serialize method
// that is not symmetric across modes, or a corrupted payload.
type SizeMismatchError struct {
	Phase    string
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("serial: %s size mismatch: expected %d bytes, used %d", e.Phase, e.Expected, e.Actual)
}

// IsTypeMismatch reports whether err carries a TypeMismatchError anywhere in its chain.
func IsTypeMismatch(err error) bool {
	var target *TypeMismatchError
	return errors.As(err, &target)
}

// IsSizeMismatch reports whether err carries a SizeMismatchError anywhere in its chain.
func IsSizeMismatch(err error) bool {
	var target *SizeMismatchError
	return errors.As(err, &target)
}

package serial

import (
	"io"
	"reflect"

	"github.com/cockroachdb/errors"
)

// maxStreamBuffer caps the write buffer of SerializeToStream.
const maxStreamBuffer = 64 << 10

// SerializeToStream packs v to w and returns the number of bytes written.
// The payload is written without a header, exactly as Serialize lays it out.
func SerializeToStream[T any](v T, w io.Writer, opts ...Option) (int64, error) {
	o := buildOptions(opts)
	ptr := reflect.ValueOf(&v)
	size, err := sizeOf(ptr, o)
	if err != nil {
		return 0, err
	}
	sw, err := NewWriterSize(w, min(size, maxStreamBuffer))
	if err != nil {
		return 0, err
	}
	pk := NewStreamPacker(sw)
	perr := traverse(pk, o, ptr)
	n, werr := sw.Result()
	switch {
	case perr != nil:
		return n, perr
	case werr != nil:
		return n, errors.Wrap(werr, "serial: write stream")
	case pk.Used() != size:
		return n, &SizeMismatchError{Phase: "pack", Expected: size, Actual: pk.Used()}
	}
	return n, nil
}

// DeserializeFromStream reconstructs a T from r. It reads exactly the bytes
// the value occupies, so payloads may follow each other on one stream.
func DeserializeFromStream[T any](r io.Reader, opts ...Option) (T, error) {
	var zero T
	sr, err := NewReader(r)
	if err != nil {
		return zero, err
	}
	slot := newSlot(reflect.TypeFor[T]())
	if err := traverse(NewStreamUnpacker(sr), buildOptions(opts), slot); err != nil {
		return zero, err
	}
	return *slot.Interface().(*T), nil
}

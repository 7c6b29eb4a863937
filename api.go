package serial

import (
	"io"
	"reflect"

	"github.com/cockroachdb/errors"
)

// traverse runs one top-level traversal of the value ptr points to.
func traverse(eng Engine, o *Options, ptr reflect.Value) error {
	a := &Archive{st: &state{eng: eng, opts: o}, traits: o.Traits}
	a.process(ptr.Elem(), "")
	return eng.Err()
}

func sizeOf(ptr reflect.Value, o *Options) (int, error) {
	s := NewSizer()
	if err := traverse(s, o, ptr); err != nil {
		return 0, err
	}
	return s.Size(), nil
}

// packInto packs into p, which the sizer has already measured.
func packInto(ptr reflect.Value, p []byte, o *Options) error {
	pk := NewPacker(p)
	err := traverse(pk, o, ptr)
	return checkPacked(len(p), pk.Used(), err)
}

// checkPacked turns a disagreement between the sizer and the packer into a
// SizeMismatchError. Overflowing the measured region is one.
func checkPacked(size, used int, err error) error {
	overflow := errors.Is(err, io.ErrShortWrite)
	if !overflow && (err != nil || used == size) {
		return err
	}
	mismatch := &SizeMismatchError{Phase: "pack", Expected: size, Actual: used}
	if err != nil {
		return errors.WithSecondaryError(mismatch, err)
	}
	return mismatch
}

// unpackFrom unpacks data into the value ptr points to. All of data must be consumed.
func unpackFrom(data []byte, ptr reflect.Value, o *Options) error {
	u := NewUnpacker(data)
	if err := traverse(u, o, ptr); err != nil {
		return err
	}
	if u.Used() != len(data) {
		return &SizeMismatchError{Phase: "unpack", Expected: len(data), Actual: u.Used()}
	}
	return nil
}

// Serialize measures v, allocates a buffer of exactly that size and packs v
// into it. The caller owns the result and must Release it.
func Serialize[T any](v T, opts ...Option) (*SerializedInfo, error) {
	o := buildOptions(opts)
	ptr := reflect.ValueOf(&v)
	size, err := sizeOf(ptr, o)
	if err != nil {
		return nil, err
	}
	buf := o.Allocator(size)
	if buf == nil || buf.Len() < size {
		got := 0
		if buf != nil {
			got = buf.Len()
			_ = buf.Release()
		}
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes, got %d", size, got)
	}
	if err := packInto(ptr, buf.Bytes()[:size], o); err != nil {
		return nil, errors.CombineErrors(err, buf.Release())
	}
	return &SerializedInfo{buf: buf, size: size}, nil
}

// SerializeInto packs v into p and returns the packed size. p must be at
// least GetSize(v) bytes long.
func SerializeInto[T any](v T, p []byte, opts ...Option) (int, error) {
	o := buildOptions(opts)
	ptr := reflect.ValueOf(&v)
	size, err := sizeOf(ptr, o)
	if err != nil {
		return 0, err
	}
	if len(p) < size {
		return 0, errors.Wrapf(io.ErrShortBuffer, "serial: need %d bytes, got %d", size, len(p))
	}
	if err := packInto(ptr, p[:size], o); err != nil {
		return 0, err
	}
	return size, nil
}

// Deserialize reconstructs a T and unpacks data into it.
func Deserialize[T any](data []byte, opts ...Option) (T, error) {
	var zero T
	slot := newSlot(reflect.TypeFor[T]())
	if err := unpackFrom(data, slot, buildOptions(opts)); err != nil {
		return zero, err
	}
	return *slot.Interface().(*T), nil
}

// DeserializeInPlace unpacks data into an existing value. Nothing is
// reconstructed at the top level; owned children are replaced.
func DeserializeInPlace[T any](data []byte, dst *T, opts ...Option) error {
	if dst == nil {
		return errors.Wrapf(ErrNotPointer, "nil %T", dst)
	}
	return unpackFrom(data, reflect.ValueOf(dst), buildOptions(opts))
}

// DeserializeTo reconstructs a T on caller-supplied storage and unpacks data
// into it. The returned pointer is where the object lives, which a
// reconstruction strategy may place elsewhere than storage. A nil storage
// is allocated.
func DeserializeTo[T any](data []byte, storage *T, opts ...Option) (*T, error) {
	if storage == nil {
		storage = new(T)
	}
	t := reflect.TypeFor[T]()
	obj := reflect.ValueOf(storage)
	if t.Kind() != reflect.Interface {
		obj = construct(t, obj)
	}
	if err := unpackFrom(data, obj, buildOptions(opts)); err != nil {
		return nil, err
	}
	return obj.Interface().(*T), nil
}

// GetSize returns the number of bytes Serialize would produce for v.
func GetSize[T any](v T, opts ...Option) (int, error) {
	return sizeOf(reflect.ValueOf(&v), buildOptions(opts))
}

// GetMemoryFootprint estimates the memory v occupies: sizeOffset plus its
// inline fields, headers and heap children, unused slice capacity included.
// Types without a traversal count their inline size only.
//
// The estimate describes memory, not the wire, so error-checking frames are
// not part of it and WithErrorChecking does not change it. It is at least
// GetSize(v) for unframed payloads only; a framed payload adds 16 bytes per
// traversal entry.
func GetMemoryFootprint[T any](v T, sizeOffset int, opts ...Option) (int, error) {
	f := NewFootprinter()
	f.AddBytes(sizeOffset)
	if err := traverse(f, buildOptions(opts), reflect.ValueOf(&v)); err != nil {
		return 0, err
	}
	return f.Footprint(), nil
}

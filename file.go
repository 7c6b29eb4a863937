package serial

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// SerializeToFile packs v into path through a mapped file. The file holds
// exactly the packed bytes, with no header. It returns the packed size.
func SerializeToFile[T any](v T, path string, opts ...Option) (int, error) {
	o := buildOptions(opts)
	ptr := reflect.ValueOf(&v)
	size, err := sizeOf(ptr, o)
	if err != nil {
		return 0, err
	}
	m, err := NewMappedFileBuffer(path, size, true)
	if err != nil {
		return 0, err
	}
	err = packInto(ptr, m.Bytes(), o)
	if err = errors.CombineErrors(err, m.Release()); err != nil {
		return 0, err
	}
	return size, nil
}

// DeserializeFromFile reconstructs a T from a file written by SerializeToFile.
func DeserializeFromFile[T any](path string, opts ...Option) (v T, err error) {
	m, err := NewMappedFileBuffer(path, 0, false)
	if err != nil {
		return v, err
	}
	defer func() {
		err = errors.CombineErrors(err, m.Release())
	}()
	return Deserialize[T](m.Bytes(), opts...)
}

// DeserializeFromFileInPlace unpacks a file written by SerializeToFile into dst.
func DeserializeFromFileInPlace[T any](path string, dst *T, opts ...Option) (err error) {
	m, err := NewMappedFileBuffer(path, 0, false)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, m.Release())
	}()
	return DeserializeInPlace(m.Bytes(), dst, opts...)
}

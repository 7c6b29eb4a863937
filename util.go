package serial

import (
	"reflect"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Native-layout header sizes used by the footprint estimates.
const (
	wordSize        = int(unsafe.Sizeof(uintptr(0)))
	stringHeaderLen = int(unsafe.Sizeof(""))
	sliceHeaderLen  = int(unsafe.Sizeof([]byte(nil)))
	ifaceHeaderLen  = int(unsafe.Sizeof(any(nil)))
)

// TooBig is a sanity limit on lengths decoded from streams whose remaining size is unknown.
// By default it is 32MB on 32bit machines, and 128MB on 64bit machines.
var TooBig = 1 << (25 + ((^uint(0) >> 32) & 2))

// Roundup rounds n up to the nearest multiple of align.
func Roundup[T constraints.Integer](n, align T) T { return (n + (align - 1)) &^ (align - 1) }

// bytesOf returns a byte view over count consecutive elements starting at the
// addressable value v. The view aliases live memory.
func bytesOf(v reflect.Value, count int) []byte {
	n := int(v.Type().Size()) * count
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(v.Addr().UnsafePointer()), n)
}

// runBytes returns a byte view over every element of an addressable array or a slice.
func runBytes(seq reflect.Value) []byte {
	if seq.Len() == 0 {
		return nil
	}
	return bytesOf(seq.Index(0), seq.Len())
}

// wordBytes views a uint64 as its native-order bytes.
func wordBytes(w *uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(w)), 8)
}

// unsafeByte views a single byte as a one-byte slice.
func unsafeByte(b *byte) []byte {
	return unsafe.Slice(b, 1)
}

// settable returns a settable view of an addressable value, including unexported struct fields.
func settable(v reflect.Value) reflect.Value {
	if v.CanSet() {
		return v
	}
	return reflect.NewAt(v.Type(), v.Addr().UnsafePointer()).Elem()
}

// typeName is the canonical, package-qualified name of t. It feeds the stable type index.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// hasPointers reports whether values of t hold references the garbage collector tracks.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	case reflect.Pointer, reflect.UnsafePointer, reflect.Slice, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.String:
		return true
	default:
		return false
	}
}

package serial

import (
	"cmp"
	"encoding"
	"reflect"
	"slices"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// builtinAdapter returns the traversal for t's kind, or nil when the kind
// has none. Types implementing both encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler are packed as their binary form.
func builtinAdapter(t reflect.Type) adapter {
	if isBinaryMarshaler(t) {
		return binaryAdapter
	}
	switch t.Kind() {
	case reflect.String:
		return stringAdapter
	case reflect.Slice:
		return sliceAdapter(t)
	case reflect.Array:
		return arrayAdapter(t)
	case reflect.Map:
		return mapAdapter(t)
	case reflect.Pointer:
		return pointerAdapter(t)
	case reflect.Interface:
		return interfaceAdapter(t)
	case reflect.Struct:
		return structAdapter(t)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return scalarAdapter
	}
	return nil
}

// scalarAdapter copies a scalar whose registered functions did not apply.
func scalarAdapter(a *Archive, v reflect.Value) {
	a.ContiguousBytes(bytesOf(v, 1))
}

// stringAdapter packs a length followed by the bytes.
func stringAdapter(a *Archive, v reflect.Value) {
	if a.IsFootprinting() {
		a.AddBytes(stringHeaderLen + v.Len())
		return
	}
	n := v.Len()
	if !a.length(&n, 1, 0) {
		return
	}
	if !a.IsUnpacking() {
		if n > 0 {
			a.ContiguousBytes(unsafe.Slice(unsafe.StringData(v.String()), n))
		}
		return
	}
	if n == 0 {
		v.SetString("")
		return
	}
	b := make([]byte, n)
	a.ContiguousBytes(b)
	if a.Err() == nil {
		v.SetString(unsafe.String(&b[0], n))
	}
}

// sliceAdapter packs a length followed by the elements. An empty slice
// unpacks as nil.
func sliceAdapter(t reflect.Type) adapter {
	et := t.Elem()
	return func(a *Archive, v reflect.Value) {
		ep := planOf(et)
		if a.IsFootprinting() {
			a.AddBytes(sliceHeaderLen + (v.Cap()-v.Len())*ep.size)
			a.dispatchRun(ep, v)
			return
		}
		n := v.Len()
		frames := 1
		if ep.cap == capBytes {
			frames = 0
		}
		if !a.length(&n, ep.minWire, frames) {
			return
		}
		if a.IsUnpacking() {
			if n == 0 {
				v.SetZero()
				return
			}
			s := reflect.MakeSlice(t, n, n)
			reconstructElems(s)
			v.Set(s)
		}
		a.dispatchRun(ep, v)
	}
}

// arrayAdapter traverses an array whose elements are not byte-copyable.
func arrayAdapter(t reflect.Type) adapter {
	et := t.Elem()
	return func(a *Archive, v reflect.Value) {
		a.dispatchRun(planOf(et), v)
	}
}

// mapAdapter packs a length followed by key/value pairs. Keys of ordered
// kinds are visited in ascending order so equal maps pack identically.
func mapAdapter(t reflect.Type) adapter {
	kt, vt := t.Key(), t.Elem()
	return func(a *Archive, v reflect.Value) {
		kp, vp := planOf(kt), planOf(vt)
		n := v.Len()
		if a.IsFootprinting() {
			a.AddBytes(wordSize)
		} else if !a.length(&n, kp.minWire+vp.minWire, 2) {
			return
		}

		if a.IsUnpacking() {
			if n == 0 {
				v.SetZero()
				return
			}
			m := reflect.MakeMapWithSize(t, n)
			for range n {
				k, e := newSlot(kt).Elem(), newSlot(vt).Elem()
				a.process(k, "key")
				a.process(e, "value")
				if a.Err() != nil {
					return
				}
				m.SetMapIndex(k, e)
			}
			v.Set(m)
			return
		}

		k, e := reflect.New(kt).Elem(), reflect.New(vt).Elem()
		for _, key := range sortedKeys(v) {
			k.Set(key)
			e.Set(v.MapIndex(key))
			a.process(k, "key")
			a.process(e, "value")
			if a.Err() != nil {
				return
			}
		}
	}
}

func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	if less := keyCompare(m.Type().Key()); less != nil {
		slices.SortFunc(keys, less)
	}
	return keys
}

func keyCompare(t reflect.Type) func(x, y reflect.Value) int {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(x, y reflect.Value) int { return cmp.Compare(x.Int(), y.Int()) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(x, y reflect.Value) int { return cmp.Compare(x.Uint(), y.Uint()) }
	case reflect.Float32, reflect.Float64:
		return func(x, y reflect.Value) int { return cmp.Compare(x.Float(), y.Float()) }
	case reflect.String:
		return func(x, y reflect.Value) int { return cmp.Compare(x.String(), y.String()) }
	case reflect.Bool:
		return func(x, y reflect.Value) int {
			switch {
			case x.Bool() == y.Bool():
				return 0
			case y.Bool():
				return -1
			default:
				return 1
			}
		}
	}
	return nil
}

// pointerAdapter treats the pointer as the owner of its pointee: a presence
// flag, then the pointee. A nil pointer unpacks as nil without allocating.
func pointerAdapter(t reflect.Type) adapter {
	et := t.Elem()
	return func(a *Archive, v reflect.Value) {
		if a.IsFootprinting() {
			a.AddBytes(wordSize)
			if !v.IsNil() {
				a.process(v.Elem(), "")
			}
			return
		}
		present := !v.IsNil()
		a.flag(&present)
		if a.Err() != nil {
			return
		}
		if !present {
			if a.IsUnpacking() {
				v.SetZero()
			}
			return
		}
		if a.IsUnpacking() {
			obj := newSlot(et)
			a.process(obj.Elem(), "")
			if a.Err() == nil {
				v.Set(obj)
			}
			return
		}
		a.process(v.Elem(), "")
	}
}

// interfaceAdapter dispatches a hierarchy root on its dynamic type.
func interfaceAdapter(t reflect.Type) adapter {
	return func(a *Archive, v reflect.Value) {
		h := hierarchyOf(t)
		if h == nil {
			a.opaque(planOf(t), 1)
			return
		}
		h.process(a, v)
	}
}

// binaryAdapter packs a length-prefixed MarshalBinary blob.
func binaryAdapter(a *Archive, v reflect.Value) {
	var blob []byte
	if !a.IsUnpacking() {
		b, err := v.Addr().Interface().(encoding.BinaryMarshaler).MarshalBinary()
		if err != nil {
			a.Fail(errors.Wrapf(err, "serial: marshal %s", typeName(v.Type())))
			return
		}
		blob = b
	}
	if a.IsFootprinting() {
		a.AddBytes(int(v.Type().Size()) + len(blob))
		return
	}
	n := len(blob)
	if !a.length(&n, 1, 0) {
		return
	}
	if a.IsUnpacking() {
		blob = make([]byte, n)
	}
	a.ContiguousBytes(blob)
	if a.IsUnpacking() && a.Err() == nil {
		if err := v.Addr().Interface().(encoding.BinaryUnmarshaler).UnmarshalBinary(blob); err != nil {
			a.Fail(errors.Wrapf(err, "serial: unmarshal %s", typeName(v.Type())))
		}
	}
}

type structField struct {
	index int
	name  string
}

// traversedFields lists the exported and unexported fields of t in
// declaration order. Blank fields and fields tagged `serial:"-"` are skipped.
func traversedFields(t reflect.Type) []structField {
	var fields []structField
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Name == "_" || f.Tag.Get("serial") == "-" {
			continue
		}
		fields = append(fields, structField{index: i, name: f.Name})
	}
	return fields
}

// structAdapter traverses the fields traversedFields lists.
func structAdapter(t reflect.Type) adapter {
	fields := traversedFields(t)
	inline := 0
	for _, f := range fields {
		inline += int(t.Field(f.index).Type.Size())
	}
	// Skipped fields and padding are part of the value's memory but not of any field traversal.
	untraversed := int(t.Size()) - inline
	return func(a *Archive, v reflect.Value) {
		for _, f := range fields {
			a.process(v.Field(f.index), f.name)
			if a.Err() != nil {
				return
			}
		}
		a.AddBytes(untraversed)
	}
}

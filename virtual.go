package serial

import (
	"reflect"
)

// LevelFunc traverses the fields one level of a hierarchy adds. It must not
// traverse the embedded parent; the parent's own LevelFunc does that.
type LevelFunc[T any] func(a *Archive, v *T)

// Method adapts a Serialize method into a LevelFunc:
//
//	serial.RegisterDerived[Shape, Base, Circle](serial.Method[Circle]())
//
// The method must be declared on T itself. A method promoted from the
// embedded parent would traverse the parent's fields a second time.
func Method[T any, PT interface {
	*T
	Serializable
}]() LevelFunc[T] {
	return func(a *Archive, v *T) { PT(v).Serialize(a) }
}

// Registration is the progress of a concrete type through a hierarchy's registries.
type Registration uint8

const (
	// Unregistered types have no ObjectIndex.
	Unregistered Registration = iota
	// Registered types have an ObjectIndex but have not been traversed polymorphically yet.
	Registered
	// Linked types have a serializer entry linked to their parent level for at least one archive kind.
	Linked
)

func (r Registration) String() string {
	switch r {
	case Registered:
		return "registered"
	case Linked:
		return "linked"
	default:
		return "unregistered"
	}
}

func eraseLevel[T any](fn LevelFunc[T]) adapter {
	if fn == nil {
		return func(*Archive, reflect.Value) {}
	}
	return func(a *Archive, v reflect.Value) {
		fn(a, (*T)(v.Addr().UnsafePointer()))
	}
}

// RegisterRoot makes the interface R a hierarchy root with B as a base
// level. Values stored in an R are packed with the index of their concrete
// type and unpacked as that type. *B must implement R.
//
// Registration assigns ObjectIndexes in call order, so the writing and the
// reading process must register the same types in the same order,
// typically from init functions.
func RegisterRoot[R any, B any](own LevelFunc[B]) {
	rt, bt := reflect.TypeFor[R](), reflect.TypeFor[B]()
	if rt.Kind() != reflect.Interface {
		fatalf("kind(R) == interface", "hierarchy root %s must be an interface type", typeName(rt))
	}
	if bt.Kind() != reflect.Struct {
		fatalf("kind(B) == struct", "base %s of %s must be a struct type", typeName(bt), typeName(rt))
	}
	if !reflect.PointerTo(bt).Implements(rt) {
		fatalf("*B implements R", "*%s does not implement %s", typeName(bt), typeName(rt))
	}

	regMu.Lock()
	defer regMu.Unlock()
	h, _ := hierarchies.LoadOrStore(rt, newHierarchy(rt))
	h.add(bt, nil, -1, eraseLevel(own))
}

// RegisterDerived registers T as a level of the hierarchy R directly below
// P. T must embed P by value and no other registered level.
func RegisterDerived[R any, P any, T any](own LevelFunc[T]) {
	rt, pt, tt := reflect.TypeFor[R](), reflect.TypeFor[P](), reflect.TypeFor[T]()

	regMu.Lock()
	defer regMu.Unlock()
	h := hierarchyOf(rt)
	if h == nil {
		fatalf("registered(R)", "hierarchy root %s is not registered", typeName(rt))
	}
	if h.entry(pt) == nil {
		fatalf("registered(P)", "parent %s is not registered under %s", typeName(pt), typeName(rt))
	}
	if tt.Kind() != reflect.Struct {
		fatalf("kind(T) == struct", "derived %s of %s must be a struct type", typeName(tt), typeName(rt))
	}
	if !reflect.PointerTo(tt).Implements(rt) {
		fatalf("*T implements R", "*%s does not implement %s", typeName(tt), typeName(rt))
	}

	var levels []int
	for i := range tt.NumField() {
		f := tt.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer && h.entry(ft.Elem()) != nil {
			fatalf("embed by value", "%s embeds registered level %s by pointer", typeName(tt), typeName(ft.Elem()))
		}
		if h.entry(ft) != nil {
			levels = append(levels, i)
		}
	}
	switch {
	case len(levels) > 1:
		fatalf("single inheritance", "multiple inheritance: %s embeds %d registered levels of %s",
			typeName(tt), len(levels), typeName(rt))
	case len(levels) == 0 || tt.Field(levels[0]).Type != pt:
		fatalf("embeds(T, P)", "%s must embed its parent %s", typeName(tt), typeName(pt))
	}
	h.add(tt, pt, levels[0], eraseLevel(own))
}

// RegistrationState reports how far t, a concrete struct type or a pointer
// to one, has progressed in the hierarchy rooted at R.
func RegistrationState[R any](t reflect.Type) Registration {
	h := hierarchyOf(reflect.TypeFor[R]())
	if h == nil || t == nil {
		return Unregistered
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return h.state(t)
}

// TypeInfo describes a registered concrete type.
type TypeInfo struct {
	Index  int
	Name   string
	Size   int
	Parent string
}

// RegisteredTypes lists the concrete types of the hierarchy rooted at R in
// ObjectIndex order.
func RegisteredTypes[R any]() []TypeInfo {
	h := hierarchyOf(reflect.TypeFor[R]())
	if h == nil {
		return nil
	}
	out := make([]TypeInfo, 0, h.size())
	for i := range uint64(h.size()) {
		e := h.object(i)
		info := TypeInfo{Index: e.index, Name: typeName(e.typ), Size: e.sizeOf()}
		if e.parent != nil {
			info.Parent = typeName(e.parent)
		}
		out = append(out, info)
	}
	return out
}

// process traverses an interface slot of the hierarchy: a presence flag, the
// ObjectIndex of the dynamic type, then every level from the base up.
func (h *hierarchy) process(a *Archive, v reflect.Value) {
	if a.IsFootprinting() {
		a.AddBytes(ifaceHeaderLen)
		if !v.IsNil() {
			h.runLevels(a, h.dynamic(v), v.Elem().Elem())
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
		var idx uint64
		a.word(&idx)
		if a.Err() != nil {
			return
		}
		obj := h.object(idx)
		if obj == nil {
			fatalf("idx < len(registry)", "missing type idx %d in registry of %s (%d types registered)",
				idx, typeName(h.root), h.size())
		}
		ptr := obj.construct(obj.alloc())
		h.runLevels(a, obj, ptr.Elem())
		if a.Err() == nil {
			v.Set(ptr)
		}
		return
	}

	obj := h.dynamic(v)
	idx := uint64(obj.index)
	a.word(&idx)
	h.runLevels(a, obj, v.Elem().Elem())
}

// dynamic returns the entry of the concrete type held by the interface slot v.
func (h *hierarchy) dynamic(v reflect.Value) *objectEntry {
	dt := v.Elem().Type()
	if dt.Kind() != reflect.Pointer {
		fatalf("dynamic(v) is pointer", "%s holds %s by value; store a pointer", typeName(h.root), typeName(dt))
	}
	obj := h.entry(dt.Elem())
	if obj == nil {
		fatalf("registered(dynamic(v))", "dynamic type %s is not registered under %s", typeName(dt.Elem()), typeName(h.root))
	}
	return obj
}

// runLevels traverses the levels of obj stored at tv, from the base up.
func (h *hierarchy) runLevels(a *Archive, obj *objectEntry, tv reflect.Value) {
	se := h.linked(a.Kind(), obj)
	for _, l := range se.chain {
		target := tv
		if len(l.path) > 0 {
			target = tv.FieldByIndex(l.path)
		}
		level := h.object(uint64(l.entry.object))
		a.frame(planOf(level.typ), "", target, l.entry.level)
		if a.Err() != nil {
			return
		}
	}
}

// levelsAdapter traverses a registered concrete type held by value.
func levelsAdapter(h *hierarchy, t reflect.Type) adapter {
	return func(a *Archive, v reflect.Value) {
		h.runLevels(a, h.entry(t), v)
	}
}

package serial

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// ReconstructionStrategy is how fresh storage is prepared before unpacking into it.
type ReconstructionStrategy uint8

const (
	// StrategyNone means the type cannot be materialized.
	StrategyNone ReconstructionStrategy = iota
	// StrategyTaggedConstructor calls Construct(ConstructMarker) on the storage.
	StrategyTaggedConstructor
	// StrategyIntrusive calls the type's Reconstruct(storage *T) *T method.
	StrategyIntrusive
	// StrategyNonIntrusive calls the function registered with RegisterReconstruct.
	StrategyNonIntrusive
	// StrategyDefault uses the zero value.
	StrategyDefault
)

func (s ReconstructionStrategy) String() string {
	switch s {
	case StrategyTaggedConstructor:
		return "tagged-constructor"
	case StrategyIntrusive:
		return "intrusive-reconstruct"
	case StrategyNonIntrusive:
		return "non-intrusive-reconstruct"
	case StrategyDefault:
		return "default"
	default:
		return "none"
	}
}

// reconstructor prepares zeroed storage of one type. make receives a *T and
// returns the *T to unpack into, which may be a different object.
type reconstructor struct {
	strategy ReconstructionStrategy
	make     func(storage reflect.Value) reflect.Value
}

var (
	reconstructors   = xsync.NewMap[reflect.Type, *reconstructor]()
	reconstructFuncs = xsync.NewMap[reflect.Type, func(reflect.Value) reflect.Value]()
)

// RegisterReconstruct registers fn as the way to materialize T when T has
// neither a Construct nor a Reconstruct method. fn receives zeroed storage
// and returns the object to unpack into.
func RegisterReconstruct[T any](fn func(storage *T) *T) {
	t := reflect.TypeFor[T]()
	reconstructFuncs.Store(t, func(storage reflect.Value) reflect.Value {
		return reflect.ValueOf(fn(storage.Interface().(*T)))
	})
	reconstructors.Delete(t)
}

// ReconstructionStrategyOf returns the strategy used for t. The choice is
// made once per type.
func ReconstructionStrategyOf(t reflect.Type) ReconstructionStrategy {
	return reconstructorOf(t).strategy
}

func reconstructorOf(t reflect.Type) *reconstructor {
	if r, ok := reconstructors.Load(t); ok {
		return r
	}
	r, _ := reconstructors.LoadOrStore(t, newReconstructor(t))
	return r
}

func newReconstructor(t reflect.Type) *reconstructor {
	if t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(constructibleType) {
		return &reconstructor{strategy: StrategyTaggedConstructor, make: func(s reflect.Value) reflect.Value {
			s.Interface().(Constructible).Construct(ConstructMarker{})
			return s
		}}
	}
	if m, ok := intrusiveReconstruct(t); ok {
		return &reconstructor{strategy: StrategyIntrusive, make: func(s reflect.Value) reflect.Value {
			return m.Call([]reflect.Value{s})[0]
		}}
	}
	if fn, ok := reconstructFuncs.Load(t); ok {
		return &reconstructor{strategy: StrategyNonIntrusive, make: fn}
	}
	if t.Kind() == reflect.Interface || implements(t, noDefaultConstructType) {
		return &reconstructor{strategy: StrategyNone}
	}
	return &reconstructor{strategy: StrategyDefault}
}

// intrusiveReconstruct finds a value-receiver method Reconstruct(*T) *T and
// binds it to the zero value of T.
func intrusiveReconstruct(t reflect.Type) (reflect.Value, bool) {
	if t.Kind() == reflect.Interface {
		return reflect.Value{}, false
	}
	m, ok := t.MethodByName("Reconstruct")
	if !ok {
		return reflect.Value{}, false
	}
	pt := reflect.PointerTo(t)
	mt := m.Type // receiver is In(0)
	if mt.NumIn() != 2 || mt.In(1) != pt || mt.NumOut() != 1 || mt.Out(0) != pt {
		return reflect.Value{}, false
	}
	return reflect.Zero(t).Method(m.Index), true
}

// construct prepares storage, a *T, and returns the object to unpack into.
func construct(t reflect.Type, storage reflect.Value) reflect.Value {
	r := reconstructorOf(t)
	switch r.strategy {
	case StrategyDefault:
		return storage
	case StrategyNone:
		fatalf("reconstructible(T)", "no viable reconstruction strategy for %s", typeName(t))
	}
	obj := r.make(storage)
	if !obj.IsValid() || obj.IsNil() {
		fatalf("reconstruct(T) != nil", "%s strategy for %s returned nil", r.strategy, typeName(t))
	}
	return obj
}

// newSlot allocates and reconstructs a T and returns a *T. Interface slots
// are only allocated; their dynamic type is decided by the data.
func newSlot(t reflect.Type) reflect.Value {
	storage := reflect.New(t)
	if t.Kind() == reflect.Interface {
		return storage
	}
	return construct(t, storage)
}

// reconstructElems prepares freshly allocated elements of a slice.
func reconstructElems(s reflect.Value) {
	et := s.Type().Elem()
	if et.Kind() == reflect.Interface || reconstructorOf(et).strategy == StrategyDefault {
		return
	}
	for i := range s.Len() {
		slot := s.Index(i).Addr()
		if obj := construct(et, slot); obj.Pointer() != slot.Pointer() {
			slot.Elem().Set(obj.Elem())
		}
	}
}

package serial

import (
	"encoding"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v4"
)

// capability is how the dispatcher traverses a type. The order of the
// constants is the precedence in which they are tried.
type capability uint8

const (
	capOpaque capability = iota
	capBytes
	capEnum
	capMethod
	capFunc
)

func (c capability) String() string {
	switch c {
	case capBytes:
		return "bytes"
	case capEnum:
		return "enum"
	case capMethod:
		return "method"
	case capFunc:
		return "func"
	default:
		return "opaque"
	}
}

// adapter traverses one addressable, settable value.
type adapter func(a *Archive, v reflect.Value)

type funcEntry struct {
	fn    adapter
	conds []Condition
}

func (e funcEntry) matches(s TraitSet) bool {
	for _, c := range e.conds {
		if !c(s) {
			return false
		}
	}
	return true
}

// typePlan is the resolved traversal strategy of one type.
type typePlan struct {
	t       reflect.Type
	name    string
	id      uint64 // stable type index written in error-checking mode
	cap     capability
	size    int
	minWire int          // fewest packed bytes one value can occupy
	enum    reflect.Type // predeclared integer type of an enum
	method  adapter
	funcs   []funcEntry // user functions, tried in registration order
	builtin adapter     // kind adapter used when no user function matches
	warned  atomic.Bool
}

var (
	// plans avoids re-deriving capabilities with reflection on every traversal.
	plans = xsync.NewMap[reflect.Type, *typePlan]()
	// typeNames maps stable type indices back to names for error messages.
	typeNames = xsync.NewMap[uint64, string]()
	// trivial holds types marked with MarkTriviallyCopyable.
	trivial = xsync.NewMap[reflect.Type, struct{}]()

	funcsMu   sync.Mutex
	userFuncs = xsync.NewMap[reflect.Type, []funcEntry]()
)

var (
	binaryMarshalerType   = reflect.TypeFor[encoding.BinaryMarshaler]()
	binaryUnmarshalerType = reflect.TypeFor[encoding.BinaryUnmarshaler]()
)

// MarkTriviallyCopyable declares that T is packed as a verbatim copy of its
// memory. T must not hold references.
func MarkTriviallyCopyable[T any]() {
	t := reflect.TypeFor[T]()
	if hasPointers(t) {
		fatalf("!hasPointers(T)", "type %s holds references and cannot be trivially copyable", typeName(t))
	}
	trivial.Store(t, struct{}{})
	invalidatePlans()
}

// RegisterFunc registers a traversal function for T. Functions are tried in
// registration order and the first whose conditions all hold for the
// archive's traits runs; when none holds, the built-in traversal for T's kind
// is used. A registered function takes precedence over byte copying of
// structs and over the built-in kind traversals, but not over a Serialize
// method, which T itself defines.
//
//	serial.RegisterFunc(func(a *serial.Archive, v *Cache) {
//		a.Process(&v.Capacity)
//	}, serial.WhenTraits(serial.TraitOf[SkipContents]()))
func RegisterFunc[T any](fn func(a *Archive, v *T), conds ...Condition) {
	t := reflect.TypeFor[T]()
	e := funcEntry{
		fn:    func(a *Archive, v reflect.Value) { fn(a, (*T)(v.Addr().UnsafePointer())) },
		conds: conds,
	}
	funcsMu.Lock()
	old, _ := userFuncs.Load(t)
	userFuncs.Store(t, append(slices.Clip(old), e))
	funcsMu.Unlock()
	invalidatePlans()
}

// invalidatePlans drops every resolved plan. Registration changes which
// capability a type resolves to, and that of every type containing it.
func invalidatePlans() {
	plans.Clear()
}

func typeID(name string) uint64 { return xxhash.Sum64String(name) }

// typeNameOf returns the name registered for a type index.
func typeNameOf(id uint64) string {
	if name, ok := typeNames.Load(id); ok {
		return name
	}
	return fmt.Sprintf("#%016x", id)
}

// planOf returns the cached plan of t, resolving it on first use.
func planOf(t reflect.Type) *typePlan {
	if p, ok := plans.Load(t); ok {
		return p
	}
	p, _ := plans.LoadOrStore(t, newPlan(t))
	return p
}

func newPlan(t reflect.Type) *typePlan {
	p := &typePlan{t: t, name: typeName(t), size: int(t.Size())}
	p.id = typeID(p.name)
	typeNames.Store(p.id, p.name)

	switch {
	case byteCopyable(t):
		p.cap = capBytes
	case isEnum(t) && !ownTraversal(t):
		p.cap = capEnum
		p.enum = predeclaredInt(t.Kind())
	case hierarchyMember(t) != nil:
		p.cap = capMethod
		p.method = levelsAdapter(hierarchyMember(t), t)
	case hasMethod(t):
		p.cap = capMethod
		p.method = methodAdapter
	default:
		p.funcs, _ = userFuncs.Load(t)
		p.builtin = builtinAdapter(t)
		if len(p.funcs) > 0 || p.builtin != nil {
			p.cap = capFunc
		}
	}
	p.minWire = minWire(p)
	return p
}

func methodAdapter(a *Archive, v reflect.Value) {
	v.Addr().Interface().(Serializable).Serialize(a)
}

// hasMethod reports whether T defines Serialize on itself or its pointer.
// Pointers and interfaces are traversed by their kind adapters instead.
func hasMethod(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	return reflect.PointerTo(t).Implements(serializableType)
}

func hasUserFuncs(t reflect.Type) bool {
	fs, ok := userFuncs.Load(t)
	return ok && len(fs) > 0
}

func isBinaryMarshaler(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	return implements(t, binaryMarshalerType) && implements(t, binaryUnmarshalerType)
}

// ownTraversal reports whether a type brings its own traversal, which rules
// out copying it as raw bytes or converting it as an enum.
func ownTraversal(t reflect.Type) bool {
	return hasMethod(t) || hasUserFuncs(t) || isBinaryMarshaler(t) || hierarchyMember(t) != nil
}

func byteCopyable(t reflect.Type) bool {
	if _, ok := trivial.Load(t); ok {
		return true
	}
	if t.Kind() != reflect.Interface && implements(t, triviallyCopyableType) {
		if hasPointers(t) {
			fatalf("!hasPointers(T)", "type %s is marked TriviallyCopyable but holds references", typeName(t))
		}
		return true
	}
	if ownTraversal(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return !isEnum(t)
	case reflect.Array:
		return t.Len() == 0 || planOf(t.Elem()).cap == capBytes
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if f.Tag.Get("serial") == "-" || planOf(f.Type).cap != capBytes {
				return false
			}
		}
		return true
	}
	return false
}

func isPredeclared(t reflect.Type) bool {
	return t.PkgPath() == "" && t.Name() != ""
}

// isEnum reports whether t is a named integer type.
func isEnum(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return !isPredeclared(t)
	}
	return false
}

func predeclaredInt(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Int:
		return reflect.TypeFor[int]()
	case reflect.Int8:
		return reflect.TypeFor[int8]()
	case reflect.Int16:
		return reflect.TypeFor[int16]()
	case reflect.Int32:
		return reflect.TypeFor[int32]()
	case reflect.Int64:
		return reflect.TypeFor[int64]()
	case reflect.Uint:
		return reflect.TypeFor[uint]()
	case reflect.Uint8:
		return reflect.TypeFor[uint8]()
	case reflect.Uint16:
		return reflect.TypeFor[uint16]()
	case reflect.Uint32:
		return reflect.TypeFor[uint32]()
	case reflect.Uint64:
		return reflect.TypeFor[uint64]()
	default:
		return reflect.TypeFor[uintptr]()
	}
}

// minWire is a lower bound on the packed size of one value, excluding
// error-checking frames. Decoded lengths are checked against it before
// anything is allocated. A traversal function or method may pack anything,
// so it is assumed to pack at least one byte.
func minWire(p *typePlan) int {
	switch p.cap {
	case capBytes, capEnum:
		return p.size
	case capMethod:
		return 1
	case capFunc:
		if len(p.funcs) > 0 {
			return 1
		}
		if isBinaryMarshaler(p.t) {
			return 8
		}
		switch p.t.Kind() {
		case reflect.String, reflect.Slice, reflect.Map:
			return 8
		case reflect.Pointer, reflect.Interface:
			return 1
		case reflect.Array:
			return p.t.Len() * planOf(p.t.Elem()).minWire
		case reflect.Struct:
			n := 0
			for _, f := range traversedFields(p.t) {
				n += planOf(p.t.Field(f.index).Type).minWire
			}
			return n
		}
	}
	return 0
}

// CapabilityOf names the traversal the dispatcher picks for t: "bytes",
// "enum", "method", "func" or "opaque".
func CapabilityOf(t reflect.Type) string {
	return planOf(t).cap.String()
}

// TypeIndex returns the stable type index error-checking mode frames values
// of t with. It also makes the index resolvable through TypeNameOf.
func TypeIndex(t reflect.Type) uint64 {
	return planOf(t).id
}

// TypeNameOf resolves a type index to the name of a type this process has
// already traversed or indexed.
func TypeNameOf(id uint64) (string, bool) {
	return typeNames.Load(id)
}

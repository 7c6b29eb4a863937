package serial

import "reflect"

// Serializable is implemented by types that traverse their own fields.
// Serialize is called once per mode with the same archive type, so a single
// method describes sizing, packing, unpacking and footprinting:
//
//	func (p *Point) Serialize(a *serial.Archive) {
//		a.Process(&p.X, &p.Y)
//	}
//
// The method must touch the same data in every mode; an asymmetric
// implementation is reported as a SizeMismatchError.
type Serializable interface {
	Serialize(a *Archive)
}

// TriviallyCopyable marks a type whose serialized form is a verbatim copy of
// its memory. The type must not contain pointers, strings, slices, maps or interfaces.
type TriviallyCopyable interface {
	TriviallyCopyable()
}

// ConstructMarker is the tag handed to Constructible.Construct.
type ConstructMarker struct{}

// Constructible is implemented by types that prepare freshly allocated storage
// for unpacking without initializing the fields the unpacker will overwrite.
type Constructible interface {
	Construct(ConstructMarker)
}

// NoDefaultConstruct marks a type whose zero value must never be handed to the
// unpacker. Such a type needs a Construct method, a Reconstruct method or a
// registered reconstruct function.
type NoDefaultConstruct interface {
	NoDefaultConstruct()
}

var (
	serializableType       = reflect.TypeFor[Serializable]()
	triviallyCopyableType  = reflect.TypeFor[TriviallyCopyable]()
	constructibleType      = reflect.TypeFor[Constructible]()
	noDefaultConstructType = reflect.TypeFor[NoDefaultConstruct]()
)

// implements reports whether t or *t implements iface.
func implements(t, iface reflect.Type) bool {
	return t.Implements(iface) || (t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(iface))
}

package serial

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// state is shared by every view of one traversal.
type state struct {
	eng   Engine
	opts  *Options
	depth int
}

// Archive is the view of a mode object handed to traversal code. Views made
// with WithTraits or WithoutTraits share the engine, so they write to the
// same buffer at the same cursor.
type Archive struct {
	st     *state
	traits TraitSet
}

// NewArchive returns a root archive over eng.
func NewArchive(eng Engine, opts ...Option) *Archive {
	o := buildOptions(opts)
	return &Archive{st: &state{eng: eng, opts: o}, traits: o.Traits}
}

func (a *Archive) Engine() Engine       { return a.st.eng }
func (a *Archive) Mode() Mode           { return a.st.eng.Mode() }
func (a *Archive) IsSizing() bool       { return a.Mode() == ModeSizing }
func (a *Archive) IsPacking() bool      { return a.Mode() == ModePacking }
func (a *Archive) IsUnpacking() bool    { return a.Mode() == ModeUnpacking }
func (a *Archive) IsFootprinting() bool { return a.Mode() == ModeFootprinting }

// ErrorChecking reports whether entries are framed with type and size headers.
func (a *Archive) ErrorChecking() bool { return a.st.opts.ErrorChecking }

// Traits returns the traits attached to this view.
func (a *Archive) Traits() TraitSet { return a.traits }

// Kind identifies the mode and observable traits of this view.
func (a *Archive) Kind() ArchiveKind {
	return ArchiveKind{Mode: a.Mode(), Traits: a.traits.Key()}
}

// WithTraits returns a view over the same engine with ts added.
func (a *Archive) WithTraits(ts ...Trait) *Archive {
	return &Archive{st: a.st, traits: a.traits.With(ts...)}
}

// WithoutTraits returns a view over the same engine with one application of
// each listed tag removed.
func (a *Archive) WithoutTraits(ts ...Trait) *Archive {
	return &Archive{st: a.st, traits: a.traits.Without(ts...)}
}

// Has reports whether the archive carries trait T.
func Has[T any](a *Archive) bool { return a.traits.Has(TraitOf[T]()) }

// With returns a view of a that also carries trait T.
func With[T any](a *Archive) *Archive { return a.WithTraits(TraitOf[T]()) }

// Without returns a view of a with one application of trait T removed.
func Without[T any](a *Archive) *Archive { return a.WithoutTraits(TraitOf[T]()) }

// Process traverses each pointed-to value in order:
//
//	a.Process(&s.ID, &s.Name, &s.Children)
func (a *Archive) Process(ptrs ...any) {
	for _, p := range ptrs {
		if a.Err() != nil {
			return
		}
		a.processPtr(p, "")
	}
}

// ProcessNamed traverses *ptr and names it in error context.
func (a *Archive) ProcessNamed(name string, ptr any) {
	a.processPtr(ptr, name)
}

// ProcessValue traverses an addressable value.
func (a *Archive) ProcessValue(v reflect.Value) {
	if !v.CanAddr() {
		a.Fail(errors.Wrapf(ErrNotPointer, "unaddressable %s", v.Type()))
		return
	}
	a.process(v, "")
}

func (a *Archive) processPtr(p any, name string) {
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		a.Fail(errors.Wrapf(ErrNotPointer, "got %T", p))
		return
	}
	a.process(v.Elem(), name)
}

// ContiguousBytes hands a raw memory view to the engine.
func (a *Archive) ContiguousBytes(p []byte) { a.st.eng.ContiguousBytes(p) }

// AddBytes adds n bytes to a footprint estimate. It is a no-op in other modes.
func (a *Archive) AddBytes(n int) {
	if f, ok := a.st.eng.(*Footprinter); ok {
		f.AddBytes(n)
	}
}

// CountBytes adds the size of v to a footprint estimate. It is a no-op in other modes.
func (a *Archive) CountBytes(v any) {
	if f, ok := a.st.eng.(*Footprinter); ok {
		f.CountBytes(v)
	}
}

// Used returns the bytes accounted for so far.
func (a *Archive) Used() int { return a.st.eng.Used() }

// Err returns the first error of the traversal.
func (a *Archive) Err() error { return a.st.eng.Err() }

// Fail records err if the traversal has not failed yet. Traversal code uses
// it to reject data it cannot accept; later operations become no-ops.
func (a *Archive) Fail(err error) { a.st.eng.Fail(err) }

// word moves one native-order uint64 through the engine.
func (a *Archive) word(w *uint64) { a.st.eng.ContiguousBytes(wordBytes(w)) }

// flag moves a one-byte presence flag through the engine.
func (a *Archive) flag(present *bool) {
	b := byte(0)
	if *present {
		b = 1
	}
	a.st.eng.ContiguousBytes(unsafeByte(&b))
	if a.IsUnpacking() && a.Err() == nil {
		if b > 1 {
			a.Fail(errors.Wrapf(ErrInvalidFlag, "got %d", b))
			return
		}
		*present = b == 1
	}
}

// length moves an element count and, when unpacking, validates it against
// the remaining input. Each element packs at least minWire bytes plus one
// error-checking frame per framed entry it holds.
func (a *Archive) length(n *int, minWire, frames int) bool {
	w := uint64(*n)
	a.word(&w)
	if !a.IsUnpacking() {
		return a.Err() == nil
	}
	if a.Err() != nil {
		return false
	}
	if a.ErrorChecking() {
		minWire += frames * frameLen
	}
	if u, ok := a.st.eng.(*Unpacker); ok && !u.checkLen(w, minWire) {
		return false
	}
	*n = int(w)
	return true
}

func (a *Archive) logWarn(msg string, t reflect.Type) {
	a.st.opts.logger().Warn(msg, zapType(t))
}

package serial

import (
	"reflect"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Trait is a tag attached to an archive at a call site. Its identity is a Go
// type, usually an empty struct declared by the caller:
//
//	type SkipCache struct{}
//	info, err := serial.Serialize(v, serial.WithTraits(serial.TraitOf[SkipCache]()))
type Trait struct {
	t reflect.Type
}

// TraitOf returns the trait identified by T.
func TraitOf[T any]() Trait {
	return Trait{t: reflect.TypeFor[T]()}
}

func (t Trait) String() string { return typeName(t.t) }

// TraitSet is the set of traits attached to an archive. It remembers every
// application in order, so a tag applied twice must be removed twice, while
// membership ignores duplicates.
type TraitSet struct {
	applied []Trait
}

// NewTraitSet returns a set holding ts in order.
func NewTraitSet(ts ...Trait) TraitSet {
	return TraitSet{}.With(ts...)
}

// With returns a new set with ts appended. Adding a tag already present does
// not change membership.
func (s TraitSet) With(ts ...Trait) TraitSet {
	if len(ts) == 0 {
		return s
	}
	return TraitSet{applied: append(slices.Clip(s.applied), ts...)}
}

// Without returns a new set with one application of each listed tag removed,
// the most recent one first. Removing an absent tag is a no-op.
func (s TraitSet) Without(ts ...Trait) TraitSet {
	if len(ts) == 0 || len(s.applied) == 0 {
		return s
	}
	out := slices.Clone(s.applied)
	for _, t := range ts {
		if i := lo.LastIndexOf(out, t); i >= 0 {
			out = slices.Delete(out, i, i+1)
		}
	}
	return TraitSet{applied: out}
}

// Has reports whether every listed tag is present. It is true for no tags.
func (s TraitSet) Has(ts ...Trait) bool {
	return lo.Every(s.applied, ts)
}

// HasAny reports whether at least one listed tag is present.
func (s TraitSet) HasAny(ts ...Trait) bool {
	return lo.Some(s.applied, ts)
}

// Tags returns the distinct tags in first-application order.
func (s TraitSet) Tags() []Trait {
	return lo.Uniq(s.applied)
}

// Applied returns every application, duplicates included.
func (s TraitSet) Applied() []Trait {
	return slices.Clone(s.applied)
}

// Len returns the number of distinct tags.
func (s TraitSet) Len() int { return len(s.Tags()) }

// Key identifies the observable set: two sets with the same distinct tags
// share a key regardless of application order or repeats.
func (s TraitSet) Key() string {
	if len(s.applied) == 0 {
		return ""
	}
	names := lo.Map(s.Tags(), func(t Trait, _ int) string { return t.String() })
	slices.Sort(names)
	return strings.Join(names, "|")
}

// Equal reports whether both sets have the same distinct tags.
func (s TraitSet) Equal(o TraitSet) bool { return s.Key() == o.Key() }

func (s TraitSet) String() string { return "{" + s.Key() + "}" }

// Condition decides whether a registered traversal function participates for
// the traits of the archive at hand.
type Condition func(TraitSet) bool

// WhenTraits selects a function only when every listed tag is present.
func WhenTraits(ts ...Trait) Condition {
	return func(s TraitSet) bool { return s.Has(ts...) }
}

// UnlessTraits selects a function only when none of the listed tags is present.
func UnlessTraits(ts ...Trait) Condition {
	return func(s TraitSet) bool { return !s.HasAny(ts...) }
}

// ArchiveKind identifies a mode object configuration: the mode and the
// observable trait set. Traversal closures are registered per kind.
type ArchiveKind struct {
	Mode   Mode
	Traits string
}

func (k ArchiveKind) String() string {
	if k.Traits == "" {
		return k.Mode.String()
	}
	return k.Mode.String() + "{" + k.Traits + "}"
}

package serial

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Variant2 holds exactly one of A or B. It packs the active index followed
// by the active arm only. The zero value holds the zero A.
type Variant2[A, B any] struct {
	index uint64
	a     A
	b     B
}

func (v *Variant2[A, B]) Index() int { return int(v.index) }

func (v *Variant2[A, B]) SetA(x A) { *v = Variant2[A, B]{index: 0, a: x} }
func (v *Variant2[A, B]) SetB(x B) { *v = Variant2[A, B]{index: 1, b: x} }

func (v *Variant2[A, B]) A() (A, bool) { return v.a, v.index == 0 }
func (v *Variant2[A, B]) B() (B, bool) { return v.b, v.index == 1 }

func (v *Variant2[A, B]) Serialize(a *Archive) {
	a.ProcessNamed("index", &v.index)
	if a.IsUnpacking() {
		*v = Variant2[A, B]{index: v.index}
	}
	switch v.index {
	case 0:
		a.ProcessNamed("A", &v.a)
		a.AddBytes(int(unsafe.Sizeof(v.b)))
	case 1:
		a.ProcessNamed("B", &v.b)
		a.AddBytes(int(unsafe.Sizeof(v.a)))
	default:
		a.Fail(errors.Wrapf(ErrVariantIndex, "index %d of 2 arms", v.index))
	}
}

// Variant3 holds exactly one of A, B or C. It packs the active index
// followed by the active arm only. The zero value holds the zero A.
type Variant3[A, B, C any] struct {
	index uint64
	a     A
	b     B
	c     C
}

func (v *Variant3[A, B, C]) Index() int { return int(v.index) }

func (v *Variant3[A, B, C]) SetA(x A) { *v = Variant3[A, B, C]{index: 0, a: x} }
func (v *Variant3[A, B, C]) SetB(x B) { *v = Variant3[A, B, C]{index: 1, b: x} }
func (v *Variant3[A, B, C]) SetC(x C) { *v = Variant3[A, B, C]{index: 2, c: x} }

func (v *Variant3[A, B, C]) A() (A, bool) { return v.a, v.index == 0 }
func (v *Variant3[A, B, C]) B() (B, bool) { return v.b, v.index == 1 }
func (v *Variant3[A, B, C]) C() (C, bool) { return v.c, v.index == 2 }

func (v *Variant3[A, B, C]) Serialize(a *Archive) {
	a.ProcessNamed("index", &v.index)
	if a.IsUnpacking() {
		*v = Variant3[A, B, C]{index: v.index}
	}
	// Inactive arms still occupy memory.
	switch v.index {
	case 0:
		a.ProcessNamed("A", &v.a)
		a.AddBytes(int(unsafe.Sizeof(v.b) + unsafe.Sizeof(v.c)))
	case 1:
		a.ProcessNamed("B", &v.b)
		a.AddBytes(int(unsafe.Sizeof(v.a) + unsafe.Sizeof(v.c)))
	case 2:
		a.ProcessNamed("C", &v.c)
		a.AddBytes(int(unsafe.Sizeof(v.a) + unsafe.Sizeof(v.b)))
	default:
		a.Fail(errors.Wrapf(ErrVariantIndex, "index %d of 3 arms", v.index))
	}
}

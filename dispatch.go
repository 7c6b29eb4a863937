package serial

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// process is one dispatch entry: the unit that is framed in error-checking
// mode and that contributes one line of error context.
func (a *Archive) process(v reflect.Value, field string) {
	if a.st.eng.Err() != nil {
		return
	}
	a.frame(planOf(v.Type()), field, v, nil)
}

// frame runs body, or the plan's dispatch when body is nil, inside one entry.
func (a *Archive) frame(p *typePlan, field string, v reflect.Value, body adapter) {
	st := a.st
	if st.eng.Err() != nil {
		return
	}
	if st.depth >= st.opts.MaxDepth {
		a.Fail(errors.Wrapf(ErrMaxDepth, "limit %d", st.opts.MaxDepth))
		a.annotateFrame(p, field)
		return
	}

	st.depth++
	framed := st.opts.ErrorChecking && st.eng.Mode() != ModeFootprinting
	if framed {
		a.typeHeader(p)
	}
	start := st.eng.Used()
	if body != nil {
		body(a, settable(v))
	} else {
		a.dispatch(p, settable(v))
	}
	if framed {
		a.sizeTrailer(start)
	}
	st.depth--

	if st.eng.Err() != nil {
		a.annotateFrame(p, field)
	}
}

// dispatch applies the resolved capability to a single value.
func (a *Archive) dispatch(p *typePlan, v reflect.Value) {
	switch p.cap {
	case capBytes:
		a.st.eng.ContiguousBytes(bytesOf(v, 1))
	case capEnum:
		a.enum(p, v)
	case capMethod:
		p.method(a, v)
	case capFunc:
		a.callFunc(p, v)
	default:
		a.opaque(p, 1)
	}
}

// dispatchRun applies the resolved capability to every element of an
// addressable array or a slice. Byte-copyable runs reach the engine as one
// contiguous view.
func (a *Archive) dispatchRun(p *typePlan, seq reflect.Value) {
	n := seq.Len()
	if n == 0 {
		return
	}
	switch p.cap {
	case capBytes:
		a.st.eng.ContiguousBytes(runBytes(seq))
	case capOpaque:
		a.opaque(p, n)
	default:
		for i := range n {
			a.process(seq.Index(i), "")
			if a.Err() != nil {
				return
			}
		}
	}
}

// enum moves a named integer through its predeclared integer type.
func (a *Archive) enum(p *typePlan, v reflect.Value) {
	u := reflect.New(p.enum).Elem()
	u.Set(v.Convert(p.enum))
	a.dispatch(planOf(p.enum), u)
	if a.IsUnpacking() && a.Err() == nil {
		v.Set(u.Convert(p.t))
	}
}

func (a *Archive) callFunc(p *typePlan, v reflect.Value) {
	for _, e := range p.funcs {
		if e.matches(a.traits) {
			e.fn(a, v)
			return
		}
	}
	if p.builtin != nil {
		p.builtin(a, v)
		return
	}
	a.opaque(p, 1)
}

// opaque handles a type with no traversal. A footprint counts its size and
// does not look inside; every other mode cannot proceed.
func (a *Archive) opaque(p *typePlan, count int) {
	if a.IsFootprinting() {
		if p.warned.CompareAndSwap(false, true) {
			a.logWarn("type is not traversed; footprint counts its inline size only", p.t)
		}
		a.AddBytes(p.size * count)
		return
	}
	fatalf("serializable(T)", "type %s is not serializable: no byte copy, enum, Serialize method or traversal function applies (%s)",
		p.name, a.Mode())
}

// frameLen is the type index plus the size trailer framing one entry in
// error-checking mode.
const frameLen = 16

// typeHeader moves the stable type index of p and, when unpacking, checks it.
func (a *Archive) typeHeader(p *typePlan) {
	id := p.id
	a.word(&id)
	if a.IsUnpacking() && a.Err() == nil && id != p.id {
		a.Fail(&TypeMismatchError{Expected: p.name, Got: typeNameOf(id)})
	}
}

// sizeTrailer moves the number of bytes the value used since start and, when
// unpacking, checks it against what was actually consumed.
func (a *Archive) sizeTrailer(start int) {
	if a.Err() != nil {
		return
	}
	used := uint64(a.Used() - start)
	recorded := used
	a.word(&recorded)
	if a.IsUnpacking() && a.Err() == nil && recorded != used {
		a.Fail(&SizeMismatchError{Phase: "unpack", Expected: int(recorded), Actual: int(used)})
	}
}

// annotateFrame adds one line of context to a fresh error, so the final
// message reads from the root object down to the failing field.
func (a *Archive) annotateFrame(p *typePlan, field string) {
	an, ok := a.st.eng.(annotator)
	if !ok {
		return
	}
	an.annotate(func(err error) error {
		if field != "" {
			return errors.Wrapf(err, "%s (%s)", field, p.name)
		}
		return errors.Wrapf(err, "%s", p.name)
	})
}

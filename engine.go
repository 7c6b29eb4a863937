package serial

import (
	"io"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Engine is the primitive a mode object implements. Every traversal is
// eventually reduced to ContiguousBytes calls over views of live memory.
type Engine interface {
	// Mode returns the traversal this engine drives. It never changes.
	Mode() Mode
	// ContiguousBytes sizes, copies out, copies in or counts p depending on the mode.
	ContiguousBytes(p []byte)
	// Used returns the number of bytes accounted for so far.
	Used() int
	// Err returns the first error encountered.
	Err() error
	// Fail records err if no error has been recorded yet.
	Fail(err error)
}

// latch tracks the first error; after an error every later operation is a no-op.
type latch struct {
	err error
}

func (l *latch) Err() error { return l.err }

func (l *latch) Fail(err error) {
	if l.err == nil && err != nil {
		l.err = err
	}
}

// annotate replaces the recorded error with a wrapped version of it.
func (l *latch) annotate(wrap func(error) error) {
	if l.err != nil {
		l.err = wrap(l.err)
	}
}

type annotator interface {
	annotate(func(error) error)
}

// Sizer accumulates the number of bytes a traversal would pack. It touches no memory.
type Sizer struct {
	latch
	n int
}

var _ Engine = (*Sizer)(nil)

func NewSizer() *Sizer { return &Sizer{} }

func (s *Sizer) Mode() Mode { return ModeSizing }

func (s *Sizer) ContiguousBytes(p []byte) { s.n += len(p) }

func (s *Sizer) Used() int { return s.n }

// Size returns the accumulated size.
func (s *Sizer) Size() int { return s.n }

// Packer copies traversed memory into a sink. The sink is a fixed region for
// the buffer API and a Writer for the stream API.
type Packer struct {
	latch
	w    io.Writer
	used int // bytes requested, including any that did not fit
}

var _ Engine = (*Packer)(nil)

// NewPacker returns a packer writing into the fixed region p.
func NewPacker(p []byte) *Packer {
	return &Packer{w: newBufferWriter(p)}
}

// NewStreamPacker returns a packer writing to w.
func NewStreamPacker(w *Writer) *Packer {
	return &Packer{w: w}
}

func (p *Packer) Mode() Mode { return ModePacking }

func (p *Packer) ContiguousBytes(b []byte) {
	p.used += len(b)
	if p.err != nil || len(b) == 0 {
		return
	}
	if _, err := p.w.Write(b); err != nil {
		p.Fail(errors.Wrapf(err, "serial: pack %d bytes at offset %d", len(b), p.used-len(b)))
	}
}

func (p *Packer) Used() int { return p.used }

// byteSource is where an Unpacker reads from. Remaining returns -1 when the
// number of bytes left is unknown.
type byteSource interface {
	io.Reader
	Remaining() int
}

// Unpacker copies bytes from a source into traversed memory.
type Unpacker struct {
	latch
	r    byteSource
	used int
}

var _ Engine = (*Unpacker)(nil)

// NewUnpacker returns an unpacker reading the fixed region p.
func NewUnpacker(p []byte) *Unpacker {
	return &Unpacker{r: newBufferReader(p)}
}

// NewStreamUnpacker returns an unpacker reading from r.
func NewStreamUnpacker(r *Reader) *Unpacker {
	return &Unpacker{r: r}
}

func (u *Unpacker) Mode() Mode { return ModeUnpacking }

func (u *Unpacker) ContiguousBytes(b []byte) {
	if u.err != nil || len(b) == 0 {
		return
	}
	n, err := io.ReadFull(u.r, b)
	u.used += n
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncatedData
		}
		u.Fail(errors.Wrapf(err, "serial: unpack %d bytes at offset %d", len(b), u.used-n))
	}
}

func (u *Unpacker) Used() int { return u.used }

// Remaining returns the number of unread bytes, or -1 when the source length is unknown.
func (u *Unpacker) Remaining() int { return u.r.Remaining() }

// checkLen validates a decoded element count against the input that is left.
// minWire is the smallest number of bytes one element can occupy.
func (u *Unpacker) checkLen(n uint64, minWire int) bool {
	limit := uint64(TooBig)
	if rem := u.Remaining(); rem >= 0 && minWire > 0 {
		limit = min(limit, uint64(rem/minWire))
	}
	if n > limit {
		u.Fail(errors.Wrapf(ErrLengthTooLarge, "length %d, limit %d", n, limit))
		return false
	}
	return true
}

// Footprinter estimates the live memory a value occupies, including inline
// headers and heap children such as unused slice capacity.
type Footprinter struct {
	latch
	n int
}

var _ Engine = (*Footprinter)(nil)

func NewFootprinter() *Footprinter { return &Footprinter{} }

func (f *Footprinter) Mode() Mode { return ModeFootprinting }

func (f *Footprinter) ContiguousBytes(p []byte) { f.n += len(p) }

func (f *Footprinter) Used() int { return f.n }

// AddBytes adds n bytes to the estimate.
func (f *Footprinter) AddBytes(n int) { f.n += n }

// CountBytes adds the size of v's dynamic type. A pointer is followed once,
// so CountBytes(&x) and CountBytes(x) agree.
func (f *Footprinter) CountBytes(v any) {
	f.n += sizeOfAny(v)
}

// Footprint returns the accumulated estimate.
func (f *Footprinter) Footprint() int { return f.n }

func sizeOfAny(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return int(rv.Type().Elem().Size())
	}
	return int(rv.Type().Size())
}

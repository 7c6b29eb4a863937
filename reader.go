package serial

import (
	"bytes"
	"io"
)

// Reader is the stream source behind DeserializeFromStream. It reads exactly
// what is requested and never past the end of the payload, so several
// payloads can follow each other on one stream. It tracks the first error;
// subsequent reads become no-ops.
type Reader struct {
	r     io.Reader
	count int64 // total bytes read
	err   error // first error encountered.
	known func() int
}

// NewReader wraps r for unpacking.
func NewReader(r io.Reader) (*Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}
	rd := &Reader{r: r}
	switch src := r.(type) {
	case *Reader:
		return src, nil
	case *bytes.Reader:
		rd.known = src.Len
	case *bytes.Buffer:
		rd.known = src.Len
	}
	return rd, nil
}

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	r.count += int64(n)
	if err != io.EOF {
		r.setError(err)
	}
	return n, err
}

// Remaining returns the bytes left when the source length is known, or -1.
func (r *Reader) Remaining() int {
	if r.known == nil {
		return -1
	}
	return r.known()
}

func (r *Reader) Count() int64 { return r.count }
func (r *Reader) Err() error   { return r.err }

func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

package serial

import (
	"bufio"
	"bytes"
	"io"
)

// flusher is a sink that may hold bytes back until Flush.
type flusher interface {
	io.Writer
	Flush() error
}

// Writer is the stream sink a packer writes to. Engines issue many small
// contiguous writes, so the sink is buffered unless the destination already
// is. The first error is latched and every later write returns it.
type Writer struct {
	w     flusher
	count int64
	err   error
	depth int // >0 when sharing another writer's buffer
}

// NewWriterSize wraps w with a buffer of at least size bytes. A Writer is
// shared rather than wrapped, a large enough *bufio.Writer is used as is and
// a *bytes.Buffer is written directly.
func NewWriterSize(w io.Writer, size int) (*Writer, error) {
	if w == nil {
		return nil, ErrNilIO
	}
	switch dst := w.(type) {
	case *Writer:
		return &Writer{w: dst.w, depth: dst.depth + 1}, nil
	case *bufio.Writer:
		if dst.Size() >= size {
			return &Writer{w: dst, depth: 1}, nil
		}
	case *bytes.Buffer:
		return &Writer{w: &bytesBufferWriterAdapter{dst}}, nil
	}
	if size <= 0 {
		return &Writer{w: bufio.NewWriter(w)}, nil
	}
	return &Writer{w: bufio.NewWriterSize(w, size)}, nil
}

// NewWriter wraps w with the default bufio size.
func NewWriter(w io.Writer) (*Writer, error) {
	return NewWriterSize(w, 0)
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil || len(p) == 0 {
		return 0, w.err
	}
	n, err := w.w.Write(p)
	w.count += int64(n)
	w.fail(err)
	return n, w.err
}

// Count returns the bytes accepted so far, buffered ones included.
func (w *Writer) Count() int64 { return w.count }

// Err returns the latched error.
func (w *Writer) Err() error { return w.err }

func (w *Writer) fail(err error) {
	if err != nil && w.err == nil {
		w.err = err
	}
}

// Flush pushes buffered bytes to the destination. A writer sharing another
// writer's buffer leaves flushing to the outermost one.
func (w *Writer) Flush() error {
	if w.err != nil || w.depth > 0 {
		return w.err
	}
	w.fail(w.w.Flush())
	return w.err
}

// Result flushes and reports the total count and the latched error.
func (w *Writer) Result() (int64, error) {
	_ = w.Flush()
	return w.count, w.err
}

type bytesBufferWriterAdapter struct{ *bytes.Buffer }

func (bytesBufferWriterAdapter) Flush() error { return nil }

package serial

import "io"

// bufferWriter writes into a fixed byte region. It will not grow the region;
// a write past the end copies what fits and returns io.ErrShortWrite.
type bufferWriter struct {
	B []byte // destination region
	N int    // current write position
}

func newBufferWriter(p []byte) *bufferWriter {
	return &bufferWriter{B: p}
}

// Write implements the io.Writer interface.
func (w *bufferWriter) Write(p []byte) (int, error) {
	if w.N >= len(w.B) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.ErrShortWrite
	}
	n := copy(w.B[w.N:], p)
	w.N += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// bufferReader reads from a fixed byte region.
type bufferReader struct {
	B []byte // source region
	N int    // current read position
}

func newBufferReader(b []byte) *bufferReader {
	return &bufferReader{B: b}
}

// Read implements the io.Reader interface.
func (r *bufferReader) Read(p []byte) (int, error) {
	if r.N >= len(r.B) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, r.B[r.N:])
	r.N += n
	return n, nil
}

// Remaining returns the number of bytes left to read.
func (r *bufferReader) Remaining() int {
	if n := len(r.B) - r.N; n > 0 {
		return n
	}
	return 0
}

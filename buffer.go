package serial

import (
	"github.com/cockroachdb/errors"
)

// Buffer is a contiguous byte region a Packer writes into or an Unpacker reads from.
// Exactly one owner holds a Buffer at a time. Release frees what the buffer owns;
// after Release the bytes must not be used.
type Buffer interface {
	// Bytes returns the whole region.
	Bytes() []byte
	// Len returns the length of the region.
	Len() int
	// Release frees owned resources. Releasing twice is a no-op.
	Release() error
}

// HeapBuffer is an exclusively owned heap region.
type HeapBuffer struct {
	b      []byte
	pooled *[]byte
}

var _ Buffer = (*HeapBuffer)(nil)

// NewHeapBuffer allocates a heap buffer of n bytes. Small buffers are served
// from a pool and return to it on Release.
func NewHeapBuffer(n int) *HeapBuffer {
	if p, ok := getPooled(n); ok {
		return &HeapBuffer{b: (*p)[:n], pooled: p}
	}
	return &HeapBuffer{b: make([]byte, n)}
}

func (h *HeapBuffer) Bytes() []byte { return h.b }
func (h *HeapBuffer) Len() int      { return len(h.b) }

func (h *HeapBuffer) Release() error {
	if h.pooled != nil {
		putPooled(h.pooled)
		h.pooled = nil
	}
	h.b = nil
	return nil
}

// UserBuffer borrows a caller-supplied region. Release never frees it.
type UserBuffer struct {
	b []byte
}

var _ Buffer = (*UserBuffer)(nil)

// NewUserBuffer wraps p without taking ownership.
func NewUserBuffer(p []byte) *UserBuffer {
	return &UserBuffer{b: p}
}

func (u *UserBuffer) Bytes() []byte  { return u.b }
func (u *UserBuffer) Len() int       { return len(u.b) }
func (u *UserBuffer) Release() error { return nil }

// DefaultAllocator is the allocator Serialize uses when none is configured.
func DefaultAllocator(n int) Buffer { return NewHeapBuffer(n) }

// SerializedInfo is the result of Serialize: an owned buffer and the packed size.
// The caller owns it and must Release it.
type SerializedInfo struct {
	buf  Buffer
	size int
}

// Bytes returns the packed payload.
func (s *SerializedInfo) Bytes() []byte {
	if s.buf == nil {
		return nil
	}
	return s.buf.Bytes()[:s.size]
}

// Size returns the number of packed bytes.
func (s *SerializedInfo) Size() int { return s.size }

// Buffer returns the buffer holding the payload.
func (s *SerializedInfo) Buffer() Buffer { return s.buf }

// Release releases the underlying buffer.
func (s *SerializedInfo) Release() error {
	if s.buf == nil {
		return nil
	}
	err := s.buf.Release()
	s.buf = nil
	return errors.Wrap(err, "serial: release serialized buffer")
}

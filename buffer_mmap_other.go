//go:build !unix

package serial

import (
	"os"

	"github.com/cockroachdb/errors"
)

// MappedFileBuffer keeps a heap image of a file on platforms without mmap.
// A writable buffer writes the image back on Release.
type MappedFileBuffer struct {
	path     string
	data     []byte
	writable bool
	released bool
}

var _ Buffer = (*MappedFileBuffer)(nil)

// NewMappedFileBuffer loads path, or prepares a size-byte image for writing.
func NewMappedFileBuffer(path string, size int, writable bool) (*MappedFileBuffer, error) {
	if writable {
		return &MappedFileBuffer{path: path, data: make([]byte, size), writable: true}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "serial: read %s", path)
	}
	return &MappedFileBuffer{path: path, data: data}, nil
}

func (m *MappedFileBuffer) Bytes() []byte { return m.data }
func (m *MappedFileBuffer) Len() int      { return len(m.data) }
func (m *MappedFileBuffer) Path() string  { return m.path }

func (m *MappedFileBuffer) Release() error {
	if m.released {
		return nil
	}
	m.released = true
	if m.writable {
		if err := os.WriteFile(m.path, m.data, 0o644); err != nil {
			return errors.Wrapf(err, "serial: write %s", m.path)
		}
	}
	m.data = nil
	return nil
}

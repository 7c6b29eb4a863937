//go:build unix

package serial

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// MappedFileBuffer is a buffer backed by a memory-mapped file. It owns the
// mapping and the descriptor; Release syncs the mapping to disk, unmaps it
// and closes the file.
type MappedFileBuffer struct {
	path     string
	file     *os.File
	data     []byte
	size     int
	writable bool
}

var _ Buffer = (*MappedFileBuffer)(nil)

// NewMappedFileBuffer maps path. A writable buffer creates or truncates the
// file to exactly size bytes. A read-only buffer maps the existing file and
// ignores size.
func NewMappedFileBuffer(path string, size int, writable bool) (*MappedFileBuffer, error) {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if writable {
		flag, prot = os.O_RDWR|os.O_CREATE|os.O_TRUNC, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "serial: open %s", path)
	}
	if writable {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "serial: truncate %s to %d bytes", path, size)
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "serial: stat %s", path)
		}
		size = int(info.Size())
	}

	m := &MappedFileBuffer{path: path, file: f, size: size, writable: writable}
	if size == 0 {
		// mmap rejects empty mappings; an empty payload needs no memory.
		return m, nil
	}
	length := Roundup(size, os.Getpagesize())
	if !writable {
		length = size
	}
	data, err := unix.Mmap(int(f.Fd()), 0, length, prot, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "serial: mmap %s", path)
	}
	m.data = data
	return m, nil
}

func (m *MappedFileBuffer) Bytes() []byte {
	if m.data == nil {
		return nil
	}
	return m.data[:m.size]
}

func (m *MappedFileBuffer) Len() int { return m.size }

// Path returns the mapped file's path.
func (m *MappedFileBuffer) Path() string { return m.path }

func (m *MappedFileBuffer) Release() error {
	if m.file == nil {
		return nil
	}
	var errs error
	if m.data != nil {
		if m.writable {
			if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "serial: msync %s", m.path))
			}
		}
		if err := unix.Munmap(m.data); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "serial: munmap %s", m.path))
		}
		m.data = nil
	}
	if err := m.file.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "serial: close %s", m.path))
	}
	m.file = nil
	return errs
}

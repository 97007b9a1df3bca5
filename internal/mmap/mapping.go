package mmap

import (
	"sync/atomic"

	"github.com/hupe1980/rodb/internal/fs"
)

// Mapping represents a memory-mapped file region starting at offset 0.
// It owns the underlying byte slice and is responsible for unmapping it.
//
// A mapping never grows: to extend a file the owner closes the mapping,
// truncates the file and maps it again.
type Mapping struct {
	data     []byte
	writable bool
	closed   atomic.Bool
}

// Map maps the first size bytes of f. Writable mappings are shared, so
// writes through Bytes reach the file.
func Map(f fs.File, size int, writable bool) (*Mapping, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{writable: writable}, nil
	}
	data, err := osMap(f.Fd(), size, writable)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, writable: writable}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return osUnmap(data)
}

// Bytes returns the mapped memory.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Writable reports whether the mapping was created read-write.
func (m *Mapping) Writable() bool {
	return m.writable
}

// Sync flushes dirty pages of a writable mapping to the file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if !m.writable {
		return ErrReadOnly
	}
	if m.data == nil {
		return nil
	}
	return osSync(m.data)
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.data == nil {
		return nil
	}
	return osAdvise(m.data, pattern)
}

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/rodb/internal/fs"
	"github.com/hupe1980/rodb/internal/mmap"
)

const (
	// UnitSize is the width in bytes of one structure property slot.
	UnitSize = 8

	// DefaultPageMultiplier scales the host page size so that file growth
	// amortizes truncate and remap calls.
	DefaultPageMultiplier = 16
)

// DefaultPageSize returns the host memory page size times DefaultPageMultiplier.
func DefaultPageSize() int {
	return os.Getpagesize() * DefaultPageMultiplier
}

// Options configures how a store file is opened.
type Options struct {
	// PageSize is the growth unit of the file. Zero selects DefaultPageSize.
	// It must stay the same for the lifetime of a file.
	PageSize int

	// FS is the file system used to open the file. Nil selects fs.Default.
	FS fs.FileSystem

	// Logger receives growth events at debug level. Nil discards them.
	Logger *slog.Logger

	// RandomAccess advises the kernel that elements are read by offset
	// rather than in file order, which disables read-ahead on the mapping.
	RandomAccess bool
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize()
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// PagedStore is one growable memory-mapped file holding fixed-size elements.
//
// The file is a whole number of pages. After every allocation
// ElementCount*ElementSize*UnitSize < PageCount*PageSize holds, so the
// mapping always covers every element.
type PagedStore struct {
	path        string
	elementSize int // units per element
	unitSize    int // bytes per unit
	opts        Options

	file      fs.File
	mapping   *mmap.Mapping
	data      []byte
	pageCount int
	count     uint64
	readOnly  bool
	opened    bool
}

// NewPagedStore creates a closed store for path with elements of
// elementSize units of unitSize bytes each.
func NewPagedStore(path string, elementSize, unitSize int, opts Options) *PagedStore {
	return &PagedStore{
		path:        path,
		elementSize: elementSize,
		unitSize:    unitSize,
		opts:        opts.withDefaults(),
	}
}

// Open maps the file. A missing file is created unless readOnly is set; an
// empty writable file is grown by one page first.
func (s *PagedStore) Open(readOnly bool) error {
	if s.opened {
		return &DatabaseError{Op: "open", Path: s.path, Err: ErrAlreadyOpen}
	}

	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := s.opts.FS.OpenFile(s.path, flag, 0644)
	if err != nil {
		return &DatabaseError{Op: "open", Path: s.path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return &DatabaseError{Op: "open", Path: s.path, Err: err}
	}

	size := info.Size()
	pageSize := int64(s.opts.PageSize)
	if size%pageSize != 0 {
		_ = f.Close()
		return &DatabaseError{
			Op:   "open",
			Path: s.path,
			Err:  fmt.Errorf("%w: size %d is not a multiple of page size %d", ErrCorrupt, size, pageSize),
		}
	}
	if size == 0 && !readOnly {
		if err := f.Truncate(pageSize); err != nil {
			_ = f.Close()
			return &DatabaseError{Op: "open", Path: s.path, Err: err}
		}
		size = pageSize
	}

	m, err := mmap.Map(f, int(size), !readOnly)
	if err != nil {
		_ = f.Close()
		return &DatabaseError{Op: "open", Path: s.path, Err: err}
	}

	s.file = f
	s.mapping = m
	s.data = m.Bytes()
	s.advise()
	s.pageCount = int(size / pageSize)
	s.count = 0
	s.readOnly = readOnly
	s.opened = true
	return nil
}

// Restore rebinds the durable element count recorded for the file.
func (s *PagedStore) Restore(count uint64) error {
	if !s.opened {
		return ErrNotOpen
	}
	if count > 0 && count*s.elementBytes() >= s.capacity() {
		return &DatabaseError{
			Op:   "restore",
			Path: s.path,
			Err:  fmt.Errorf("%w: %d elements do not fit %d pages", ErrCorrupt, count, s.pageCount),
		}
	}
	s.count = count
	return nil
}

// AllocateElements appends count zeroed elements and returns the offset of
// the first one. The file grows by doubling its page count until the new
// elements fit.
func (s *PagedStore) AllocateElements(count uint64) (uint64, error) {
	if err := s.checkWritable(); err != nil {
		return 0, err
	}
	first := s.count
	if count == 0 {
		return first, nil
	}

	need := (s.count + count) * s.elementBytes()
	if need >= s.capacity() {
		pages := max(s.pageCount, 1)
		for need >= uint64(pages)*uint64(s.opts.PageSize) {
			pages *= 2
		}
		if err := s.grow(pages); err != nil {
			return 0, err
		}
	}
	s.count += count
	return first, nil
}

// advise passes the access hint of the options to the current mapping. The
// hint is advisory, so failures are only logged.
func (s *PagedStore) advise() {
	if !s.opts.RandomAccess {
		return
	}
	if err := s.mapping.Advise(mmap.AccessRandom); err != nil {
		s.opts.Logger.Debug("madvise failed", "path", s.path, "error", err)
	}
}

// grow unmaps the file, extends it to pages pages and maps it again.
func (s *PagedStore) grow(pages int) error {
	oldSize := int64(s.pageCount) * int64(s.opts.PageSize)
	newSize := int64(pages) * int64(s.opts.PageSize)

	if err := s.mapping.Close(); err != nil {
		return &DatabaseError{Op: "grow", Path: s.path, Err: err}
	}
	s.data = nil

	size := newSize
	truncErr := s.file.Truncate(newSize)
	if truncErr != nil {
		size = oldSize
	}

	m, err := mmap.Map(s.file, int(size), true)
	if err != nil {
		s.opened = false
		_ = s.file.Close()
		return &DatabaseError{Op: "grow", Path: s.path, Err: errors.Join(truncErr, err)}
	}
	s.mapping = m
	s.data = m.Bytes()
	s.advise()

	if truncErr != nil {
		return &DatabaseError{Op: "grow", Path: s.path, Err: truncErr}
	}

	s.opts.Logger.Debug("store grown",
		"path", s.path,
		"pages", pages,
		"bytes", newSize,
	)
	s.pageCount = pages
	return nil
}

// Sync flushes the mapping of a writable store to disk.
func (s *PagedStore) Sync() error {
	if !s.opened {
		return ErrNotOpen
	}
	if s.readOnly {
		return nil
	}
	if err := s.mapping.Sync(); err != nil {
		return &DatabaseError{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

// Close unmaps and closes the file. It is idempotent.
func (s *PagedStore) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false

	var errs []error
	if !s.readOnly {
		if err := s.mapping.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.mapping.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, err)
	}
	s.mapping = nil
	s.data = nil
	s.file = nil

	if err := errors.Join(errs...); err != nil {
		return &DatabaseError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// Path returns the file path.
func (s *PagedStore) Path() string { return s.path }

// IsOpen reports whether the store is open.
func (s *PagedStore) IsOpen() bool { return s.opened }

// ReadOnly reports whether the store was opened read-only.
func (s *PagedStore) ReadOnly() bool { return s.readOnly }

// ElementCount returns the number of allocated elements.
func (s *PagedStore) ElementCount() uint64 { return s.count }

// ElementSize returns the number of units per element.
func (s *PagedStore) ElementSize() int { return s.elementSize }

// UnitSize returns the number of bytes per unit.
func (s *PagedStore) UnitSize() int { return s.unitSize }

// PageSize returns the growth unit of the file in bytes.
func (s *PagedStore) PageSize() int { return s.opts.PageSize }

// PageCount returns the number of pages in the file.
func (s *PagedStore) PageCount() int { return s.pageCount }

func (s *PagedStore) elementBytes() uint64 {
	return uint64(s.elementSize) * uint64(s.unitSize)
}

func (s *PagedStore) capacity() uint64 {
	return uint64(s.pageCount) * uint64(s.opts.PageSize)
}

func (s *PagedStore) checkOpen() error {
	if !s.opened {
		return &DatabaseError{Op: "access", Path: s.path, Err: ErrNotOpen}
	}
	return nil
}

func (s *PagedStore) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.readOnly {
		return &DatabaseError{Op: "write", Path: s.path, Err: ErrReadOnly}
	}
	return nil
}

package index

import (
	"context"
	"errors"
	"os"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/fs"
)

// Flat keeps every key of an index in one compressed file that is loaded
// completely on first use.
type Flat struct {
	base
	entries table
}

// NewFlat returns a flat index. Nothing is read until first use.
func NewFlat(cfg Config) *Flat {
	return &Flat{base: base{cfg: cfg.withDefaults()}}
}

func (f *Flat) load() error {
	if f.entries != nil {
		return nil
	}
	data, err := fs.ReadFile(f.cfg.FS, f.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		f.entries = make(table)
		return nil
	}
	if err != nil {
		return err
	}
	t, _, err := f.decode(data)
	if err != nil {
		return err
	}
	f.entries = t
	return nil
}

func (f *Flat) lookup(key any) (*slot, error) {
	k, enc, err := f.prepare(key)
	if err != nil {
		return nil, err
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	s, ok := f.entries[enc]
	if !ok {
		s = &slot{key: k}
		f.entries[enc] = s
	}
	return s, nil
}

// Get returns the elements stored under key.
func (f *Flat) Get(key any) (*collection.Proxy, error) {
	s, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	return f.proxyOf(s)
}

// Put adds e under key.
func (f *Flat) Put(key any, e collection.Element) error {
	s, err := f.lookup(key)
	if err != nil {
		return err
	}
	return f.put(s, e)
}

// Delete removes e from key.
func (f *Flat) Delete(key any, e collection.Element) error {
	s, err := f.lookup(key)
	if err != nil {
		return err
	}
	return f.delete(s, e)
}

// Each calls fn for every non-empty key in key order.
func (f *Flat) Each(fn func(key any, p *collection.Proxy) error) error {
	if f.closed {
		return ErrClosed
	}
	if err := f.load(); err != nil {
		return err
	}
	return f.each(f.entries, fn)
}

// Len returns the number of non-empty keys.
func (f *Flat) Len() (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if err := f.load(); err != nil {
		return 0, err
	}
	return countNonEmpty(f.entries), nil
}

// Save flushes changed keys and rewrites the file if any changed.
func (f *Flat) Save(ctx context.Context) error {
	if f.closed {
		return ErrClosed
	}
	if f.entries == nil {
		return nil
	}
	changed := 0
	for _, s := range f.entries {
		ok, err := f.flush(s)
		if err != nil {
			return err
		}
		if ok {
			changed++
		}
	}
	if changed == 0 {
		return nil
	}

	data, err := f.encode(f.entries)
	if err != nil {
		return err
	}
	if err := f.cfg.Resources.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(f.cfg.FS, f.cfg.Path, data, 0644); err != nil {
		return err
	}
	f.cfg.Logger.Info("index flushed",
		"path", f.cfg.Path,
		"keys", changed,
		"bytes", len(data),
	)
	return nil
}

// Destroy drops every key and removes the file.
func (f *Flat) Destroy() error {
	if f.closed {
		return ErrClosed
	}
	f.entries = make(table)
	if err := f.cfg.FS.Remove(f.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close drops the loaded keys.
func (f *Flat) Close() error {
	f.entries = nil
	f.closed = true
	return nil
}

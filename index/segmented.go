package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/fs"
)

const (
	bucketSuffix = ".bucket"

	// slotOverhead approximates the in-memory cost of one loaded key.
	slotOverhead = 96
)

// segment is one loaded bucket.
type segment struct {
	entries table
	cost    int64
}

func (s *segment) dirty() bool {
	for _, sl := range s.entries {
		if sl.proxy != nil && sl.proxy.Changed() {
			return true
		}
	}
	return false
}

// Segmented spreads the keys of an index over Buckets files inside a
// directory. Buckets are loaded on first access, so a lookup reads a
// single small file. Loaded buckets are charged against the memory budget
// of the resource controller; clean buckets are dropped when the budget
// runs out.
type Segmented struct {
	base
	buckets map[int]*segment
}

// NewSegmented returns a segmented index. Nothing is read until first use.
func NewSegmented(cfg Config) *Segmented {
	return &Segmented{
		base:    base{cfg: cfg.withDefaults()},
		buckets: make(map[int]*segment),
	}
}

func (s *Segmented) bucketPath(i int) string {
	return filepath.Join(s.cfg.Path, fmt.Sprintf("%04d%s", i, bucketSuffix))
}

// segment returns bucket i, loading it if needed.
func (s *Segmented) segment(i int) (*segment, error) {
	if seg, ok := s.buckets[i]; ok {
		return seg, nil
	}

	entries := make(table)
	var cost int64
	data, err := fs.ReadFile(s.cfg.FS, s.bucketPath(i))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		t, n, err := s.decode(data)
		if err != nil {
			return nil, err
		}
		entries = t
		cost = int64(n) + int64(len(t))*slotOverhead
	}

	if err := s.reserve(cost, i); err != nil {
		return nil, fmt.Errorf("load bucket %d of %s: %w", i, s.cfg.Path, err)
	}
	seg := &segment{entries: entries, cost: cost}
	s.buckets[i] = seg
	return seg, nil
}

// reserve charges cost for bucket keep against the memory budget, dropping
// other clean buckets until it fits.
func (s *Segmented) reserve(cost int64, keep int) error {
	err := s.cfg.Resources.AcquireMemory(cost)
	if err == nil {
		return nil
	}
	for i, seg := range s.buckets {
		if i == keep || seg.dirty() {
			continue
		}
		s.release(i, seg)
		if err = s.cfg.Resources.AcquireMemory(cost); err == nil {
			return nil
		}
	}
	return err
}

func (s *Segmented) release(i int, seg *segment) {
	s.cfg.Resources.ReleaseMemory(seg.cost)
	delete(s.buckets, i)
}

func (s *Segmented) lookup(key any) (*slot, error) {
	k, enc, err := s.prepare(key)
	if err != nil {
		return nil, err
	}
	i := Bucket(k, s.cfg.Buckets)
	seg, err := s.segment(i)
	if err != nil {
		return nil, err
	}
	sl, ok := seg.entries[enc]
	if !ok {
		if err := s.reserve(slotOverhead, i); err != nil {
			return nil, fmt.Errorf("grow bucket %d of %s: %w", i, s.cfg.Path, err)
		}
		seg.cost += slotOverhead
		sl = &slot{key: k}
		seg.entries[enc] = sl
	}
	return sl, nil
}

// Get returns the elements stored under key.
func (s *Segmented) Get(key any) (*collection.Proxy, error) {
	sl, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	return s.proxyOf(sl)
}

// Put adds e under key.
func (s *Segmented) Put(key any, e collection.Element) error {
	sl, err := s.lookup(key)
	if err != nil {
		return err
	}
	return s.put(sl, e)
}

// Delete removes e from key.
func (s *Segmented) Delete(key any, e collection.Element) error {
	sl, err := s.lookup(key)
	if err != nil {
		return err
	}
	return s.delete(sl, e)
}

// stored returns the bucket numbers that have a file.
func (s *Segmented) stored() (map[int]bool, error) {
	out := make(map[int]bool)
	entries, err := s.cfg.FS.ReadDir(s.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), bucketSuffix)
		if !ok {
			continue
		}
		if i, err := strconv.Atoi(name); err == nil {
			out[i] = true
		}
	}
	return out, nil
}

// Each calls fn for every non-empty key, bucket by bucket.
func (s *Segmented) Each(fn func(key any, p *collection.Proxy) error) error {
	if s.closed {
		return ErrClosed
	}
	files, err := s.stored()
	if err != nil {
		return err
	}
	for i := range s.cfg.Buckets {
		if _, loaded := s.buckets[i]; !loaded && !files[i] {
			continue
		}
		seg, err := s.segment(i)
		if err != nil {
			return err
		}
		if err := s.each(seg.entries, fn); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of non-empty keys.
func (s *Segmented) Len() (int, error) {
	n := 0
	err := s.Each(func(any, *collection.Proxy) error {
		n++
		return nil
	})
	return n, err
}

// Save flushes changed keys and rewrites the buckets they live in.
func (s *Segmented) Save(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	written := 0
	for i, seg := range s.buckets {
		changed := false
		for _, sl := range seg.entries {
			ok, err := s.flush(sl)
			if err != nil {
				return err
			}
			changed = changed || ok
		}
		if !changed {
			continue
		}
		if err := s.writeBucket(ctx, i, seg); err != nil {
			return err
		}
		written++
	}
	if written > 0 {
		s.cfg.Logger.Info("index flushed",
			"path", s.cfg.Path,
			"buckets", written,
		)
	}
	return nil
}

func (s *Segmented) writeBucket(ctx context.Context, i int, seg *segment) error {
	path := s.bucketPath(i)
	if countNonEmpty(seg.entries) == 0 {
		if err := s.cfg.FS.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	data, err := s.encode(seg.entries)
	if err != nil {
		return err
	}
	if err := s.cfg.Resources.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	if err := s.cfg.FS.MkdirAll(s.cfg.Path, 0755); err != nil {
		return err
	}
	return fs.WriteFileAtomic(s.cfg.FS, path, data, 0644)
}

// Destroy drops every key and removes the directory.
func (s *Segmented) Destroy() error {
	if s.closed {
		return ErrClosed
	}
	s.releaseAll()
	return s.cfg.FS.RemoveAll(s.cfg.Path)
}

// Close drops the loaded buckets and returns their memory.
func (s *Segmented) Close() error {
	if s.closed {
		return nil
	}
	s.releaseAll()
	s.closed = true
	return nil
}

func (s *Segmented) releaseAll() {
	for i, seg := range s.buckets {
		s.release(i, seg)
	}
}

// Loaded returns the number of buckets in memory.
func (s *Segmented) Loaded() int { return len(s.buckets) }

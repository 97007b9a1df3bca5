package index

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/boltdb/bolt"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/storage"
)

var entriesBucket = []byte("entries")

// Hash keeps the keys of an index in a bolt B+tree file. Each value is the
// (offset, count) of the key's collection, so lookups touch only the pages
// of one key.
type Hash struct {
	base
	db     *bolt.DB // nil for a missing file opened read-only
	loaded table
}

// OpenHash opens or creates the index file. A missing file opened
// read-only behaves as an empty index.
func OpenHash(cfg Config) (*Hash, error) {
	h := &Hash{base: base{cfg: cfg.withDefaults()}, loaded: make(table)}
	if err := h.open(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hash) open() error {
	if h.cfg.ReadOnly {
		if _, err := h.cfg.FS.Stat(h.cfg.Path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	db, err := bolt.Open(h.cfg.Path, 0644, &bolt.Options{
		ReadOnly: h.cfg.ReadOnly,
		Timeout:  time.Second,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", h.cfg.Path, err)
	}
	if !h.cfg.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(entriesBucket)
			return err
		})
		if err != nil {
			_ = db.Close()
			return err
		}
	}
	h.db = db
	return nil
}

func encodeValue(offset uint64, count int) []byte {
	v := binary.LittleEndian.AppendUint64(nil, offset)
	return binary.LittleEndian.AppendUint64(v, uint64(count))
}

func decodeValue(v []byte) (uint64, int, error) {
	if len(v) != 16 {
		return 0, 0, fmt.Errorf("%w: index value of %d bytes", storage.ErrCorrupt, len(v))
	}
	return binary.LittleEndian.Uint64(v), int(binary.LittleEndian.Uint64(v[8:])), nil
}

// view runs fn inside a read transaction on the entries bucket. Missing
// databases and buckets are skipped.
func (h *Hash) view(fn func(b *bolt.Bucket) error) error {
	if h.db == nil {
		return nil
	}
	return h.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (h *Hash) lookup(key any) (*slot, error) {
	k, enc, err := h.prepare(key)
	if err != nil {
		return nil, err
	}
	if s, ok := h.loaded[enc]; ok {
		return s, nil
	}
	s := &slot{key: k}
	err = h.view(func(b *bolt.Bucket) error {
		v := b.Get([]byte(enc))
		if v == nil {
			return nil
		}
		var derr error
		s.offset, s.count, derr = decodeValue(v)
		return derr
	})
	if err != nil {
		return nil, err
	}
	h.loaded[enc] = s
	return s, nil
}

// Get returns the elements stored under key.
func (h *Hash) Get(key any) (*collection.Proxy, error) {
	s, err := h.lookup(key)
	if err != nil {
		return nil, err
	}
	return h.proxyOf(s)
}

// Put adds e under key.
func (h *Hash) Put(key any, e collection.Element) error {
	s, err := h.lookup(key)
	if err != nil {
		return err
	}
	return h.put(s, e)
}

// Delete removes e from key.
func (h *Hash) Delete(key any, e collection.Element) error {
	s, err := h.lookup(key)
	if err != nil {
		return err
	}
	return h.delete(s, e)
}

// Each calls fn for every non-empty key in key order. Stored keys are read
// from the file on every call; keys touched in memory take precedence.
func (h *Hash) Each(fn func(key any, p *collection.Proxy) error) error {
	if h.closed {
		return ErrClosed
	}
	all := make(table, len(h.loaded))
	for k, s := range h.loaded {
		all[k] = s
	}
	err := h.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if _, ok := all[string(k)]; ok {
				return nil
			}
			key, err := DecodeKey(k)
			if err != nil {
				return err
			}
			offset, count, err := decodeValue(v)
			if err != nil {
				return err
			}
			all[string(k)] = &slot{key: key, offset: offset, count: count}
			return nil
		})
	})
	if err != nil {
		return err
	}
	return h.each(all, fn)
}

// Len returns the number of non-empty keys.
func (h *Hash) Len() (int, error) {
	n := 0
	err := h.Each(func(any, *collection.Proxy) error {
		n++
		return nil
	})
	return n, err
}

// Save flushes changed keys and writes them in one transaction.
func (h *Hash) Save(ctx context.Context) error {
	if h.closed {
		return ErrClosed
	}
	var changed []string
	for k, s := range h.loaded {
		ok, err := h.flush(s)
		if err != nil {
			return err
		}
		if ok {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if h.db == nil {
		return storage.ErrReadOnly
	}
	slices.Sort(changed)

	if err := h.cfg.Resources.AcquireIO(ctx, len(changed)*32); err != nil {
		return err
	}
	err := h.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		for _, k := range changed {
			s := h.loaded[k]
			if s.count == 0 {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), encodeValue(s.offset, s.count)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.cfg.Logger.Info("index flushed",
		"path", h.cfg.Path,
		"keys", len(changed),
	)
	return nil
}

// Destroy drops every key and recreates an empty file.
func (h *Hash) Destroy() error {
	if h.closed {
		return ErrClosed
	}
	if h.cfg.ReadOnly {
		return storage.ErrReadOnly
	}
	h.loaded = make(table)
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			return err
		}
		h.db = nil
	}
	if err := h.cfg.FS.Remove(h.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return h.open()
}

// Close closes the file.
func (h *Hash) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.loaded = nil
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/hupe1980/rodb/codec"
	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/compress"
	"github.com/hupe1980/rodb/internal/fs"
	"github.com/hupe1980/rodb/internal/resource"
	"github.com/hupe1980/rodb/storage"
)

// ErrClosed is returned when using a closed index.
var ErrClosed = errors.New("index is closed")

// Index is a persistent multimap from property values to the elements
// holding them. The elements of one key are kept as a collection proxy in
// the owning container's indirection store.
//
// Proxies returned by Get and Each are views; edit an index through Put
// and Delete so the change is tracked.
type Index interface {
	// Get returns the elements stored under key. An absent key yields an
	// empty proxy.
	Get(key any) (*collection.Proxy, error)

	// Put adds e under key.
	Put(key any, e collection.Element) error

	// Delete removes the first occurrence of e under key.
	Delete(key any, e collection.Element) error

	// Each calls fn for every non-empty key. Iteration re-reads the
	// backing files and can be repeated.
	Each(fn func(key any, p *collection.Proxy) error) error

	// Len returns the number of non-empty keys.
	Len() (int, error)

	// Save writes changed proxies to the indirection store and then the
	// key map to disk.
	Save(ctx context.Context) error

	// Destroy removes every entry and the backing files.
	Destroy() error

	// Close releases memory and file handles without saving.
	Close() error
}

// Config configures an index.
type Config struct {
	// Path is the index file, or directory for segmented indexes.
	Path string

	// Joins is the monomorphic indirection store of the indexed container.
	Joins *storage.JoinStore

	// Resolver materializes indexed elements.
	Resolver collection.Resolver

	// TypeName is the resource of the indexed elements.
	TypeName string

	ReadOnly bool

	// FS is used by file based variants. Nil selects fs.Default.
	FS fs.FileSystem

	// Codec encodes key maps. Nil selects codec.Default.
	Codec codec.Codec

	// Compression is applied to key map files.
	Compression compress.Type

	// Buckets is the bucket count of segmented indexes.
	Buckets int

	// Resources accounts loaded buckets and throttles flushes. May be nil.
	Resources *resource.Controller

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.FS == nil {
		c.FS = fs.Default
	}
	if c.Codec == nil {
		c.Codec = codec.Default
	}
	if c.Buckets <= 0 {
		c.Buckets = DefaultBuckets
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// slot is one key with its stored collection region.
type slot struct {
	key    any
	offset uint64
	count  int
	proxy  *collection.Proxy
}

// size returns the current number of elements under the key.
func (s *slot) size() int {
	if s.proxy != nil {
		return s.proxy.Len()
	}
	return s.count
}

// table maps encoded keys to slots.
type table map[string]*slot

func (t table) sortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// record is the file form of one slot.
type record struct {
	Key    []byte `json:"k"`
	Offset uint64 `json:"o"`
	Count  int    `json:"c"`
}

// base holds what every variant shares.
type base struct {
	cfg    Config
	closed bool
}

func (b *base) prepare(key any) (any, string, error) {
	if b.closed {
		return nil, "", ErrClosed
	}
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, "", err
	}
	enc, err := EncodeKey(k)
	if err != nil {
		return nil, "", err
	}
	return k, string(enc), nil
}

func (b *base) proxyOf(s *slot) (*collection.Proxy, error) {
	if s.proxy == nil {
		p, err := collection.New(b.cfg.Joins, b.cfg.Resolver, b.cfg.TypeName, s.offset, s.count)
		if err != nil {
			return nil, err
		}
		s.proxy = p
	}
	return s.proxy, nil
}

// flush saves the proxy of s if it changed and reports whether it did.
func (b *base) flush(s *slot) (bool, error) {
	if s.proxy == nil || !s.proxy.Changed() {
		return false, nil
	}
	off, err := s.proxy.Save()
	if err != nil {
		return false, err
	}
	s.offset, s.count = off, s.proxy.Len()
	return true, nil
}

func (b *base) put(s *slot, e collection.Element) error {
	p, err := b.proxyOf(s)
	if err != nil {
		return err
	}
	return p.Append(e)
}

func (b *base) delete(s *slot, e collection.Element) error {
	p, err := b.proxyOf(s)
	if err != nil {
		return err
	}
	_, err = p.Delete(e)
	return err
}

// encode serializes the non-empty slots of t.
func (b *base) encode(t table) ([]byte, error) {
	records := make([]record, 0, len(t))
	for _, k := range t.sortedKeys() {
		s := t[k]
		if s.count == 0 {
			continue
		}
		records = append(records, record{Key: []byte(k), Offset: s.offset, Count: s.count})
	}
	data, err := b.cfg.Codec.Marshal(records)
	if err != nil {
		return nil, err
	}
	return compress.Encode(b.cfg.Compression, data)
}

// decode parses a file written by encode and returns the decoded size.
func (b *base) decode(block []byte) (table, int, error) {
	data, err := compress.Decode(block)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", b.cfg.Path, err)
	}
	var records []record
	if err := b.cfg.Codec.Unmarshal(data, &records); err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", storage.ErrDatabase, b.cfg.Path, err)
	}
	t := make(table, len(records))
	for _, r := range records {
		k, err := DecodeKey(r.Key)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", b.cfg.Path, err)
		}
		t[string(r.Key)] = &slot{key: k, offset: r.Offset, count: r.Count}
	}
	return t, len(data), nil
}

// each calls fn for the non-empty slots of t in key order.
func (b *base) each(t table, fn func(key any, p *collection.Proxy) error) error {
	for _, k := range t.sortedKeys() {
		s := t[k]
		if s.size() == 0 {
			continue
		}
		p, err := b.proxyOf(s)
		if err != nil {
			return err
		}
		if err := fn(s.key, p); err != nil {
			return err
		}
	}
	return nil
}

func countNonEmpty(t table) int {
	n := 0
	for _, s := range t {
		if s.size() > 0 {
			n++
		}
	}
	return n
}

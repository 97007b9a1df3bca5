package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/compress"
	"github.com/hupe1980/rodb/internal/fs"
	"github.com/hupe1980/rodb/internal/resource"
	"github.com/hupe1980/rodb/storage"
)

type testElem struct{ id uint64 }

func (e *testElem) ID() uint64                       { return e.id }
func (e *testElem) TypeName() string                 { return "person" }
func (e *testElem) Defer(u collection.Update) func() { return func() {} }

type testResolver struct {
	elems map[uint64]*testElem
}

func newTestResolver(n int) *testResolver {
	r := &testResolver{elems: make(map[uint64]*testElem)}
	for i := 1; i <= n; i++ {
		r.elems[uint64(i)] = &testElem{id: uint64(i)}
	}
	return r
}

func (r *testResolver) Resolve(typeID, id uint64) (collection.Element, error) {
	e, ok := r.elems[id]
	if !ok {
		return nil, fmt.Errorf("person %d not found", id)
	}
	return e, nil
}

func (r *testResolver) TypeID(name string) (uint64, error) {
	if name != "person" {
		return 0, fmt.Errorf("unknown resource %q", name)
	}
	return 1, nil
}

type fixture struct {
	dir      string
	joins    *storage.JoinStore
	resolver *testResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	joins := storage.NewJoinStore(filepath.Join(dir, "person.joins"), storage.Options{PageSize: os.Getpagesize()})
	require.NoError(t, joins.Open(false))
	t.Cleanup(func() { _ = joins.Close() })
	return &fixture{dir: dir, joins: joins, resolver: newTestResolver(100)}
}

func (f *fixture) config(name string) Config {
	return Config{
		Path:     filepath.Join(f.dir, name),
		Joins:    f.joins,
		Resolver: f.resolver,
		TypeName: "person",
		Buckets:  17,
	}
}

type variant struct {
	name string
	open func(t *testing.T, cfg Config) Index
}

var variants = []variant{
	{"flat", func(t *testing.T, cfg Config) Index { return NewFlat(cfg) }},
	{"flat_zstd", func(t *testing.T, cfg Config) Index {
		cfg.Compression = compress.ZSTD
		return NewFlat(cfg)
	}},
	{"segmented", func(t *testing.T, cfg Config) Index { return NewSegmented(cfg) }},
	{"segmented_lz4", func(t *testing.T, cfg Config) Index {
		cfg.Compression = compress.LZ4
		return NewSegmented(cfg)
	}},
	{"hash", func(t *testing.T, cfg Config) Index {
		h, err := OpenHash(cfg)
		require.NoError(t, err)
		return h
	}},
	{"hash_snappy", func(t *testing.T, cfg Config) Index {
		cfg.Compression = compress.Snappy
		h, err := OpenHash(cfg)
		require.NoError(t, err)
		return h
	}},
}

func ids(t *testing.T, p *collection.Proxy) []uint64 {
	t.Helper()
	out, err := p.IDs()
	require.NoError(t, err)
	return out
}

func TestIndex_PutGetPersist(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := f.config("person.city.idx")
			idx := v.open(t, cfg)

			cities := []any{"berlin", "paris", "rome"}
			for id := uint64(1); id <= 30; id++ {
				require.NoError(t, idx.Put(cities[id%3], f.resolver.elems[id]))
			}
			require.NoError(t, idx.Put(nil, f.resolver.elems[31]))

			p, err := idx.Get("paris")
			require.NoError(t, err)
			assert.Equal(t, 10, p.Len())

			n, err := idx.Len()
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			require.NoError(t, idx.Save(context.Background()))
			require.NoError(t, idx.Close())

			reopened := v.open(t, cfg)
			defer reopened.Close()

			p, err = reopened.Get("paris")
			require.NoError(t, err)
			assert.Equal(t, []uint64{2, 5, 8, 11, 14, 17, 20, 23, 26, 29}, ids(t, p))

			p, err = reopened.Get(nil)
			require.NoError(t, err)
			assert.Equal(t, []uint64{31}, ids(t, p))

			p, err = reopened.Get("madrid")
			require.NoError(t, err)
			assert.Equal(t, 0, p.Len())

			var keys []any
			require.NoError(t, reopened.Each(func(key any, p *collection.Proxy) error {
				keys = append(keys, key)
				return nil
			}))
			assert.ElementsMatch(t, []any{nil, "berlin", "paris", "rome"}, keys)

			// Each is restartable.
			n, err = reopened.Len()
			require.NoError(t, err)
			assert.Equal(t, 4, n)
		})
	}
}

func TestIndex_DeleteUpdatesCounts(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := f.config("person.age.idx")
			idx := v.open(t, cfg)

			for id := uint64(1); id <= 5; id++ {
				require.NoError(t, idx.Put(int64(40), f.resolver.elems[id]))
			}
			require.NoError(t, idx.Put(int64(41), f.resolver.elems[6]))
			require.NoError(t, idx.Save(context.Background()))

			// Moving element 3 from 40 to 41.
			require.NoError(t, idx.Delete(40, f.resolver.elems[3]))
			require.NoError(t, idx.Put(41, f.resolver.elems[3]))
			// Emptying key 41 of its first element and then everything.
			require.NoError(t, idx.Save(context.Background()))

			p, err := idx.Get(int64(40))
			require.NoError(t, err)
			assert.Equal(t, []uint64{1, 2, 4, 5}, ids(t, p))
			p, err = idx.Get(41)
			require.NoError(t, err)
			assert.Equal(t, []uint64{6, 3}, ids(t, p))

			require.NoError(t, idx.Delete(41, f.resolver.elems[6]))
			require.NoError(t, idx.Delete(41, f.resolver.elems[3]))
			require.NoError(t, idx.Save(context.Background()))
			require.NoError(t, idx.Close())

			reopened := v.open(t, cfg)
			defer reopened.Close()
			n, err := reopened.Len()
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			p, err = reopened.Get(40)
			require.NoError(t, err)
			assert.Equal(t, 4, p.Len())
		})
	}
}

func TestIndex_Destroy(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := f.config("person.tag.idx")
			idx := v.open(t, cfg)

			require.NoError(t, idx.Put("a", f.resolver.elems[1]))
			require.NoError(t, idx.Save(context.Background()))
			require.NoError(t, idx.Destroy())

			n, err := idx.Len()
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			require.NoError(t, idx.Close())

			reopened := v.open(t, cfg)
			defer reopened.Close()
			n, err = reopened.Len()
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestIndex_ReadOnlyMissing(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture(t)
			cfg := f.config("person.none.idx")
			cfg.ReadOnly = true
			idx := v.open(t, cfg)
			defer idx.Close()

			p, err := idx.Get("x")
			require.NoError(t, err)
			assert.Equal(t, 0, p.Len())
			n, err := idx.Len()
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestIndex_Closed(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := newFixture(t)
			idx := v.open(t, f.config("person.closed.idx"))
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close())

			_, err := idx.Get("x")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, idx.Each(func(any, *collection.Proxy) error { return nil }), ErrClosed)
			assert.ErrorIs(t, idx.Save(context.Background()), ErrClosed)
		})
	}
}

func TestIndex_InvalidKey(t *testing.T) {
	f := newFixture(t)
	idx := NewFlat(f.config("person.bad.idx"))
	assert.ErrorIs(t, idx.Put([]int{1}, f.resolver.elems[1]), ErrInvalidKey)
}

func TestSegmented_LazyBuckets(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("person.n.idx")
	idx := NewSegmented(cfg)

	for id := uint64(1); id <= 34; id++ {
		require.NoError(t, idx.Put(int64(id), f.resolver.elems[id]))
	}
	require.NoError(t, idx.Save(context.Background()))
	require.NoError(t, idx.Close())

	entries, err := os.ReadDir(cfg.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 17)

	reopened := NewSegmented(cfg)
	defer reopened.Close()
	p, err := reopened.Get(int64(18))
	require.NoError(t, err)
	assert.Equal(t, []uint64{18}, ids(t, p))
	assert.Equal(t, 1, reopened.Loaded())
}

func TestSegmented_MemoryBudget(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("person.m.idx")
	idx := NewSegmented(cfg)
	for id := uint64(1); id <= 17; id++ {
		require.NoError(t, idx.Put(int64(id), f.resolver.elems[id]))
	}
	require.NoError(t, idx.Save(context.Background()))
	require.NoError(t, idx.Close())

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 400})
	cfg.Resources = rc
	limited := NewSegmented(cfg)
	defer limited.Close()

	for id := int64(1); id <= 17; id++ {
		p, err := limited.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Len())
		assert.LessOrEqual(t, rc.MemoryUsage(), int64(400))
	}
	assert.Less(t, limited.Loaded(), 17)

	n, err := limited.Len()
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	require.NoError(t, limited.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestSegmented_ChargesNewKeys(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("person.grow.idx")
	rc := resource.NewController(resource.Config{})
	cfg.Resources = rc
	idx := NewSegmented(cfg)

	for id := uint64(1); id <= 17; id++ {
		require.NoError(t, idx.Put(int64(id), f.resolver.elems[id]))
	}
	assert.GreaterOrEqual(t, rc.MemoryUsage(), int64(17*slotOverhead))

	// Known keys cost nothing more.
	before := rc.MemoryUsage()
	require.NoError(t, idx.Put(int64(1), f.resolver.elems[18]))
	assert.Equal(t, before, rc.MemoryUsage())

	require.NoError(t, idx.Close())
	assert.Zero(t, rc.MemoryUsage())

	limited := cfg
	limited.Path = filepath.Join(f.dir, "person.tight.idx")
	limited.Resources = resource.NewController(resource.Config{MemoryLimitBytes: 2 * slotOverhead})
	tight := NewSegmented(limited)
	defer tight.Close()
	require.NoError(t, tight.Put(int64(1), f.resolver.elems[1]))
	require.NoError(t, tight.Put(int64(2), f.resolver.elems[2]))
	assert.ErrorIs(t, tight.Put(int64(3), f.resolver.elems[3]), resource.ErrMemoryLimitExceeded)
}

func TestHash_UsesFileSystem(t *testing.T) {
	f := newFixture(t)
	faulty := fs.NewFaultyFS(fs.Default)
	cfg := f.config("person.faulty.idx")
	cfg.FS = faulty

	h, err := OpenHash(cfg)
	require.NoError(t, err)
	defer h.Close()
	require.NoError(t, h.Put("a", f.resolver.elems[1]))
	require.NoError(t, h.Save(context.Background()))

	faulty.AddRule("person.faulty.idx", fs.Fault{FailAfterBytes: -1, FailOnRemove: true})
	require.ErrorIs(t, h.Destroy(), fs.ErrInjected)
	_, err = os.Stat(cfg.Path)
	require.NoError(t, err)

	faulty.ClearRules()
	require.NoError(t, h.Destroy())
	n, err := h.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlat_CorruptFile(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("person.corrupt.idx")
	require.NoError(t, os.WriteFile(cfg.Path, []byte("garbage!!garbage"), 0644))

	idx := NewFlat(cfg)
	_, err := idx.Get("x")
	assert.Error(t, err)
}

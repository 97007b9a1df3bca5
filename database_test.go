package rodb_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rodb"
	"github.com/hupe1980/rodb/codec"
	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/fs"
	"github.com/hupe1980/rodb/schema"
)

type bookMeta struct {
	Pages int      `json:"pages"`
	Tags  []string `json:"tags"`
}

func library() []schema.Resource {
	return []schema.Resource{
		schema.NewResource("author",
			schema.Field("name", schema.String).Indexed(schema.HashIndex),
			schema.Field("born", schema.Integer)),
		schema.NewResource("book",
			schema.Field("title", schema.String),
			schema.Field("year", schema.Integer).Indexed(schema.SegmentedIndex),
			schema.Field("price", schema.Float),
			schema.Field("copies", schema.ULong),
			schema.Field("meta", schema.Object),
			schema.Singular("author", "author").Indexed(schema.FlatIndex),
			schema.PolymorphicSingular("featured"),
			schema.Plural("sequels", "book"),
			schema.PolymorphicPlural("related")),
		schema.NewResource("shelf",
			schema.Field("label", schema.String),
			schema.Plural("books", "book").Indexed(schema.FlatIndex)),
	}
}

func testOptions(opts ...rodb.Option) []rodb.Option {
	return append([]rodb.Option{rodb.WithPageMultiplier(1), rodb.WithBuckets(17)}, opts...)
}

func create(t *testing.T, dir string, opts ...rodb.Option) *rodb.Database {
	t.Helper()
	db, err := rodb.Create(dir, library(), testOptions(opts...)...)
	require.NoError(t, err)
	return db
}

func open(t *testing.T, dir string, opts ...rodb.Option) *rodb.Database {
	t.Helper()
	db, err := rodb.Open(dir, library(), testOptions(opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newObject(t *testing.T, db *rodb.Database, resource string, fields map[string]any) *rodb.Object {
	t.Helper()
	o, err := db.New(resource)
	require.NoError(t, err)
	for name, v := range fields {
		require.NoError(t, o.Set(name, v))
	}
	return o
}

func stored(t *testing.T, db *rodb.Database, resource string, fields map[string]any) *rodb.Object {
	t.Helper()
	o := newObject(t, db, resource, fields)
	require.NoError(t, db.Save(o))
	return o
}

func proxyIDs(t *testing.T, p *collection.Proxy) []uint64 {
	t.Helper()
	ids, err := p.IDs()
	require.NoError(t, err)
	return ids
}

func TestDatabase_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir)

	author := stored(t, db, "author", map[string]any{"name": "Lem", "born": 1921})
	assert.Equal(t, uint64(1), author.ID())

	meta := bookMeta{Pages: 204, Tags: []string{"sf"}}
	book := newObject(t, db, "book", map[string]any{
		"title":  "Solaris",
		"year":   1961,
		"price":  9.5,
		"copies": uint(3),
		"meta":   meta,
	})
	require.NoError(t, book.SetRef("author", author))
	require.NoError(t, db.Save(book))
	assert.Equal(t, uint64(1), book.ID())
	require.NoError(t, db.Close())

	db = open(t, dir, rodb.WithReadOnly())
	loaded, err := db.Load("book", 1)
	require.NoError(t, err)

	title, err := loaded.String("title")
	require.NoError(t, err)
	assert.Equal(t, "Solaris", title)
	year, err := loaded.Int("year")
	require.NoError(t, err)
	assert.Equal(t, int64(1961), year)
	price, err := loaded.Float("price")
	require.NoError(t, err)
	assert.Equal(t, 9.5, price)
	copies, err := loaded.ULong("copies")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), copies)

	var got bookMeta
	require.NoError(t, loaded.Decode("meta", &got))
	assert.Equal(t, meta, got)

	a, err := loaded.Ref("author")
	require.NoError(t, err)
	require.NotNil(t, a)
	name, err := a.String("name")
	require.NoError(t, err)
	assert.Equal(t, "Lem", name)

	again, err := db.Load("author", 1)
	require.NoError(t, err)
	assert.Same(t, a, again)

	books, err := db.Container("book")
	require.NoError(t, err)
	assert.Equal(t, 1, books.Count())
	encoded, err := codec.Default.Marshal(meta)
	require.NoError(t, err)
	encoded, err = codec.Canonical(codec.Default, encoded)
	require.NoError(t, err)
	assert.Equal(t, uint64(len("Solaris")+len(encoded)), books.ByteCount())

	featured, err := loaded.Ref("featured")
	require.NoError(t, err)
	assert.Nil(t, featured)
}

func TestDatabase_UnsetFields(t *testing.T) {
	db := create(t, t.TempDir())
	defer db.Close()

	book := newObject(t, db, "book", nil)
	v, err := book.Get("year")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, db.Save(book))
	title, err := book.String("title")
	require.NoError(t, err)
	assert.Empty(t, title)
	meta, err := book.Get("meta")
	require.NoError(t, err)
	assert.Nil(t, meta)

	var m bookMeta
	require.NoError(t, book.Decode("meta", &m))
	assert.Zero(t, m)
}

func TestDatabase_CreateExisting(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir)
	require.NoError(t, db.Close())

	_, err := rodb.Create(dir, library(), testOptions()...)
	require.ErrorIs(t, err, rodb.ErrExists)
	assert.ErrorIs(t, err, rodb.ErrDatabase)
}

func TestDatabase_OpenMissing(t *testing.T) {
	_, err := rodb.Open(t.TempDir(), library())
	require.ErrorIs(t, err, rodb.ErrNotFound)
}

func TestDatabase_IncompatibleSchema(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir)
	require.NoError(t, db.Close())

	changed := library()
	changed[0] = schema.NewResource("author",
		schema.Field("name", schema.String).Indexed(schema.HashIndex),
		schema.Field("born", schema.Float))

	_, err := rodb.Open(dir, changed, testOptions()...)
	require.ErrorIs(t, err, rodb.ErrIncompatibleSchema)
	assert.ErrorIs(t, err, rodb.ErrDatabase)

	extra := append(library(), schema.NewResource("reader", schema.Field("name", schema.String)))
	_, err = rodb.Open(dir, extra, testOptions()...)
	require.ErrorIs(t, err, rodb.ErrIncompatibleSchema)

	// The failed opens released every store.
	db = open(t, dir)
	assert.Equal(t, 3, db.Registry().Len())
}

func TestDatabase_CodecRecorded(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir, rodb.WithCodec(codec.JSON{}))
	stored(t, db, "book", map[string]any{"meta": bookMeta{Pages: 1}})
	require.NoError(t, db.Close())

	_, err := rodb.Open(dir, library(), testOptions(rodb.WithCodec(codec.GoJSON{}))...)
	require.ErrorIs(t, err, rodb.ErrIncompatibleSchema)

	db = open(t, dir, rodb.WithReadOnly())
	book, err := db.Load("book", 1)
	require.NoError(t, err)
	var got bookMeta
	require.NoError(t, book.Decode("meta", &got))
	assert.Equal(t, 1, got.Pages)
}

func TestDatabase_InvalidOptions(t *testing.T) {
	_, err := rodb.Create(t.TempDir(), library(), rodb.WithIndexCompression("brotli"))
	require.ErrorIs(t, err, rodb.ErrInvalidArgument)

	bad := []schema.Resource{schema.NewResource("_hidden")}
	_, err = rodb.Create(t.TempDir(), bad)
	require.ErrorIs(t, err, rodb.ErrInvalidArgument)
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
}

func TestDatabase_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir)
	stored(t, db, "author", map[string]any{"name": "Le Guin"})
	require.NoError(t, db.Close())

	db = open(t, dir, rodb.WithReadOnly())
	assert.True(t, db.ReadOnly())

	a, err := db.Load("author", 1)
	require.NoError(t, err)
	require.NoError(t, a.Set("name", "Ursula"))
	err = db.Save(a)
	require.ErrorIs(t, err, rodb.ErrReadOnly)
	assert.ErrorIs(t, err, rodb.ErrDatabase)
	assert.NotErrorIs(t, err, rodb.ErrNotOpen)

	_, err = db.New("author")
	require.NoError(t, err)
	require.ErrorIs(t, db.Save(newObject(t, db, "author", nil)), rodb.ErrReadOnly)
	require.ErrorIs(t, db.Flush(t.Context()), rodb.ErrReadOnly)
	require.NoError(t, db.Close())
}

func TestDatabase_Closed(t *testing.T) {
	db := create(t, t.TempDir())
	a := stored(t, db, "author", map[string]any{"name": "Tolkien"})
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.Load("author", 1)
	require.ErrorIs(t, err, rodb.ErrNotOpen)
	assert.NotErrorIs(t, err, rodb.ErrDatabase)
	require.ErrorIs(t, db.Save(a), rodb.ErrNotOpen)
	require.ErrorIs(t, db.Flush(t.Context()), rodb.ErrNotOpen)
}

func TestDatabase_LoadErrors(t *testing.T) {
	db := create(t, t.TempDir())
	defer db.Close()
	stored(t, db, "author", nil)

	_, err := db.Load("author", 0)
	require.ErrorIs(t, err, rodb.ErrNotFound)
	_, err = db.Load("author", 2)
	require.ErrorIs(t, err, rodb.ErrNotFound)
	_, err = db.Load("reader", 1)
	require.ErrorIs(t, err, rodb.ErrUnknownResource)
	_, err = db.New("reader")
	require.ErrorIs(t, err, rodb.ErrUnknownResource)
}

func TestDatabase_FlushMakesCountsDurable(t *testing.T) {
	// Hash indexes lock their file, so a reader next to a writer only works
	// for flat and segmented indexes.
	notes := []schema.Resource{
		schema.NewResource("note",
			schema.Field("text", schema.String).Indexed(schema.FlatIndex)),
	}
	dir := t.TempDir()
	db, err := rodb.Create(dir, notes, testOptions()...)
	require.NoError(t, err)
	n, err := db.New("note")
	require.NoError(t, err)
	require.NoError(t, n.Set("text", "remember the milk"))
	require.NoError(t, db.Save(n))

	before, err := rodb.Open(dir, notes, testOptions(rodb.WithReadOnly())...)
	require.NoError(t, err)
	c, err := before.Container("note")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count())
	require.NoError(t, before.Close())

	require.NoError(t, db.Flush(t.Context()))

	after, err := rodb.Open(dir, notes, testOptions(rodb.WithReadOnly())...)
	require.NoError(t, err)
	c, err = after.Container("note")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())
	p, err := c.FindBy("text", "remember the milk")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, proxyIDs(t, p))
	require.NoError(t, after.Close())

	require.NoError(t, db.Close())
}

func TestDatabase_Metrics(t *testing.T) {
	metrics := &rodb.BasicMetricsCollector{}
	db := create(t, t.TempDir(), rodb.WithMetricsCollector(metrics))

	a := stored(t, db, "author", map[string]any{"name": "Asimov"})
	stored(t, db, "author", map[string]any{"name": "Clarke"})
	_, err := db.Load("author", a.ID())
	require.NoError(t, err)
	_, err = db.Load("author", 9)
	require.Error(t, err)
	authors, err := db.Container("author")
	require.NoError(t, err)
	_, err = authors.FindBy("name", "Asimov")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.SaveCount)
	assert.Zero(t, stats.SaveErrors)
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(1), stats.LoadCacheHits)
	assert.Equal(t, int64(1), stats.LoadErrors)
	assert.Equal(t, int64(1), stats.LookupCount)
	assert.Equal(t, int64(1), stats.FlushCount)
}

func TestDatabase_IndexCompression(t *testing.T) {
	for _, name := range []string{"snappy", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			db := create(t, dir, rodb.WithIndexCompression(name))
			for i := range 20 {
				stored(t, db, "book", map[string]any{"year": 1990 + i%4})
			}
			require.NoError(t, db.Close())

			db = open(t, dir, rodb.WithIndexCompression(name), rodb.WithReadOnly())
			books, err := db.Container("book")
			require.NoError(t, err)
			p, err := books.FindBy("year", 1991)
			require.NoError(t, err)
			assert.Equal(t, []uint64{2, 6, 10, 14, 18}, proxyIDs(t, p))
		})
	}
}

func TestDatabase_FaultOnGrow(t *testing.T) {
	faulty := fs.NewFaultyFS(fs.Default)
	db := create(t, t.TempDir(), rodb.WithFileSystem(faulty))
	faulty.AddRule("book.structures", fs.Fault{FailAfterBytes: -1, FailOnTruncate: true})

	var err error
	for range 200 {
		if err = db.Save(newObject(t, db, "book", nil)); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, fs.ErrInjected)

	books, cerr := db.Container("book")
	require.NoError(t, cerr)
	assert.Less(t, books.Count(), 200)
	require.NoError(t, db.Close())
}

func TestDatabase_FaultOnOpen(t *testing.T) {
	dir := t.TempDir()
	db := create(t, dir)
	require.NoError(t, db.Close())

	faulty := fs.NewFaultyFS(fs.Default)
	faulty.AddRule("shelf.bytes", fs.Fault{FailAfterBytes: -1, FailOnOpen: true})
	_, err := rodb.Open(dir, library(), testOptions(rodb.WithFileSystem(faulty))...)
	require.ErrorIs(t, err, fs.ErrInjected)

	faulty.ClearRules()
	db, err = rodb.Open(dir, library(), testOptions(rodb.WithFileSystem(faulty))...)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestDatabase_FaultOnManifest(t *testing.T) {
	dir := t.TempDir()
	faulty := fs.NewFaultyFS(fs.Default)
	db := create(t, dir, rodb.WithFileSystem(faulty))
	stored(t, db, "author", map[string]any{"name": "Banks"})

	faulty.AddRule("rodb.meta", fs.Fault{FailAfterBytes: 0})
	err := db.Close()
	require.ErrorIs(t, err, fs.ErrInjected)

	// The stores were closed anyway and the previous manifest survived.
	db = open(t, dir)
	authors, err := db.Container("author")
	require.NoError(t, err)
	assert.Equal(t, 0, authors.Count())
}

func TestDatabase_ErrorsAreDistinct(t *testing.T) {
	assert.True(t, errors.Is(rodb.ErrUnstoredReferences, rodb.ErrDatabase))
	assert.False(t, errors.Is(rodb.ErrNotOpen, rodb.ErrDatabase))
	assert.False(t, errors.Is(rodb.ErrNotFound, rodb.ErrDatabase))
}

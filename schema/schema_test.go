package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookResource() Resource {
	return NewResource("book",
		Field("title", String).Indexed(SegmentedIndex),
		Field("year", Integer).Indexed(HashIndex),
		Field("price", Float),
		Field("meta", Object),
		Singular("author", "person"),
		PolymorphicSingular("cover"),
		Plural("reviews", "review"),
		PolymorphicPlural("links"),
	)
}

func TestLayout_Offsets(t *testing.T) {
	l, err := NewLayout(bookResource())
	require.NoError(t, err)

	want := map[string][2]int{
		"title":   {1, 2},
		"year":    {3, 1},
		"price":   {4, 1},
		"meta":    {5, 2},
		"author":  {7, 1},
		"cover":   {8, 2},
		"reviews": {10, 2},
		"links":   {12, 2},
	}
	for name, w := range want {
		s, ok := l.Slot(name)
		require.True(t, ok, name)
		assert.Equal(t, uint64(w[0]), s.Offset, name)
		assert.Equal(t, w[1], s.Units, name)
	}
	assert.Equal(t, 14, l.ElementSize())
	assert.Len(t, l.Slots(), 8)

	indexed := l.Indexed()
	require.Len(t, indexed, 2)
	assert.Equal(t, "title", indexed[0].Property.Name)
	assert.Equal(t, "year", indexed[1].Property.Name)

	_, ok := l.Slot("missing")
	assert.False(t, ok)
}

func TestLayout_EmptyResource(t *testing.T) {
	l, err := NewLayout(NewResource("marker"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.ElementSize())
}

func TestLayout_Fingerprint(t *testing.T) {
	a, err := NewLayout(bookResource())
	require.NoError(t, err)
	b, err := NewLayout(bookResource())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	changed := bookResource()
	changed.Properties[1] = Field("year", Float)
	c, err := NewLayout(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	reordered := bookResource()
	reordered.Properties[1], reordered.Properties[2] = reordered.Properties[2], reordered.Properties[1]
	d, err := NewLayout(reordered)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestLayout_Invalid(t *testing.T) {
	cases := map[string]Resource{
		"empty name":      NewResource(""),
		"bad name":        NewResource("a/b"),
		"underscore":      NewResource("_x"),
		"duplicate":       NewResource("r", Field("a", Integer), Field("a", Float)),
		"no target":       NewResource("r", Singular("a", "")),
		"poly target":     NewResource("r", Property{Name: "a", Kind: KindPolymorphicPlural, Target: "x"}),
		"bad field":       NewResource("r", Field("a", FieldKind(42))),
		"bad kind":        NewResource("r", Property{Name: "a", Kind: PropertyKind(9)}),
		"bad index":       NewResource("r", Field("a", Integer).Indexed(IndexKind(7))),
		"field target":    NewResource("r", Property{Name: "a", Kind: KindField, Field: Integer, Target: "x"}),
		"bad prop name":   NewResource("r", Field("a.b", Integer)),
		"empty prop name": NewResource("r", Field("", Integer)),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLayout(r)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)
			var se *SchemaError
			assert.True(t, errors.As(err, &se))
		})
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		NewResource("person", Field("name", String)),
		NewResource("review", Field("stars", Integer)),
		bookResource(),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	id, err := r.TypeID("review")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)

	name, err := r.Name(3)
	require.NoError(t, err)
	assert.Equal(t, "book", name)

	_, err = r.Name(0)
	assert.ErrorIs(t, err, ErrUnknownResource)
	_, err = r.Name(4)
	assert.ErrorIs(t, err, ErrUnknownResource)
	_, err = r.TypeID("film")
	assert.ErrorIs(t, err, ErrUnknownResource)

	l, err := r.Layout("book")
	require.NoError(t, err)
	assert.Equal(t, "book", l.Name())
}

func TestRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(bookResource())
	assert.ErrorIs(t, err, ErrInvalidSchema, "unknown targets")

	_, err = NewRegistry(NewResource("a"), NewResource("a"))
	assert.ErrorIs(t, err, ErrInvalidSchema, "duplicate resource")
}

func TestProperty_Predicates(t *testing.T) {
	p := PolymorphicPlural("links")
	assert.True(t, p.IsAssociation())
	assert.True(t, p.IsPlural())
	assert.True(t, p.Polymorphic())
	assert.False(t, p.IsIndexed())
	assert.Equal(t, "has_many_polymorphic links", p.String())

	f := Field("title", String)
	assert.False(t, f.IsAssociation())
	assert.Equal(t, "field title(string)", f.String())
	assert.True(t, String.Variable())
	assert.False(t, Float.Variable())
	assert.Equal(t, "segmented", SegmentedIndex.String())
}

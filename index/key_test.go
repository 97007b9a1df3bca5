package index

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rodb/storage"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{7, int64(7)},
		{int8(-3), int64(-3)},
		{int32(5), int64(5)},
		{uint(9), uint64(9)},
		{uint16(4), uint64(4)},
		{float32(1.5), 1.5},
		{math.Copysign(0, -1), 0.0},
		{"abc", "abc"},
		{[]byte("xy"), "xy"},
		{Ref{TypeID: 1, ID: 2}, Ref{TypeID: 1, ID: 2}},
	}
	for _, c := range cases {
		got, err := NormalizeKey(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	neg, err := NormalizeKey(math.Copysign(0, -1))
	require.NoError(t, err)
	assert.False(t, math.Signbit(neg.(float64)))

	_, err = NormalizeKey(struct{}{})
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestEncodeKey_RoundTrip(t *testing.T) {
	keys := []any{
		nil, false, true,
		int64(0), int64(-1), int64(math.MinInt64), int64(math.MaxInt64),
		uint64(0), uint64(math.MaxUint64),
		0.0, -2.5, math.Inf(1),
		"", "hello", "ünïcödé",
		Ref{TypeID: 3, ID: 42},
	}
	for _, k := range keys {
		b, err := EncodeKey(k)
		require.NoError(t, err)
		got, err := DecodeKey(b)
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := DecodeKey(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = DecodeKey([]byte{tagInt, 1})
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = DecodeKey([]byte{200})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncodeKey_IntegerOrder(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 2, 1000, math.MaxInt64}
	var encoded []string
	for _, v := range values {
		b, err := EncodeKey(v)
		require.NoError(t, err)
		encoded = append(encoded, string(b))
	}
	assert.True(t, slices.IsSorted(encoded))
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(nil, 1001))
	assert.Equal(t, 1, Bucket(false, 1001))
	assert.Equal(t, 2, Bucket(true, 1001))
	assert.Equal(t, 5, Bucket(int64(1006), 1001))
	assert.Equal(t, 5, Bucket(int64(-1006), 1001))
	assert.Equal(t, int(uint64(1<<63)%1001), Bucket(int64(math.MinInt64), 1001))
	assert.Equal(t, 7, Bucket(uint64(7), 1001))
	assert.Equal(t, 10, Bucket(Ref{TypeID: 2, ID: 1011}, 1001))
	assert.Equal(t, Bucket(0.0, 1001), Bucket(math.Copysign(0, -1), 1001))
	assert.Equal(t, Bucket("abc", 1001), Bucket("abc", 1001))
	assert.Equal(t, 0, Bucket("abc", 0))

	for _, k := range []any{"a", "b", "zz", 1.25, -7.5, int64(123456789)} {
		b := Bucket(k, 13)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 13)
	}
}

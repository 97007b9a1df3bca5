package storage

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceStore_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.bytes")
	s := NewSequenceStore(path, testOptions())
	require.NoError(t, s.Open(false))

	off1, err := s.Append([]byte("hello"))
	require.NoError(t, err)
	off2, err := s.Append([]byte("world!"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), off1)
	assert.Equal(t, uint64(5), off2)
	assert.Equal(t, uint64(11), s.ElementCount())

	big := strings.Repeat("x", 3*s.PageSize())
	off3, err := s.Append([]byte(big))
	require.NoError(t, err)

	got, err := s.ReadString(off2, 6)
	require.NoError(t, err)
	assert.Equal(t, "world!", got)

	got, err = s.ReadString(off3, uint64(len(big)))
	require.NoError(t, err)
	assert.Equal(t, big, got)

	count := s.ElementCount()
	require.NoError(t, s.Close())

	r := NewSequenceStore(path, testOptions())
	require.NoError(t, r.Open(true))
	defer r.Close()
	require.NoError(t, r.Restore(count))

	got, err = r.ReadString(off1, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestSequenceStore_WriteBytes(t *testing.T) {
	s := NewSequenceStore(filepath.Join(t.TempDir(), "w"), testOptions())
	require.NoError(t, s.Open(false))
	defer s.Close()

	off, err := s.AllocateElements(4)
	require.NoError(t, err)
	require.NoError(t, s.WriteBytes(off, []byte{1, 2, 3, 4}))
	require.NoError(t, s.WriteBytes(off+2, []byte{9}))

	b, err := s.ReadBytes(off, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 9, 4}, b)

	// Returned slices are copies.
	b[0] = 7
	b, err = s.ReadBytes(off, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)
}

func TestSequenceStore_Bounds(t *testing.T) {
	s := NewSequenceStore(filepath.Join(t.TempDir(), "b"), testOptions())
	require.NoError(t, s.Open(false))
	defer s.Close()
	_, err := s.Append([]byte("abc"))
	require.NoError(t, err)

	_, err = s.ReadBytes(2, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.ReadBytes(4, 1)
	assert.ErrorIs(t, err, ErrIndex)
	assert.ErrorIs(t, s.WriteBytes(1, []byte("xyz")), ErrInvalidArgument)

	b, err := s.ReadBytes(3, 0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

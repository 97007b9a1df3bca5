package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.structures")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NoError(t, f.Truncate(4096))

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
	assert.NotZero(t, f.Fd())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.structures")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, lfs.RemoveAll(dir))
}

func TestWriteFileAtomic(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "rodb.meta")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("first"), 0644))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("second"), 0644))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_Rules(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	boom := errors.New("boom")
	ffs.AddRule(".joins", Fault{FailAfterBytes: -1, FailOnTruncate: true, Err: boom})
	ffs.AddRule(".bytes", Fault{FailAfterBytes: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "a.joins"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Truncate(10), boom)
	require.NoError(t, f.Close())

	g, err := ffs.OpenFile(filepath.Join(tmp, "a.bytes"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	n, err := g.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = g.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	require.NoError(t, g.Close())

	// Unmatched files behave normally.
	h, err := ffs.OpenFile(filepath.Join(tmp, "a.structures"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NoError(t, h.Truncate(10))
	require.NoError(t, h.Close())

	ffs.ClearRules()
	f, err = ffs.OpenFile(filepath.Join(tmp, "a.joins"), os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NoError(t, f.Truncate(10))
	require.NoError(t, f.Close())
}

func TestFaultyFS_FailOnOpen(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("meta", Fault{FailAfterBytes: -1, FailOnOpen: true})

	_, err := ffs.OpenFile(filepath.Join(t.TempDir(), "rodb.meta"), os.O_CREATE|os.O_RDWR, 0644)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_RuleAddedAfterOpen(t *testing.T) {
	ffs := NewFaultyFS(nil)
	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "late.structures"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Sync())
	ffs.AddRule("late", Fault{FailAfterBytes: -1, FailOnSync: true})
	assert.ErrorIs(t, f.Sync(), ErrInjected)
}

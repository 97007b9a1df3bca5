package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/rodb/internal/fs"
)

const (
	// FileName is the name of the manifest file inside a database directory.
	FileName = "rodb.meta"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Manifest records everything needed to reopen a database: the page size
// the stores were created with, the codec of Object fields and index files,
// and the durable counts of every resource.
type Manifest struct {
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	PageSize  int
	Codec     string
	Resources []ResourceInfo
}

// ResourceInfo describes the stores of one resource.
type ResourceInfo struct {
	Name        string
	TypeID      uint64
	Fingerprint uint32 // layout checksum; a mismatch means an incompatible schema

	ElementCount  uint64 // structures
	ByteCount     uint64 // variable-length bytes
	JoinCount     uint64 // monomorphic indirection slots
	PolyJoinCount uint64 // polymorphic indirection slots
}

// New creates an empty manifest for stores using pageSize and values
// encoded with the named codec.
func New(pageSize int, codec string) *Manifest {
	now := time.Now()
	return &Manifest{
		Version:   CurrentVersion,
		CreatedAt: now,
		UpdatedAt: now,
		PageSize:  pageSize,
		Codec:     codec,
	}
}

// Resource returns the entry for name.
func (m *Manifest) Resource(name string) (ResourceInfo, bool) {
	for _, r := range m.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return ResourceInfo{}, false
}

// SetResource inserts or replaces the entry for info.Name.
func (m *Manifest) SetResource(info ResourceInfo) {
	for i, r := range m.Resources {
		if r.Name == info.Name {
			m.Resources[i] = info
			return
		}
	}
	m.Resources = append(m.Resources, info)
}

// Load reads the manifest of the database in dir.
// It returns ErrNotFound if the directory holds no manifest.
func Load(fsys fs.FileSystem, dir string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m, err := ReadBinary(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return m, nil
}

// Save atomically replaces the manifest of the database in dir.
func Save(fsys fs.FileSystem, dir string, m *Manifest) error {
	m.Version = CurrentVersion
	m.UpdatedAt = time.Now()

	var buf bytes.Buffer
	if err := m.WriteBinary(&buf); err != nil {
		return err
	}
	return fs.WriteFileAtomic(fsys, filepath.Join(dir, FileName), buf.Bytes(), 0644)
}

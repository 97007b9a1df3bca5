package rodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/rodb/codec"
	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/internal/compress"
	"github.com/hupe1980/rodb/internal/manifest"
	"github.com/hupe1980/rodb/internal/resource"
	"github.com/hupe1980/rodb/schema"
	"github.com/hupe1980/rodb/storage"
)

// Database is an open database directory: one Container per declared
// resource plus the manifest recording their durable counts.
//
// Every store is memory mapped. A Database is meant for a single
// goroutine; callers sharing one must serialize access.
type Database struct {
	dir         string
	opts        options
	logger      *Logger
	readOnly    bool
	registry    *schema.Registry
	manifest    *manifest.Manifest
	resources   *resource.Controller
	compression compress.Type

	containers []*Container // by type id - 1
	byName     map[string]*Container

	pending int // open tickets of deferred updates
	open    bool
}

// Create initializes a new database in dir for resources. It fails with
// ErrExists if dir already holds one. WithReadOnly is ignored.
func Create(dir string, resources []schema.Resource, optFns ...Option) (*Database, error) {
	o := applyOptions(optFns)
	o.readOnly = false

	if err := o.fs.MkdirAll(dir, 0755); err != nil {
		return nil, &storage.DatabaseError{Op: "create", Path: dir, Err: err}
	}
	if _, err := o.fs.Stat(filepath.Join(dir, manifest.FileName)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &storage.DatabaseError{Op: "create", Path: dir, Err: err}
	}

	pageSize := storage.DefaultPageSize()
	if o.pageMultiplier > 0 {
		pageSize = os.Getpagesize() * o.pageMultiplier
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	return openDatabase(dir, resources, o, manifest.New(pageSize, o.codec.Name()), true)
}

// Open opens the database in dir. resources must match the declaration the
// database was created with; a changed layout fails with
// ErrIncompatibleSchema. A directory without database fails with
// ErrNotFound.
func Open(dir string, resources []schema.Resource, optFns ...Option) (*Database, error) {
	o := applyOptions(optFns)
	m, err := manifest.Load(o.fs, dir)
	if err != nil {
		return nil, translateError(err)
	}
	switch {
	case o.codec == nil:
		c, ok := codec.ByName(m.Codec)
		if !ok {
			return nil, fmt.Errorf("%w: %s was written with codec %q", ErrIncompatibleSchema, dir, m.Codec)
		}
		o.codec = c
	case o.codec.Name() != m.Codec:
		return nil, fmt.Errorf("%w: %s was written with codec %q, not %q", ErrIncompatibleSchema, dir, m.Codec, o.codec.Name())
	}
	return openDatabase(dir, resources, o, m, false)
}

func openDatabase(dir string, resources []schema.Resource, o options, m *manifest.Manifest, create bool) (db *Database, err error) {
	ctx := context.Background()
	logger := o.logger.WithDir(dir)
	defer func() {
		logger.LogOpen(ctx, len(resources), o.readOnly, err)
	}()

	registry, err := schema.NewRegistry(resources...)
	if err != nil {
		return nil, translateError(err)
	}
	comp, err := compress.ParseType(o.indexCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	db = &Database{
		dir:      dir,
		opts:     o,
		logger:   logger,
		readOnly: o.readOnly,
		registry: registry,
		manifest: m,
		resources: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			IOLimitBytesPerSec: o.indexIOLimit,
		}),
		compression: comp,
		byName:      make(map[string]*Container, registry.Len()),
	}

	for _, l := range registry.Layouts() {
		typeID, _ := registry.TypeID(l.Name())
		info, ok := m.Resource(l.Name())
		switch {
		case create:
			info = manifest.ResourceInfo{Name: l.Name(), TypeID: typeID, Fingerprint: l.Fingerprint()}
		case !ok:
			err = fmt.Errorf("%w: resource %q is not stored in %s", ErrIncompatibleSchema, l.Name(), dir)
		case info.TypeID != typeID || info.Fingerprint != l.Fingerprint():
			err = fmt.Errorf("%w: resource %q changed layout", ErrIncompatibleSchema, l.Name())
		}
		if err != nil {
			return nil, errors.Join(err, db.closeContainers())
		}

		c := newContainer(db, l, typeID)
		db.containers = append(db.containers, c)
		db.byName[l.Name()] = c
		if err := c.open(info, create); err != nil {
			return nil, errors.Join(err, db.closeContainers())
		}
	}

	if create {
		for _, c := range db.containers {
			m.SetResource(c.info())
		}
		if err := manifest.Save(o.fs, dir, m); err != nil {
			return nil, errors.Join(err, db.closeContainers())
		}
	}
	db.open = true
	return db, nil
}

func (d *Database) closeContainers() error {
	var errs []error
	for _, c := range d.containers {
		errs = append(errs, c.close())
	}
	return errors.Join(errs...)
}

func (d *Database) checkOpen() error {
	if !d.open {
		return &storage.DatabaseError{Op: "use", Path: d.dir, Err: ErrNotOpen}
	}
	return nil
}

func (d *Database) checkWritable() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if d.readOnly {
		return &storage.DatabaseError{Op: "write", Path: d.dir, Err: ErrReadOnly}
	}
	return nil
}

// Dir returns the database directory.
func (d *Database) Dir() string { return d.dir }

// ReadOnly reports whether the database was opened read-only.
func (d *Database) ReadOnly() bool { return d.readOnly }

// PageSize returns the page size of every store.
func (d *Database) PageSize() int { return d.manifest.PageSize }

// Pending returns the number of updates waiting for objects to be stored.
func (d *Database) Pending() int { return d.pending }

// Registry returns the resource declarations.
func (d *Database) Registry() *schema.Registry { return d.registry }

// MemoryUsage returns the bytes held by loaded index buckets.
func (d *Database) MemoryUsage() int64 { return d.resources.MemoryUsage() }

// Container returns the container of the named resource.
func (d *Database) Container(name string) (*Container, error) {
	c, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return c, nil
}

// New returns an unsaved object of the named resource.
func (d *Database) New(name string) (*Object, error) {
	c, err := d.Container(name)
	if err != nil {
		return nil, err
	}
	return c.New(), nil
}

// Save stores o in its container.
func (d *Database) Save(o *Object) error {
	if o == nil {
		return fmt.Errorf("%w: nil object", ErrInvalidArgument)
	}
	if o.c.db != d {
		return fmt.Errorf("%w: object belongs to another database", ErrInvalidArgument)
	}
	return o.c.Save(o)
}

// Load returns object id of the named resource.
func (d *Database) Load(name string, id uint64) (*Object, error) {
	c, err := d.Container(name)
	if err != nil {
		return nil, err
	}
	return c.Load(id)
}

func (d *Database) load(typeID, id uint64) (*Object, error) {
	if typeID == 0 || typeID > uint64(len(d.containers)) {
		return nil, fmt.Errorf("%w: type id %d", ErrUnknownResource, typeID)
	}
	return d.containers[typeID-1].Load(id)
}

// Resolve implements collection.Resolver.
func (d *Database) Resolve(typeID, id uint64) (collection.Element, error) {
	o, err := d.load(typeID, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// TypeID implements collection.Resolver.
func (d *Database) TypeID(name string) (uint64, error) {
	return d.registry.TypeID(name)
}

// Flush writes changed indexes, syncs every store and records the durable
// counts in the manifest.
func (d *Database) Flush(ctx context.Context) error {
	if err := d.checkWritable(); err != nil {
		return err
	}
	return d.flush(ctx)
}

func (d *Database) flush(ctx context.Context) (err error) {
	start := time.Now()
	indexes := 0
	defer func() {
		d.opts.metricsCollector.RecordFlush(time.Since(start), err)
		d.logger.LogFlush(ctx, indexes, err)
	}()

	for _, c := range d.containers {
		if err := c.flush(ctx); err != nil {
			return err
		}
		indexes += len(c.indexNames)
	}
	for _, c := range d.containers {
		d.manifest.SetResource(c.info())
	}
	return manifest.Save(d.opts.fs, d.dir, d.manifest)
}

// Close flushes and closes every store. It fails with
// ErrUnstoredReferences, without flushing, if objects were associated with
// objects that were never stored; the stores are closed on every path.
// Closing twice is a no-op.
func (d *Database) Close() error {
	if !d.open {
		return nil
	}
	d.open = false

	ctx := context.Background()
	var errs []error
	if !d.readOnly {
		if d.pending > 0 {
			errs = append(errs, fmt.Errorf("%w: %d updates pending", ErrUnstoredReferences, d.pending))
		} else if err := d.flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, d.closeContainers())

	err := errors.Join(errs...)
	d.logger.LogClose(ctx, err)
	return err
}

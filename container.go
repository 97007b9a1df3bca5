package rodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/hupe1980/rodb/codec"
	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/index"
	"github.com/hupe1980/rodb/internal/cache"
	"github.com/hupe1980/rodb/internal/manifest"
	"github.com/hupe1980/rodb/schema"
	"github.com/hupe1980/rodb/storage"
)

// Container owns the stores of one resource: fixed-size records, the
// variable-length bytes of string and object fields, and the monomorphic
// and polymorphic indirection stores of its plural associations and
// indexes. Loaded objects are kept in an identity map so every id has at
// most one live Object.
type Container struct {
	db     *Database
	layout *schema.Layout
	typeID uint64
	logger *Logger

	structures *storage.StructureStore
	bytes      *storage.SequenceStore
	joins      *storage.JoinStore
	polyJoins  *storage.JoinStore

	indexes    map[string]index.Index
	indexNames []string

	cache *cache.IdentityMap[*Object]
}

func newContainer(db *Database, l *schema.Layout, typeID uint64) *Container {
	opts := storage.Options{
		PageSize:     db.manifest.PageSize,
		FS:           db.opts.fs,
		Logger:       db.logger.Logger,
		RandomAccess: true,
	}
	base := filepath.Join(db.dir, l.Name())
	return &Container{
		db:         db,
		layout:     l,
		typeID:     typeID,
		logger:     db.logger.WithResource(l.Name()),
		structures: storage.NewStructureStore(base+".structures", l.ElementSize(), opts),
		bytes:      storage.NewSequenceStore(base+".bytes", opts),
		joins:      storage.NewJoinStore(base+".joins", opts),
		polyJoins:  storage.NewPolyJoinStore(base+".polymorphic_joins", opts),
		indexes:    make(map[string]index.Index),
		cache:      cache.NewIdentityMap(db.opts.cacheCapacity, (*Object).pinned),
	}
}

func (c *Container) stores() []*storage.PagedStore {
	return []*storage.PagedStore{
		c.structures.PagedStore,
		c.bytes.PagedStore,
		c.joins.PagedStore,
		c.polyJoins.PagedStore,
	}
}

// open maps the stores, restores their durable counts and opens the
// indexes. With create set, leftover files of an earlier attempt are
// discarded first.
func (c *Container) open(info manifest.ResourceInfo, create bool) error {
	for _, s := range c.stores() {
		if create {
			if err := c.db.opts.fs.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
				return &storage.DatabaseError{Op: "create", Path: s.Path(), Err: err}
			}
		}
		if err := s.Open(c.db.readOnly); err != nil {
			return err
		}
	}

	counts := []uint64{info.ElementCount, info.ByteCount, info.JoinCount, info.PolyJoinCount}
	for i, s := range c.stores() {
		if err := s.Restore(counts[i]); err != nil {
			return err
		}
	}

	for _, s := range c.layout.Indexed() {
		idx, err := c.openIndex(s)
		if err != nil {
			return err
		}
		name := s.Property.Name
		c.indexes[name] = idx
		c.indexNames = append(c.indexNames, name)
		if create {
			if err := idx.Destroy(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Container) openIndex(s schema.Slot) (index.Index, error) {
	cfg := index.Config{
		Path:        filepath.Join(c.db.dir, fmt.Sprintf("%s.%s.idx", c.Name(), s.Property.Name)),
		Joins:       c.joins,
		Resolver:    c.db,
		TypeName:    c.Name(),
		ReadOnly:    c.db.readOnly,
		FS:          c.db.opts.fs,
		Codec:       c.db.opts.codec,
		Compression: c.db.compression,
		Buckets:     c.db.opts.buckets,
		Resources:   c.db.resources,
		Logger:      c.logger.Logger,
	}
	switch s.Property.Index {
	case schema.FlatIndex:
		return index.NewFlat(cfg), nil
	case schema.SegmentedIndex:
		return index.NewSegmented(cfg), nil
	case schema.HashIndex:
		return index.OpenHash(cfg)
	default:
		return nil, fmt.Errorf("%w: %s.%s: index kind %s", ErrInvalidArgument, c.Name(), s.Property.Name, s.Property.Index)
	}
}

// info returns the durable counts for the manifest.
func (c *Container) info() manifest.ResourceInfo {
	return manifest.ResourceInfo{
		Name:          c.Name(),
		TypeID:        c.typeID,
		Fingerprint:   c.layout.Fingerprint(),
		ElementCount:  c.structures.ElementCount(),
		ByteCount:     c.bytes.ElementCount(),
		JoinCount:     c.joins.ElementCount(),
		PolyJoinCount: c.polyJoins.ElementCount(),
	}
}

func (c *Container) flush(ctx context.Context) error {
	for _, name := range c.indexNames {
		if err := c.indexes[name].Save(ctx); err != nil {
			return translateError(err)
		}
	}
	for _, s := range c.stores() {
		if err := s.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// close releases indexes and stores. Every one is closed even if an
// earlier one fails.
func (c *Container) close() error {
	var errs []error
	for _, name := range c.indexNames {
		errs = append(errs, c.indexes[name].Close())
	}
	for _, s := range c.stores() {
		if s.IsOpen() {
			errs = append(errs, s.Close())
		}
	}
	unsaved := 0
	c.cache.Range(func(_ uint64, o *Object) bool {
		if o.Changed() {
			unsaved++
		}
		return true
	})
	if unsaved > 0 {
		c.logger.Warn("discarding unsaved edits", "objects", unsaved)
	}
	c.cache.Clear()
	return errors.Join(errs...)
}

// Name returns the resource name.
func (c *Container) Name() string { return c.layout.Name() }

// TypeID returns the type id of the resource.
func (c *Container) TypeID() uint64 { return c.typeID }

// Layout returns the record layout of the resource.
func (c *Container) Layout() *schema.Layout { return c.layout }

// Count returns the number of stored objects.
func (c *Container) Count() int { return int(c.structures.ElementCount()) }

// ElementCount returns the number of records in the structure store.
func (c *Container) ElementCount() uint64 { return c.structures.ElementCount() }

// ByteCount returns the number of bytes used by string and object fields.
func (c *Container) ByteCount() uint64 { return c.bytes.ElementCount() }

// JoinCount returns the number of monomorphic indirection slots.
func (c *Container) JoinCount() uint64 { return c.joins.ElementCount() }

// PolyJoinCount returns the number of polymorphic indirection slots.
func (c *Container) PolyJoinCount() uint64 { return c.polyJoins.ElementCount() }

// New returns an unsaved object of the resource.
func (c *Container) New() *Object {
	return &Object{c: c}
}

// Load returns the object with id, materializing it on first access.
func (c *Container) Load(id uint64) (o *Object, err error) {
	start := time.Now()
	cached := false
	defer func() {
		c.db.opts.metricsCollector.RecordLoad(c.Name(), cached, time.Since(start), err)
		if err != nil {
			c.logger.LogLoad(context.Background(), id, err)
		}
	}()

	if err := c.db.checkOpen(); err != nil {
		return nil, err
	}
	if count := c.structures.ElementCount(); id == 0 || id > count {
		return nil, fmt.Errorf("%w: %w: %s %d of %d", ErrNotFound, storage.ErrIndex, c.Name(), id, count)
	}
	if o, ok := c.cache.Get(id); ok {
		cached = true
		return o, nil
	}
	stored, err := c.structures.ReadULong(id-1, schema.IDSlot)
	if err != nil {
		return nil, err
	}
	if stored != id {
		return nil, fmt.Errorf("%w: %s record %d holds id %d", storage.ErrCorrupt, c.Name(), id-1, stored)
	}
	o = &Object{c: c, id: id}
	c.cache.Put(id, o)
	return o, nil
}

// Each calls fn for every stored object in id order.
func (c *Container) Each(fn func(o *Object) error) error {
	count := c.structures.ElementCount()
	for id := uint64(1); id <= count; id++ {
		o, err := c.Load(id)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// Evict drops id from the identity map and reports whether it was cached.
// Objects with unsaved changes stay.
func (c *Container) Evict(id uint64) bool {
	o, ok := c.cache.Get(id)
	if !ok || o.pinned() {
		return false
	}
	return c.cache.Evict(id)
}

// Cached returns the number of objects in the identity map.
func (c *Container) Cached() int { return c.cache.Len() }

// CacheStats returns the hit and miss counts of identity map lookups.
func (c *Container) CacheStats() (hits, misses int64) { return c.cache.Stats() }

// Index returns the index of property.
func (c *Container) Index(property string) (index.Index, error) {
	idx, ok := c.indexes[property]
	if !ok {
		return nil, &PropertyError{Resource: c.Name(), Property: property, Reason: "not indexed"}
	}
	return idx, nil
}

// FindBy returns the objects whose property holds key. Field keys are
// converted the way Set converts values, so FindBy("price", 2) matches a
// Float field set to 2. Association properties take the associated
// *Object as key.
func (c *Container) FindBy(property string, key any) (p *collection.Proxy, err error) {
	start := time.Now()
	defer func() {
		c.db.opts.metricsCollector.RecordIndexLookup(c.Name(), time.Since(start), err)
	}()

	idx, err := c.Index(property)
	if err != nil {
		return nil, err
	}
	s, _ := c.layout.Slot(property)
	k, err := c.lookupKey(s, key)
	if err != nil {
		return nil, err
	}
	p, err = idx.Get(k)
	return p, translateError(err)
}

func (c *Container) lookupKey(s schema.Slot, key any) (any, error) {
	if s.Property.IsAssociation() {
		switch k := key.(type) {
		case nil:
			return nil, nil
		case *Object:
			if k == nil {
				return nil, nil
			}
			if k.id == 0 {
				return nil, fmt.Errorf("%w: unsaved %s as index key", ErrInvalidArgument, k.c.Name())
			}
			return index.Ref{TypeID: k.c.typeID, ID: k.id}, nil
		case index.Ref:
			return k, nil
		default:
			return nil, fmt.Errorf("%w: %s.%s is keyed by objects, got %T", ErrInvalidArgument, c.Name(), s.Property.Name, key)
		}
	}
	if s.Property.Field == schema.Object && key == nil {
		return "", nil
	}
	v, err := c.coerce(s, key)
	if err != nil {
		return nil, err
	}
	if b, ok := v.(encoded); ok {
		return string(b), nil
	}
	return v, nil
}

// encode marshals an Object field value into its canonical form, which is
// also its index key.
func (c *Container) encode(v any) ([]byte, error) {
	b, err := c.db.opts.codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	return codec.Canonical(c.db.opts.codec, b)
}

// Save stores o. A new object gets the next id. Structure data is written
// first, then plural associations, then updates other objects deferred to
// o are applied, and finally the indexes of changed properties are
// updated.
func (c *Container) Save(o *Object) (err error) {
	start := time.Now()
	created := o != nil && o.id == 0
	defer func() {
		c.db.opts.metricsCollector.RecordSave(c.Name(), time.Since(start), err)
		if o != nil {
			c.logger.LogSave(context.Background(), o.id, created, err)
		}
	}()

	if o == nil || o.c != c {
		return fmt.Errorf("%w: object does not belong to %s", ErrInvalidArgument, c.Name())
	}
	if err := c.db.checkWritable(); err != nil {
		return err
	}

	dirty := o.dirty()
	old := make(map[string][]any)
	if created {
		off, err := c.structures.AllocateElements(1)
		if err != nil {
			return err
		}
		if err := c.structures.WriteULong(off, schema.IDSlot, off+1); err != nil {
			return err
		}
		o.id = off + 1
		c.cache.Put(o.id, o)
	} else {
		for _, s := range c.layout.Indexed() {
			if !dirty[s.Property.Name] {
				continue
			}
			keys, _, err := o.indexKeys(s, true)
			if err != nil {
				return err
			}
			old[s.Property.Name] = keys
		}
	}

	element := o.id - 1
	for _, s := range c.layout.Slots() {
		name := s.Property.Name
		switch s.Property.Kind {
		case schema.KindField:
			if v, ok := o.values[name]; ok {
				if err := c.writeField(element, s, v); err != nil {
					return err
				}
			}
		case schema.KindSingular, schema.KindPolymorphicSingular:
			if target, ok := o.refs[name]; ok {
				if err := c.writeRef(o, s, target); err != nil {
					return err
				}
			}
		}
	}

	for _, s := range c.layout.Slots() {
		p := o.colls[s.Property.Name]
		if !s.Property.IsPlural() || p == nil || !p.Changed() {
			continue
		}
		offset, err := p.Save()
		if err != nil {
			return err
		}
		if err := c.structures.WriteULong(element, s.Offset, offset); err != nil {
			return err
		}
		if err := c.structures.WriteULong(element, s.Offset+1, uint64(p.Len())); err != nil {
			return err
		}
	}

	type reindex struct {
		slot    schema.Slot
		keys    []any
		unsaved []collection.Element
	}
	var changes []reindex
	for _, s := range c.layout.Indexed() {
		if !created && !dirty[s.Property.Name] {
			continue
		}
		keys, unsaved, err := o.indexKeys(s, false)
		if err != nil {
			return err
		}
		changes = append(changes, reindex{slot: s, keys: keys, unsaved: unsaved})
	}

	o.values = nil
	o.refs = nil

	if err := o.drain(); err != nil {
		return err
	}

	for _, ch := range changes {
		if err := c.reindex(o, ch.slot, old[ch.slot.Property.Name], ch.keys, ch.unsaved); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) writeField(element uint64, s schema.Slot, v any) error {
	switch s.Property.Field {
	case schema.Integer:
		return c.structures.WriteInteger(element, s.Offset, v.(int64))
	case schema.Float:
		return c.structures.WriteFloat(element, s.Offset, v.(float64))
	case schema.ULong:
		return c.structures.WriteULong(element, s.Offset, v.(uint64))
	case schema.String:
		return c.writeBytes(element, s, []byte(v.(string)))
	default:
		return c.writeBytes(element, s, v.(encoded))
	}
}

// writeBytes appends b to the byte store and records (length, offset).
// Stored bytes are never overwritten.
func (c *Container) writeBytes(element uint64, s schema.Slot, b []byte) error {
	var offset uint64
	if len(b) > 0 {
		var err error
		if offset, err = c.bytes.Append(b); err != nil {
			return err
		}
	}
	if err := c.structures.WriteULong(element, s.Offset, uint64(len(b))); err != nil {
		return err
	}
	return c.structures.WriteULong(element, s.Offset+1, offset)
}

func (c *Container) readBytes(element uint64, s schema.Slot) ([]byte, error) {
	length, err := c.structures.ReadULong(element, s.Offset)
	if err != nil || length == 0 {
		return nil, err
	}
	offset, err := c.structures.ReadULong(element, s.Offset+1)
	if err != nil {
		return nil, err
	}
	return c.bytes.ReadBytes(offset, length)
}

func (c *Container) readField(element uint64, s schema.Slot) (any, error) {
	switch s.Property.Field {
	case schema.Integer:
		return c.structures.ReadInteger(element, s.Offset)
	case schema.Float:
		return c.structures.ReadFloat(element, s.Offset)
	case schema.ULong:
		return c.structures.ReadULong(element, s.Offset)
	default:
		b, err := c.readBytes(element, s)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

// writeRef stores a singular association. An unsaved target leaves the
// slot empty and registers an update that fills it once the target is
// stored; a previous such update of the same slot is revoked.
func (c *Container) writeRef(o *Object, s schema.Slot, target *Object) error {
	element := o.id - 1
	name := s.Property.Name
	if pr, ok := o.pendingRefs[name]; ok {
		pr.t.retire()
		delete(o.pendingRefs, name)
	}

	var id, typeID uint64
	if target != nil {
		id, typeID = target.id, target.c.typeID
		if id == 0 {
			t := c.db.newTicket()
			target.Defer(&refUpdate{c: c, element: element, slot: s, typeID: typeID, t: t})
			if o.pendingRefs == nil {
				o.pendingRefs = make(map[string]pendingRef)
			}
			o.pendingRefs[name] = pendingRef{target: target, t: t}
			typeID = 0
		}
	}

	if err := c.structures.WriteULong(element, s.Offset, id); err != nil {
		return err
	}
	if s.Property.Polymorphic() {
		return c.structures.WriteULong(element, s.Offset+1, typeID)
	}
	return nil
}

// readRef returns the id and type id held by a singular slot.
func (c *Container) readRef(element uint64, s schema.Slot) (id, typeID uint64, err error) {
	id, err = c.structures.ReadULong(element, s.Offset)
	if err != nil || id == 0 {
		return 0, 0, err
	}
	if s.Property.Polymorphic() {
		typeID, err = c.structures.ReadULong(element, s.Offset+1)
		return id, typeID, err
	}
	typeID, err = c.db.registry.TypeID(s.Property.Target)
	return id, typeID, err
}

// storedProxy returns a proxy over the region a plural slot of record id
// points at. Unsaved objects get an empty proxy.
func (c *Container) storedProxy(id uint64, s schema.Slot) (*collection.Proxy, error) {
	store := c.joins
	if s.Property.Polymorphic() {
		store = c.polyJoins
	}
	if id == 0 {
		return collection.NewEmpty(store, c.db, s.Property.Target)
	}
	offset, err := c.structures.ReadULong(id-1, s.Offset)
	if err != nil {
		return nil, err
	}
	count, err := c.structures.ReadULong(id-1, s.Offset+1)
	if err != nil {
		return nil, err
	}
	return collection.New(store, c.db, s.Property.Target, offset, int(count))
}

// reindex moves o from the old keys of s to the new ones and defers the
// keys of associated objects that are not stored yet.
func (c *Container) reindex(o *Object, s schema.Slot, old, keys []any, unsaved []collection.Element) error {
	idx := c.indexes[s.Property.Name]
	before, err := keySet(old)
	if err != nil {
		return err
	}
	after, err := keySet(keys)
	if err != nil {
		return err
	}
	for _, k := range sortedKeys(before) {
		if _, ok := after[k]; !ok {
			if err := idx.Delete(before[k], o); err != nil {
				return translateError(err)
			}
		}
	}
	for _, k := range sortedKeys(after) {
		if _, ok := before[k]; !ok {
			if err := idx.Put(after[k], o); err != nil {
				return translateError(err)
			}
		}
	}

	name := s.Property.Name
	for _, t := range o.indexTickets[name] {
		t.retire()
	}
	delete(o.indexTickets, name)
	for _, e := range unsaved {
		typeID, err := c.db.TypeID(e.TypeName())
		if err != nil {
			return err
		}
		t := c.db.newTicket()
		e.Defer(&indexUpdate{c: c, idx: idx, ownerID: o.id, typeID: typeID, t: t})
		if o.indexTickets == nil {
			o.indexTickets = make(map[string][]*ticket)
		}
		o.indexTickets[name] = append(o.indexTickets[name], t)
	}
	return nil
}

func keySet(keys []any) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		n, err := index.NormalizeKey(k)
		if err != nil {
			return nil, err
		}
		enc, err := index.EncodeKey(n)
		if err != nil {
			return nil, err
		}
		out[string(enc)] = n
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// indexKeys returns the index keys of s for o. Associated objects without
// id are returned separately. With stored set, plural associations are
// read from their stored region, ignoring unsaved edits.
func (o *Object) indexKeys(s schema.Slot, stored bool) ([]any, []collection.Element, error) {
	c := o.c
	element := o.id - 1
	switch s.Property.Kind {
	case schema.KindField:
		if s.Property.Field == schema.Object {
			b, err := c.readBytes(element, s)
			return []any{string(b)}, nil, err
		}
		v, err := c.readField(element, s)
		return []any{v}, nil, err

	case schema.KindSingular, schema.KindPolymorphicSingular:
		id, typeID, err := c.readRef(element, s)
		if err != nil {
			return nil, nil, err
		}
		if id != 0 {
			return []any{index.Ref{TypeID: typeID, ID: id}}, nil, nil
		}
		if pr, ok := o.pendingRefs[s.Property.Name]; ok && !pr.t.done {
			return nil, []collection.Element{pr.target}, nil
		}
		return []any{nil}, nil, nil

	default:
		p := o.colls[s.Property.Name]
		if stored || p == nil {
			var err error
			if p, err = c.storedProxy(o.id, s); err != nil {
				return nil, nil, err
			}
		}
		entries, err := p.Entries()
		if err != nil {
			return nil, nil, err
		}
		var (
			keys    []any
			unsaved []collection.Element
		)
		for _, e := range entries {
			switch {
			case e.ID != 0:
				keys = append(keys, index.Ref{TypeID: e.TypeID, ID: e.ID})
			case e.Element != nil && !slices.Contains(unsaved, e.Element):
				unsaved = append(unsaved, e.Element)
			}
		}
		return keys, unsaved, nil
	}
}

package collection

import (
	"fmt"
	"slices"

	"github.com/hupe1980/rodb/storage"
)

// entry is a pending element: either a live element or a stored reference.
type entry struct {
	elem   Element
	id     uint64
	typeID uint64
}

// Proxy is a lazy, edit-buffering view over a slice of an indirection store.
//
// Edits are kept in memory: appended and inserted elements live in added,
// deleted physical slots in the sorted deleted list. Logical positions that
// hold a pending element are keyed in pending. Save writes the current
// contents into a freshly allocated region; stored regions are never
// overwritten in place.
//
// A Proxy is not safe for concurrent use.
type Proxy struct {
	store    *storage.JoinStore
	resolver Resolver
	typeName string
	typeID   uint64

	offset   uint64
	size     int
	origSize int

	added   []entry
	deleted []int       // sorted physical indexes
	pending map[int]int // logical index -> position in added

	// unresolved keeps elements that were unsaved when their slot was
	// written, keyed by absolute slot, until their id is patched in.
	unresolved map[uint64]Element
	// revokes drops the slot updates registered by the last Save.
	revokes []func()

	mods uint64
}

// New returns a proxy over size slots at offset of store. typeName names
// the element resource of a monomorphic proxy and must be empty for a
// polymorphic store.
func New(store *storage.JoinStore, resolver Resolver, typeName string, offset uint64, size int) (*Proxy, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative collection size %d", storage.ErrInvalidArgument, size)
	}
	p := &Proxy{
		store:    store,
		resolver: resolver,
		typeName: typeName,
		offset:   offset,
		size:     size,
		origSize: size,
		pending:  make(map[int]int),
	}
	if store.Polymorphic() {
		if typeName != "" {
			return nil, fmt.Errorf("%w: polymorphic collection with element type %q", storage.ErrInvalidArgument, typeName)
		}
		return p, nil
	}
	id, err := resolver.TypeID(typeName)
	if err != nil {
		return nil, err
	}
	p.typeID = id
	return p, nil
}

// NewEmpty returns a proxy with no stored region.
func NewEmpty(store *storage.JoinStore, resolver Resolver, typeName string) (*Proxy, error) {
	return New(store, resolver, typeName, 0, 0)
}

// Len returns the logical number of elements.
func (p *Proxy) Len() int { return p.size }

// Offset returns the start of the stored region.
func (p *Proxy) Offset() uint64 { return p.offset }

// Polymorphic reports whether elements may be of any resource.
func (p *Proxy) Polymorphic() bool { return p.store.Polymorphic() }

// TypeName returns the element resource of a monomorphic proxy.
func (p *Proxy) TypeName() string { return p.typeName }

// Changed reports whether the proxy has edits not yet saved.
func (p *Proxy) Changed() bool {
	return len(p.added) > 0 || len(p.deleted) > 0
}

// Unresolved returns the number of saved slots still waiting for the id of
// their element.
func (p *Proxy) Unresolved() int { return len(p.unresolved) }

// At returns the element at logical index i. A null reference yields nil.
func (p *Proxy) At(i int) (Element, error) {
	if i < 0 || i >= p.size {
		return nil, fmt.Errorf("%w: collection index %d of %d", storage.ErrIndex, i, p.size)
	}
	if pos, ok := p.pending[i]; ok {
		return p.materialize(p.added[pos])
	}
	return p.physical(p.lazyIndex(i))
}

// Append adds e at the end. A nil element appends a null reference.
func (p *Proxy) Append(e Element) error {
	return p.Insert(p.size, e)
}

// AppendID adds a stored reference at the end without materializing it.
// typeID is ignored by monomorphic proxies.
func (p *Proxy) AppendID(id, typeID uint64) error {
	return p.insertEntry(p.size, p.idEntry(id, typeID))
}

// Insert places e at logical index i, shifting later elements up.
func (p *Proxy) Insert(i int, e Element) error {
	ent, err := p.elementEntry(e)
	if err != nil {
		return err
	}
	return p.insertEntry(i, ent)
}

// DeleteAt removes the element at logical index i.
func (p *Proxy) DeleteAt(i int) error {
	if i < 0 || i >= p.size {
		return fmt.Errorf("%w: collection index %d of %d", storage.ErrIndex, i, p.size)
	}
	if pos, ok := p.pending[i]; ok {
		p.added = slices.Delete(p.added, pos, pos+1)
		delete(p.pending, i)
		for k, v := range p.pending {
			if v > pos {
				p.pending[k] = v - 1
			}
		}
	} else {
		phys := p.lazyIndex(i)
		at, _ := slices.BinarySearch(p.deleted, phys)
		p.deleted = slices.Insert(p.deleted, at, phys)
	}
	p.shift(i+1, -1)
	p.size--
	p.mods++
	return nil
}

// Delete removes the first occurrence of e and reports whether it was found.
func (p *Proxy) Delete(e Element) (bool, error) {
	i, err := p.Index(e)
	if err != nil || i < 0 {
		return false, err
	}
	return true, p.DeleteAt(i)
}

// Clear removes every element.
func (p *Proxy) Clear() {
	p.deleted = p.deleted[:0]
	for i := range p.origSize {
		p.deleted = append(p.deleted, i)
	}
	p.added = nil
	p.pending = make(map[int]int)
	p.size = 0
	p.mods++
}

// Index returns the first logical index holding e, or -1.
func (p *Proxy) Index(e Element) (int, error) {
	for i := range p.size {
		got, err := p.At(i)
		if err != nil {
			return -1, err
		}
		if same(got, e) {
			return i, nil
		}
	}
	return -1, nil
}

// Each calls fn for every element in order. It fails with
// ErrModifiedDuringIteration if fn inserts or deletes elements.
func (p *Proxy) Each(fn func(i int, e Element) error) error {
	mods := p.mods
	for i := 0; i < p.size; i++ {
		e, err := p.At(i)
		if err != nil {
			return err
		}
		if err := fn(i, e); err != nil {
			return err
		}
		if p.mods != mods {
			return ErrModifiedDuringIteration
		}
	}
	return nil
}

// ToSlice materializes every element.
func (p *Proxy) ToSlice() ([]Element, error) {
	out := make([]Element, 0, p.size)
	err := p.Each(func(_ int, e Element) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// IDs returns the element ids in order. Unsaved elements and null
// references yield 0. Unedited proxies read the ids without resolving.
func (p *Proxy) IDs() ([]uint64, error) {
	if !p.Changed() && len(p.unresolved) == 0 {
		if p.size == 0 {
			return []uint64{}, nil
		}
		return p.store.ReadRange(p.offset, uint64(p.size))
	}
	ids := make([]uint64, p.size)
	for i := range p.size {
		id, _, _, err := p.reference(i)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Entry is one reference of a collection. Element is set when the slot
// holds a live element, which may not have been stored yet.
type Entry struct {
	ID      uint64
	TypeID  uint64
	Element Element
}

// Entries returns the references in order without resolving stored ids.
func (p *Proxy) Entries() ([]Entry, error) {
	out := make([]Entry, p.size)
	for i := range p.size {
		id, typeID, elem, err := p.reference(i)
		if err != nil {
			return nil, err
		}
		out[i] = Entry{ID: id, TypeID: typeID, Element: elem}
	}
	return out, nil
}

// Save writes the current contents into a new region of the store and
// returns its offset. A proxy without edits is left untouched. Unsaved
// elements leave a null slot and register an update that patches the slot
// once they are stored. Updates registered by an earlier Save are revoked.
func (p *Proxy) Save() (uint64, error) {
	if !p.Changed() {
		return p.offset, nil
	}

	type resolved struct {
		id, typeID uint64
		elem       Element
	}
	items := make([]resolved, p.size)
	for i := range p.size {
		id, typeID, elem, err := p.reference(i)
		if err != nil {
			return 0, err
		}
		items[i] = resolved{id: id, typeID: typeID, elem: elem}
	}

	offset, err := p.store.Allocate(uint64(p.size))
	if err != nil {
		return 0, err
	}

	// Slots of the previous region are no longer read.
	for _, revoke := range p.revokes {
		revoke()
	}
	p.revokes = nil

	unresolved := make(map[uint64]Element)
	for i, it := range items {
		if it.elem != nil && it.id == 0 {
			unresolved[offset+uint64(i)] = it.elem
			u := &slotUpdate{proxy: p, offset: offset, index: uint64(i), typeName: it.elem.TypeName()}
			p.revokes = append(p.revokes, it.elem.Defer(u))
			continue
		}
		if err := p.write(offset, uint64(i), it.id, it.typeID); err != nil {
			return 0, err
		}
	}

	p.offset = offset
	p.origSize = p.size
	p.added = nil
	p.deleted = nil
	p.pending = make(map[int]int)
	p.unresolved = unresolved
	return offset, nil
}

// lazyIndex maps a logical index without a pending entry to its physical
// slot: pending entries before i are discounted, then deleted slots at or
// before the candidate are skipped.
func (p *Proxy) lazyIndex(i int) int {
	idx := i
	for k := range p.pending {
		if k < i {
			idx--
		}
	}
	for _, d := range p.deleted {
		if d > idx {
			break
		}
		idx++
	}
	return idx
}

func (p *Proxy) insertEntry(i int, ent entry) error {
	if i < 0 || i > p.size {
		return fmt.Errorf("%w: insert position %d of %d", storage.ErrIndex, i, p.size)
	}
	p.shift(i, 1)
	p.added = append(p.added, ent)
	p.pending[i] = len(p.added) - 1
	p.size++
	p.mods++
	return nil
}

// shift moves every pending key >= from by delta.
func (p *Proxy) shift(from, delta int) {
	if len(p.pending) == 0 {
		return
	}
	next := make(map[int]int, len(p.pending))
	for k, v := range p.pending {
		if k >= from {
			k += delta
		}
		next[k] = v
	}
	p.pending = next
}

func (p *Proxy) elementEntry(e Element) (entry, error) {
	if e == nil {
		return entry{}, nil
	}
	if !p.store.Polymorphic() {
		if e.TypeName() != p.typeName {
			return entry{}, fmt.Errorf("%w: %s in collection of %s", ErrTypeMismatch, e.TypeName(), p.typeName)
		}
		return entry{elem: e, typeID: p.typeID}, nil
	}
	typeID, err := p.resolver.TypeID(e.TypeName())
	if err != nil {
		return entry{}, err
	}
	return entry{elem: e, typeID: typeID}, nil
}

func (p *Proxy) idEntry(id, typeID uint64) entry {
	if !p.store.Polymorphic() {
		typeID = p.typeID
	}
	if id == 0 {
		typeID = 0
	}
	return entry{id: id, typeID: typeID}
}

func (p *Proxy) materialize(ent entry) (Element, error) {
	if ent.elem != nil {
		return ent.elem, nil
	}
	if ent.id == 0 {
		return nil, nil
	}
	return p.resolver.Resolve(ent.typeID, ent.id)
}

func (p *Proxy) physical(phys int) (Element, error) {
	if e, ok := p.unresolved[p.offset+uint64(phys)]; ok {
		return e, nil
	}
	id, typeID, err := p.read(phys)
	if err != nil || id == 0 {
		return nil, err
	}
	return p.resolver.Resolve(typeID, id)
}

// reference returns the id and type id at logical index i without
// resolving stored ids. Unsaved elements are returned with id 0.
func (p *Proxy) reference(i int) (id, typeID uint64, elem Element, err error) {
	if pos, ok := p.pending[i]; ok {
		ent := p.added[pos]
		if ent.elem != nil {
			return ent.elem.ID(), ent.typeID, ent.elem, nil
		}
		return ent.id, ent.typeID, nil, nil
	}
	phys := p.lazyIndex(i)
	if e, ok := p.unresolved[p.offset+uint64(phys)]; ok {
		typeID := p.typeID
		if p.store.Polymorphic() {
			if typeID, err = p.resolver.TypeID(e.TypeName()); err != nil {
				return 0, 0, nil, err
			}
		}
		return e.ID(), typeID, e, nil
	}
	id, typeID, err = p.read(phys)
	return id, typeID, nil, err
}

func (p *Proxy) read(phys int) (id, typeID uint64, err error) {
	if p.store.Polymorphic() {
		return p.store.ReadTyped(p.offset, uint64(phys))
	}
	id, err = p.store.Read(p.offset, uint64(phys))
	return id, p.typeID, err
}

func (p *Proxy) write(offset, index, id, typeID uint64) error {
	if p.store.Polymorphic() {
		return p.store.WriteTyped(offset, index, id, typeID)
	}
	return p.store.Write(offset, index, id)
}

// slotUpdate patches one collection slot once its element is stored.
type slotUpdate struct {
	proxy    *Proxy
	offset   uint64
	index    uint64
	typeName string
}

func (u *slotUpdate) Apply(id uint64) error {
	p := u.proxy
	typeID := p.typeID
	if p.store.Polymorphic() {
		var err error
		if typeID, err = p.resolver.TypeID(u.typeName); err != nil {
			return err
		}
	}
	if err := p.write(u.offset, u.index, id, typeID); err != nil {
		return err
	}
	delete(p.unresolved, u.offset+u.index)
	return nil
}

// same reports whether two elements denote the same object.
func same(a, b Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID() != 0 || b.ID() != 0 {
		return a.ID() == b.ID() && a.TypeName() == b.TypeName()
	}
	return a == b
}

package rodb

import (
	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/index"
	"github.com/hupe1980/rodb/schema"
)

// ticket tracks one update deferred to an unsaved object. The database
// counts open tickets; Close refuses to flush while any remain.
type ticket struct {
	db   *Database
	done bool
}

func (d *Database) newTicket() *ticket {
	d.pending++
	return &ticket{db: d}
}

// retire closes the ticket. An update whose ticket is retired is skipped
// when its object is stored.
func (t *ticket) retire() {
	if t == nil || t.done {
		return
	}
	t.done = true
	t.db.pending--
}

// ticketed is implemented by updates the owner may revoke before they run.
type ticketed interface {
	ticket() *ticket
}

type deferred struct {
	update collection.Update
	ticket *ticket
}

// refUpdate writes the id of a newly stored object into a singular
// association slot. It holds the slot position, not the owning object.
type refUpdate struct {
	c       *Container
	element uint64 // offset of the owning record
	slot    schema.Slot
	typeID  uint64
	t       *ticket
}

func (u *refUpdate) ticket() *ticket { return u.t }

func (u *refUpdate) Apply(id uint64) error {
	s := u.c.structures
	if err := s.WriteULong(u.element, u.slot.Offset, id); err != nil {
		return err
	}
	if u.slot.Property.Polymorphic() {
		return s.WriteULong(u.element, u.slot.Offset+1, u.typeID)
	}
	return nil
}

// indexUpdate adds the owning object under the key of a newly stored
// associated object.
type indexUpdate struct {
	c       *Container
	idx     index.Index
	ownerID uint64
	typeID  uint64
	t       *ticket
}

func (u *indexUpdate) ticket() *ticket { return u.t }

func (u *indexUpdate) Apply(id uint64) error {
	owner, err := u.c.Load(u.ownerID)
	if err != nil {
		return err
	}
	return u.idx.Put(index.Ref{TypeID: u.typeID, ID: id}, owner)
}

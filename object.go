package rodb

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/schema"
)

// Object is one element of a resource.
//
// Field and association edits are buffered on the object until it is
// saved. An object without id has never been stored; it gets one from its
// container on the first Save. While unsaved it may still be referenced by
// other objects: their slots are patched once it is stored.
//
// Objects are not safe for concurrent use.
type Object struct {
	c  *Container
	id uint64

	values map[string]any               // unsaved field values
	refs   map[string]*Object           // unsaved singular associations
	colls  map[string]*collection.Proxy // materialized plural associations

	// pendingRefs keeps singular targets that had no id when this object
	// was stored, until their id is written into the slot.
	pendingRefs map[string]pendingRef

	// indexTickets are the deferred index updates per indexed association.
	indexTickets map[string][]*ticket

	updates []deferred
}

type pendingRef struct {
	target *Object
	t      *ticket
}

// encoded is an Object field value already run through the codec.
type encoded []byte

// ID returns the element id, 0 until the object is stored.
func (o *Object) ID() uint64 { return o.id }

// TypeName returns the resource name.
func (o *Object) TypeName() string { return o.c.Name() }

// Resource returns the resource name.
func (o *Object) Resource() string { return o.c.Name() }

// Container returns the container the object belongs to.
func (o *Object) Container() *Container { return o.c }

// Stored reports whether the object has an id.
func (o *Object) Stored() bool { return o.id != 0 }

// Changed reports whether the object has edits that Save would write.
func (o *Object) Changed() bool {
	if o.id == 0 || len(o.values) > 0 || len(o.refs) > 0 {
		return true
	}
	for _, p := range o.colls {
		if p.Changed() {
			return true
		}
	}
	return false
}

// pinned keeps objects in the identity map while dropping them would lose
// state that is not on disk yet.
func (o *Object) pinned() bool {
	if o.Changed() {
		return true
	}
	for _, pr := range o.pendingRefs {
		if !pr.t.done {
			return true
		}
	}
	for _, p := range o.colls {
		if p.Unresolved() > 0 {
			return true
		}
	}
	return false
}

// Defer registers u to run with the id of o once o is stored. A stored
// object applies u at once. The returned func retires the ticket of u.
func (o *Object) Defer(u collection.Update) func() {
	var t *ticket
	if tu, ok := u.(ticketed); ok {
		t = tu.ticket()
	}
	if o.id != 0 {
		t.retire()
		if err := u.Apply(o.id); err != nil {
			o.c.logger.LogDrain(context.Background(), o.id, 0, err)
		}
		return func() {}
	}
	if t == nil {
		t = o.c.db.newTicket()
	}
	o.updates = append(o.updates, deferred{update: u, ticket: t})
	return t.retire
}

// drain applies the updates deferred while o had no id.
func (o *Object) drain() error {
	if len(o.updates) == 0 {
		return nil
	}
	updates := o.updates
	o.updates = nil

	var errs []error
	applied := 0
	for _, d := range updates {
		if d.ticket.done {
			continue
		}
		d.ticket.retire()
		if err := d.update.Apply(o.id); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	err := errors.Join(errs...)
	o.c.logger.LogDrain(context.Background(), o.id, applied, err)
	return err
}

func (o *Object) slot(name string, kinds ...schema.PropertyKind) (schema.Slot, error) {
	s, ok := o.c.layout.Slot(name)
	if !ok {
		return schema.Slot{}, &PropertyError{Resource: o.c.Name(), Property: name, Reason: "no such property"}
	}
	for _, k := range kinds {
		if s.Property.Kind == k {
			return s, nil
		}
	}
	return schema.Slot{}, &PropertyError{Resource: o.c.Name(), Property: name, Reason: "is a " + s.Property.Kind.String()}
}

// Set assigns a field. Integer fields take any Go integer, Float fields
// integers or floats, ULong fields non-negative integers, String fields
// strings or byte slices. Object fields take any value the codec encodes;
// nil unsets them.
func (o *Object) Set(name string, v any) error {
	s, err := o.slot(name, schema.KindField)
	if err != nil {
		return err
	}
	val, err := o.c.coerce(s, v)
	if err != nil {
		return err
	}
	if o.values == nil {
		o.values = make(map[string]any)
	}
	o.values[name] = val
	return nil
}

// coerce converts v to the stored representation of field s. Lookups use
// it too, so a key matches whatever Set stored for the same value.
func (c *Container) coerce(s schema.Slot, v any) (any, error) {
	mismatch := func() error {
		return &PropertyError{
			Resource: c.Name(),
			Property: s.Property.Name,
			Reason:   fmt.Sprintf("%s field cannot hold %T", s.Property.Field, v),
		}
	}
	switch s.Property.Field {
	case schema.Integer:
		if i, ok := asInt(v); ok {
			return i, nil
		}
		if u, ok := asUint(v); ok && u <= math.MaxInt64 {
			return int64(u), nil
		}
	case schema.Float:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		if i, ok := asInt(v); ok {
			return float64(i), nil
		}
		if u, ok := asUint(v); ok {
			return float64(u), nil
		}
	case schema.ULong:
		if u, ok := asUint(v); ok {
			return u, nil
		}
		if i, ok := asInt(v); ok && i >= 0 {
			return uint64(i), nil
		}
	case schema.String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case schema.Object:
		if v == nil {
			return encoded(nil), nil
		}
		b, err := c.encode(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidArgument, c.Name(), s.Property.Name, err)
		}
		return encoded(b), nil
	}
	return nil, mismatch()
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	}
	return 0, false
}

// Get returns a field as int64, float64, uint64, string or, for Object
// fields, the value decoded into an any. Unset fields yield the zero value
// of their kind; unset Object fields yield nil.
func (o *Object) Get(name string) (any, error) {
	s, err := o.slot(name, schema.KindField)
	if err != nil {
		return nil, err
	}
	if s.Property.Field == schema.Object {
		raw, err := o.raw(s)
		if err != nil || len(raw) == 0 {
			return nil, err
		}
		var v any
		if err := o.c.db.opts.codec.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrDatabase, o.c.Name(), name, err)
		}
		return v, nil
	}
	if v, ok := o.values[name]; ok {
		return v, nil
	}
	if o.id == 0 {
		return zeroValue(s.Property.Field), nil
	}
	return o.c.readField(o.id-1, s)
}

func zeroValue(k schema.FieldKind) any {
	switch k {
	case schema.Integer:
		return int64(0)
	case schema.Float:
		return float64(0)
	case schema.ULong:
		return uint64(0)
	case schema.String:
		return ""
	default:
		return nil
	}
}

// raw returns the encoded bytes of an Object field.
func (o *Object) raw(s schema.Slot) ([]byte, error) {
	if v, ok := o.values[s.Property.Name]; ok {
		return v.(encoded), nil
	}
	if o.id == 0 {
		return nil, nil
	}
	return o.c.readBytes(o.id-1, s)
}

func (o *Object) typed(name string, kind schema.FieldKind) (any, error) {
	s, err := o.slot(name, schema.KindField)
	if err != nil {
		return nil, err
	}
	if s.Property.Field != kind {
		return nil, &PropertyError{Resource: o.c.Name(), Property: name, Reason: "is a " + s.Property.Field.String() + " field"}
	}
	return o.Get(name)
}

// Int returns an Integer field.
func (o *Object) Int(name string) (int64, error) {
	v, err := o.typed(name, schema.Integer)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Float returns a Float field.
func (o *Object) Float(name string) (float64, error) {
	v, err := o.typed(name, schema.Float)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// ULong returns a ULong field.
func (o *Object) ULong(name string) (uint64, error) {
	v, err := o.typed(name, schema.ULong)
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// String returns a String field.
func (o *Object) String(name string) (string, error) {
	v, err := o.typed(name, schema.String)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Decode unmarshals an Object field into v. An unset field leaves v
// untouched.
func (o *Object) Decode(name string, v any) error {
	s, err := o.slot(name, schema.KindField)
	if err != nil {
		return err
	}
	if s.Property.Field != schema.Object {
		return &PropertyError{Resource: o.c.Name(), Property: name, Reason: "is a " + s.Property.Field.String() + " field"}
	}
	raw, err := o.raw(s)
	if err != nil || len(raw) == 0 {
		return err
	}
	return o.c.db.opts.codec.Unmarshal(raw, v)
}

// SetRef assigns a singular association. A nil target clears it. The
// target may be unsaved; its id is written once it is stored.
func (o *Object) SetRef(name string, target *Object) error {
	s, err := o.slot(name, schema.KindSingular, schema.KindPolymorphicSingular)
	if err != nil {
		return err
	}
	if target != nil {
		if target.c.db != o.c.db {
			return fmt.Errorf("%w: %s.%s: target belongs to another database", ErrInvalidArgument, o.c.Name(), name)
		}
		if !s.Property.Polymorphic() && target.c.Name() != s.Property.Target {
			return fmt.Errorf("%w: %s.%s expects %s, got %s", ErrTypeMismatch, o.c.Name(), name, s.Property.Target, target.c.Name())
		}
	}
	if o.refs == nil {
		o.refs = make(map[string]*Object)
	}
	o.refs[name] = target
	return nil
}

// Ref returns a singular association, nil if it is empty.
func (o *Object) Ref(name string) (*Object, error) {
	s, err := o.slot(name, schema.KindSingular, schema.KindPolymorphicSingular)
	if err != nil {
		return nil, err
	}
	if target, ok := o.refs[name]; ok {
		return target, nil
	}
	if o.id == 0 {
		return nil, nil
	}
	id, typeID, err := o.c.readRef(o.id-1, s)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		if pr, ok := o.pendingRefs[name]; ok && !pr.t.done {
			return pr.target, nil
		}
		return nil, nil
	}
	return o.c.db.load(typeID, id)
}

// Collection returns the proxy of a plural association. The same proxy is
// returned until the object is dropped from the identity map; edits are
// written by the next Save of o.
func (o *Object) Collection(name string) (*collection.Proxy, error) {
	s, err := o.slot(name, schema.KindPlural, schema.KindPolymorphicPlural)
	if err != nil {
		return nil, err
	}
	if p, ok := o.colls[name]; ok {
		return p, nil
	}
	p, err := o.c.storedProxy(o.id, s)
	if err != nil {
		return nil, err
	}
	if o.colls == nil {
		o.colls = make(map[string]*collection.Proxy)
	}
	o.colls[name] = p
	return p, nil
}

// dirty returns the properties with edits.
func (o *Object) dirty() map[string]bool {
	out := make(map[string]bool, len(o.values)+len(o.refs)+len(o.colls))
	for name := range o.values {
		out[name] = true
	}
	for name := range o.refs {
		out[name] = true
	}
	for name, p := range o.colls {
		if p.Changed() {
			out[name] = true
		}
	}
	return out
}

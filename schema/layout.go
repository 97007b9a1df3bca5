package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/rodb/internal/hash"
)

// ErrInvalidSchema is returned for malformed resource declarations.
var ErrInvalidSchema = errors.New("invalid schema")

// SchemaError describes a malformed declaration.
type SchemaError struct {
	Resource string
	Property string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Property == "" {
		return fmt.Sprintf("resource %q: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("resource %q property %q: %s", e.Resource, e.Property, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrInvalidSchema }

// Resource declares one persistent type.
type Resource struct {
	Name       string
	Properties []Property
}

// NewResource declares a resource with props in declaration order.
func NewResource(name string, props ...Property) Resource {
	return Resource{Name: name, Properties: props}
}

// IDSlot is the slot every record reserves for its own id.
const IDSlot = 0

// Slot locates one property inside a structure record.
type Slot struct {
	Property Property
	Offset   uint64 // first unit
	Units    int
}

// Layout is the fixed offset table of a resource. Slot 0 holds the
// element id; properties follow in declaration order.
type Layout struct {
	resource    Resource
	slots       []Slot
	byName      map[string]int
	elementSize int
}

// NewLayout validates r and computes its offset table.
func NewLayout(r Resource) (*Layout, error) {
	if err := validName(r.Name); err != nil {
		return nil, &SchemaError{Resource: r.Name, Reason: err.Error()}
	}

	l := &Layout{
		resource: r,
		slots:    make([]Slot, 0, len(r.Properties)),
		byName:   make(map[string]int, len(r.Properties)),
	}
	offset := uint64(IDSlot + 1)
	for _, p := range r.Properties {
		if err := validName(p.Name); err != nil {
			return nil, &SchemaError{Resource: r.Name, Property: p.Name, Reason: err.Error()}
		}
		if _, dup := l.byName[p.Name]; dup {
			return nil, &SchemaError{Resource: r.Name, Property: p.Name, Reason: "declared twice"}
		}
		if err := validProperty(p); err != nil {
			return nil, &SchemaError{Resource: r.Name, Property: p.Name, Reason: err.Error()}
		}
		l.byName[p.Name] = len(l.slots)
		l.slots = append(l.slots, Slot{Property: p, Offset: offset, Units: p.Units()})
		offset += uint64(p.Units())
	}
	l.elementSize = int(offset)
	return l, nil
}

// Resource returns the declaration the layout was built from.
func (l *Layout) Resource() Resource { return l.resource }

// Name returns the resource name.
func (l *Layout) Name() string { return l.resource.Name }

// ElementSize returns the number of units per record.
func (l *Layout) ElementSize() int { return l.elementSize }

// Slots returns the property slots in declaration order.
func (l *Layout) Slots() []Slot { return l.slots }

// Slot looks up a property by name.
func (l *Layout) Slot(name string) (Slot, bool) {
	i, ok := l.byName[name]
	if !ok {
		return Slot{}, false
	}
	return l.slots[i], true
}

// Indexed returns the indexed property slots.
func (l *Layout) Indexed() []Slot {
	var out []Slot
	for _, s := range l.slots {
		if s.Property.IsIndexed() {
			out = append(out, s)
		}
	}
	return out
}

// Fingerprint is a CRC32-C checksum over the layout. Any change that moves
// a slot or alters how it is interpreted changes the fingerprint.
func (l *Layout) Fingerprint() uint32 {
	var buf []byte
	buf = appendString(buf, l.resource.Name)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.elementSize))
	for _, s := range l.slots {
		p := s.Property
		buf = appendString(buf, p.Name)
		buf = append(buf, byte(p.Kind), byte(p.Field), byte(p.Index))
		buf = appendString(buf, p.Target)
		buf = binary.LittleEndian.AppendUint64(buf, s.Offset)
	}
	return hash.CRC32C(buf)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func validName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("name %q may only contain letters, digits and underscores", name)
		}
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("name %q must not start with an underscore", name)
	}
	return nil
}

func validProperty(p Property) error {
	switch p.Kind {
	case KindField:
		if p.Field < Integer || p.Field > Object {
			return fmt.Errorf("unknown field kind %d", p.Field)
		}
		if p.Target != "" {
			return errors.New("fields have no target")
		}
	case KindSingular, KindPlural:
		if p.Target == "" {
			return errors.New("missing association target")
		}
	case KindPolymorphicSingular, KindPolymorphicPlural:
		if p.Target != "" {
			return errors.New("polymorphic associations have no target")
		}
	default:
		return fmt.Errorf("unknown property kind %d", p.Kind)
	}
	if p.Index > HashIndex {
		return fmt.Errorf("unknown index kind %d", p.Index)
	}
	return nil
}

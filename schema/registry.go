package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownResource is returned when looking up an undeclared resource.
var ErrUnknownResource = errors.New("unknown resource")

// Registry maps resource names to 1-based type ids in declaration order.
// Type id 0 means nil.
type Registry struct {
	layouts []*Layout
	byName  map[string]int
}

// NewRegistry validates every resource and its association targets.
func NewRegistry(resources ...Resource) (*Registry, error) {
	r := &Registry{
		layouts: make([]*Layout, 0, len(resources)),
		byName:  make(map[string]int, len(resources)),
	}
	for _, res := range resources {
		if _, dup := r.byName[res.Name]; dup {
			return nil, &SchemaError{Resource: res.Name, Reason: "declared twice"}
		}
		l, err := NewLayout(res)
		if err != nil {
			return nil, err
		}
		r.byName[res.Name] = len(r.layouts)
		r.layouts = append(r.layouts, l)
	}
	for _, l := range r.layouts {
		for _, s := range l.slots {
			if t := s.Property.Target; t != "" {
				if _, ok := r.byName[t]; !ok {
					return nil, &SchemaError{Resource: l.Name(), Property: s.Property.Name, Reason: fmt.Sprintf("unknown target %q", t)}
				}
			}
		}
	}
	return r, nil
}

// Len returns the number of resources.
func (r *Registry) Len() int { return len(r.layouts) }

// Layouts returns every layout in type id order.
func (r *Registry) Layouts() []*Layout { return r.layouts }

// Layout returns the layout of the named resource.
func (r *Registry) Layout(name string) (*Layout, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r.layouts[i], nil
}

// TypeID returns the type id of the named resource.
func (r *Registry) TypeID(name string) (uint64, error) {
	i, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return uint64(i + 1), nil
}

// Name returns the resource name for a type id.
func (r *Registry) Name(typeID uint64) (string, error) {
	if typeID == 0 || typeID > uint64(len(r.layouts)) {
		return "", fmt.Errorf("%w: type id %d", ErrUnknownResource, typeID)
	}
	return r.layouts[typeID-1].Name(), nil
}

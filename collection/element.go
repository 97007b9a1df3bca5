package collection

import "errors"

var (
	// ErrModifiedDuringIteration is returned by Each when the proxy is
	// structurally modified by the iteration callback.
	ErrModifiedDuringIteration = errors.New("collection modified during iteration")

	// ErrTypeMismatch is returned when adding an element of the wrong
	// resource to a monomorphic proxy.
	ErrTypeMismatch = errors.New("element type does not match collection")
)

// Element is a persistable object that can be referenced from a collection.
// An ID of 0 means the element has not been stored yet.
type Element interface {
	ID() uint64
	TypeName() string

	// Defer registers u to be applied once the element is stored and has
	// an id. Elements that already have an id may apply u immediately.
	// Calling revoke before the element is stored drops u.
	Defer(u Update) (revoke func())
}

// Update is a pending patch waiting for an element id.
type Update interface {
	Apply(id uint64) error
}

// UpdateFunc adapts a function to the Update interface.
type UpdateFunc func(id uint64) error

// Apply calls f(id).
func (f UpdateFunc) Apply(id uint64) error { return f(id) }

// Resolver materializes stored references and maps resource names to type ids.
type Resolver interface {
	// Resolve returns the element id of the resource with typeID.
	Resolve(typeID, id uint64) (Element, error)

	// TypeID returns the type id of the named resource.
	TypeID(name string) (uint64, error)
}

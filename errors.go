package rodb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rodb/collection"
	"github.com/hupe1980/rodb/index"
	"github.com/hupe1980/rodb/internal/manifest"
	"github.com/hupe1980/rodb/schema"
	"github.com/hupe1980/rodb/storage"
)

var (
	// ErrInvalidArgument is returned for out-of-range offsets, wrong value
	// types or unknown properties.
	ErrInvalidArgument = storage.ErrInvalidArgument

	// ErrDatabase is the root of every structural error.
	ErrDatabase = storage.ErrDatabase

	// ErrReadOnly is returned when mutating a database opened read-only.
	ErrReadOnly = storage.ErrReadOnly

	// ErrNotOpen is returned when using a closed database.
	ErrNotOpen = storage.ErrNotOpen

	// ErrNotFound is returned when loading an id outside [1, count].
	ErrNotFound = errors.New("object not found")

	// ErrModifiedDuringIteration is returned when a collection is edited
	// while it is being iterated.
	ErrModifiedDuringIteration = collection.ErrModifiedDuringIteration

	// ErrTypeMismatch is returned when associating an object of the wrong
	// resource.
	ErrTypeMismatch = collection.ErrTypeMismatch

	// ErrUnknownResource is returned for resource names missing from the schema.
	ErrUnknownResource = schema.ErrUnknownResource

	// ErrUnstoredReferences is returned by Close when objects were
	// associated with objects that were never stored.
	ErrUnstoredReferences = fmt.Errorf("%w: not all associations stored", ErrDatabase)

	// ErrIncompatibleSchema is returned by Open when the declared resources
	// do not match the ones the database was created with.
	ErrIncompatibleSchema = fmt.Errorf("%w: incompatible schema", ErrDatabase)

	// ErrExists is returned by Create when the directory already holds a
	// database.
	ErrExists = fmt.Errorf("%w: database already exists", ErrDatabase)
)

// PropertyError reports an access to a property that does not exist or has
// a different kind.
type PropertyError struct {
	Resource string
	Property string
	Reason   string
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Resource, e.Property, e.Reason)
}

func (e *PropertyError) Unwrap() error { return ErrInvalidArgument }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Missing database unification.
	if errors.Is(err, manifest.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, manifest.ErrCorrupt) || errors.Is(err, manifest.ErrIncompatibleVersion) {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	// Index failures keep their store cause; closed indexes mean a closed
	// database.
	if errors.Is(err, index.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrNotOpen, err)
	}
	if errors.Is(err, schema.ErrInvalidSchema) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}

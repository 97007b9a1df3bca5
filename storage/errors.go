package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for out-of-range offsets, lengths,
	// counts or property types. It is a caller precondition violation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDatabase is the root of every structural store error.
	ErrDatabase = errors.New("database error")

	// ErrAlreadyOpen is returned when opening a store that is open.
	ErrAlreadyOpen = fmt.Errorf("%w: store is already open", ErrDatabase)

	// ErrReadOnly is returned when mutating a store opened read-only.
	ErrReadOnly = fmt.Errorf("%w: store is read-only", ErrDatabase)

	// ErrCorrupt is returned when a file fails validation, e.g. its size is
	// not a multiple of the page size.
	ErrCorrupt = fmt.Errorf("%w: corrupt store file", ErrDatabase)

	// ErrNotOpen is returned when using a store that is not open.
	// It does not wrap ErrDatabase.
	ErrNotOpen = errors.New("store is not open")

	// ErrIndex is returned for element offsets or ids outside the stored range.
	ErrIndex = errors.New("index out of range")
)

// DatabaseError attaches the failing operation and file to a store error.
type DatabaseError struct {
	Op   string
	Path string
	Err  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ConsistencyError reports an indirection slot whose self-check index does
// not match its position. It always means offset arithmetic went wrong.
type ConsistencyError struct {
	Path   string
	Offset uint64
	Index  uint64
	Stored uint64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: indirection slot %d+%d holds index %d", e.Path, e.Offset, e.Index, e.Stored)
}

func (e *ConsistencyError) Unwrap() error { return ErrDatabase }

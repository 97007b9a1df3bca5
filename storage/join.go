package storage

import (
	"encoding/binary"
	"fmt"
)

const (
	slotOffset = 0
	slotIndex  = 1
	slotType   = 2
)

// JoinStore is an indirection table mapping (collection offset, index) to a
// referenced element id. Polymorphic stores keep a type id per slot too.
//
// Every slot stores its own position as a self-check; a mismatch is
// reported as a *ConsistencyError.
type JoinStore struct {
	*PagedStore
	polymorphic bool
}

// NewJoinStore creates a closed monomorphic indirection store.
func NewJoinStore(path string, opts Options) *JoinStore {
	return &JoinStore{PagedStore: NewPagedStore(path, 2, UnitSize, opts)}
}

// NewPolyJoinStore creates a closed polymorphic indirection store.
func NewPolyJoinStore(path string, opts Options) *JoinStore {
	return &JoinStore{PagedStore: NewPagedStore(path, 3, UnitSize, opts), polymorphic: true}
}

// Polymorphic reports whether slots carry a type id.
func (s *JoinStore) Polymorphic() bool { return s.polymorphic }

// Allocate reserves size contiguous slots and returns the offset of the
// first. Each slot is initialized with its index and a null reference.
func (s *JoinStore) Allocate(size uint64) (uint64, error) {
	offset, err := s.AllocateElements(size)
	if err != nil {
		return 0, err
	}
	for i := range size {
		base := s.base(offset + i)
		s.put(base, slotOffset, 0)
		s.put(base, slotIndex, i)
		if s.polymorphic {
			s.put(base, slotType, 0)
		}
	}
	return offset, nil
}

// Read returns the id stored at (offset, index).
func (s *JoinStore) Read(offset, index uint64) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	base, err := s.checked(offset, index)
	if err != nil {
		return 0, err
	}
	return s.get(base, slotOffset), nil
}

// ReadTyped returns the id and type id stored at (offset, index) of a
// polymorphic store.
func (s *JoinStore) ReadTyped(offset, index uint64) (id, typeID uint64, err error) {
	if err := s.checkOpen(); err != nil {
		return 0, 0, err
	}
	if !s.polymorphic {
		return 0, 0, fmt.Errorf("%w: %s is not polymorphic", ErrInvalidArgument, s.path)
	}
	base, err := s.checked(offset, index)
	if err != nil {
		return 0, 0, err
	}
	return s.get(base, slotOffset), s.get(base, slotType), nil
}

// ReadType returns the type id stored at (offset, index).
func (s *JoinStore) ReadType(offset, index uint64) (uint64, error) {
	_, t, err := s.ReadTyped(offset, index)
	return t, err
}

// ReadRange returns the ids of size slots starting at offset.
func (s *JoinStore) ReadRange(offset, size uint64) ([]uint64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ids := make([]uint64, size)
	for i := range size {
		base, err := s.checked(offset, i)
		if err != nil {
			return nil, err
		}
		ids[i] = s.get(base, slotOffset)
	}
	return ids, nil
}

// Write stores id at (offset, index) of a monomorphic store.
func (s *JoinStore) Write(offset, index, id uint64) error {
	if s.polymorphic {
		return fmt.Errorf("%w: %s requires a type id", ErrInvalidArgument, s.path)
	}
	return s.write(offset, index, id, 0)
}

// WriteTyped stores id and typeID at (offset, index) of a polymorphic store.
func (s *JoinStore) WriteTyped(offset, index, id, typeID uint64) error {
	if !s.polymorphic {
		return fmt.Errorf("%w: %s is not polymorphic", ErrInvalidArgument, s.path)
	}
	return s.write(offset, index, id, typeID)
}

func (s *JoinStore) write(offset, index, id, typeID uint64) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	base, err := s.checked(offset, index)
	if err != nil {
		return err
	}
	s.put(base, slotOffset, id)
	if s.polymorphic {
		s.put(base, slotType, typeID)
	}
	return nil
}

// checked bounds-checks a slot and verifies its self-check index.
func (s *JoinStore) checked(offset, index uint64) (uint64, error) {
	if offset+index < offset || offset+index >= s.count {
		return 0, fmt.Errorf("%w: slot %d+%d not below %d", ErrInvalidArgument, offset, index, s.count)
	}
	base := s.base(offset + index)
	if stored := s.get(base, slotIndex); stored != index {
		return 0, &ConsistencyError{Path: s.path, Offset: offset, Index: index, Stored: stored}
	}
	return base, nil
}

func (s *JoinStore) base(slot uint64) uint64 {
	return slot * uint64(s.elementSize) * UnitSize
}

func (s *JoinStore) get(base uint64, unit int) uint64 {
	off := base + uint64(unit)*UnitSize
	return binary.LittleEndian.Uint64(s.data[off : off+UnitSize])
}

func (s *JoinStore) put(base uint64, unit int, v uint64) {
	off := base + uint64(unit)*UnitSize
	binary.LittleEndian.PutUint64(s.data[off:off+UnitSize], v)
}

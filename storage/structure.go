package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StructureStore holds fixed-width records of 8-byte property slots
// addressed by (element, property). Values are little-endian on disk.
type StructureStore struct {
	*PagedStore
}

// NewStructureStore creates a closed store whose records have elementSize
// property slots.
func NewStructureStore(path string, elementSize int, opts Options) *StructureStore {
	return &StructureStore{PagedStore: NewPagedStore(path, elementSize, UnitSize, opts)}
}

// ReadInteger reads a signed 64-bit value.
func (s *StructureStore) ReadInteger(element, property uint64) (int64, error) {
	v, err := s.ReadULong(element, property)
	return int64(v), err
}

// ReadFloat reads a 64-bit IEEE-754 value.
func (s *StructureStore) ReadFloat(element, property uint64) (float64, error) {
	v, err := s.ReadULong(element, property)
	return math.Float64frombits(v), err
}

// ReadULong reads an unsigned 64-bit value.
func (s *StructureStore) ReadULong(element, property uint64) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	off, err := s.slot(element, property)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s.data[off : off+UnitSize]), nil
}

// WriteInteger writes a signed 64-bit value.
func (s *StructureStore) WriteInteger(element, property uint64, v int64) error {
	return s.WriteULong(element, property, uint64(v))
}

// WriteFloat writes a 64-bit IEEE-754 value.
func (s *StructureStore) WriteFloat(element, property uint64, v float64) error {
	return s.WriteULong(element, property, math.Float64bits(v))
}

// WriteULong writes an unsigned 64-bit value.
func (s *StructureStore) WriteULong(element, property uint64, v uint64) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	off, err := s.slot(element, property)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s.data[off:off+UnitSize], v)
	return nil
}

// slot returns the byte offset of a property slot.
func (s *StructureStore) slot(element, property uint64) (uint64, error) {
	if element >= s.count {
		return 0, fmt.Errorf("%w: element offset %d not below element count %d", ErrInvalidArgument, element, s.count)
	}
	if property >= uint64(s.elementSize) {
		return 0, fmt.Errorf("%w: property offset %d not below element size %d", ErrInvalidArgument, property, s.elementSize)
	}
	return (element*uint64(s.elementSize) + property) * UnitSize, nil
}

package storage

import "fmt"

// SequenceStore holds variable-length byte runs addressed by
// (offset, length). Its element count is the number of bytes in use.
type SequenceStore struct {
	*PagedStore
}

// NewSequenceStore creates a closed byte store.
func NewSequenceStore(path string, opts Options) *SequenceStore {
	return &SequenceStore{PagedStore: NewPagedStore(path, 1, 1, opts)}
}

// Append allocates len(b) bytes, copies b into them and returns the offset.
func (s *SequenceStore) Append(b []byte) (uint64, error) {
	off, err := s.AllocateElements(uint64(len(b)))
	if err != nil {
		return 0, err
	}
	copy(s.data[off:], b)
	return off, nil
}

// WriteBytes overwrites already allocated bytes starting at offset.
func (s *SequenceStore) WriteBytes(offset uint64, b []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.checkRange(offset, uint64(len(b))); err != nil {
		return err
	}
	copy(s.data[offset:], b)
	return nil
}

// ReadBytes returns a copy of length bytes starting at offset.
func (s *SequenceStore) ReadBytes(offset, length uint64) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	if err := s.checkRange(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])
	return out, nil
}

// ReadString returns length bytes starting at offset as a string.
func (s *SequenceStore) ReadString(offset, length uint64) (string, error) {
	b, err := s.ReadBytes(offset, length)
	return string(b), err
}

func (s *SequenceStore) checkRange(offset, length uint64) error {
	if offset > s.count {
		return fmt.Errorf("%w: byte offset %d beyond %d", ErrIndex, offset, s.count)
	}
	if length > s.count-offset {
		return fmt.Errorf("%w: %d bytes at offset %d exceed %d", ErrInvalidArgument, length, offset, s.count)
	}
	return nil
}

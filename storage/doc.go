// Package storage implements the memory-mapped files rodb persists into.
//
// A PagedStore is one growable file of fixed-size elements. The typed
// stores build on it:
//
//   - StructureStore: records of 8-byte property slots (integers, floats,
//     unsigned longs, ids, offset/count pairs).
//   - SequenceStore: variable-length byte runs for strings and encoded
//     objects.
//   - JoinStore: indirection tables backing plural associations, in a
//     monomorphic and a polymorphic flavour.
//
// Files carry no header. Element counts are recorded by the owner (see
// internal/manifest) and rebound with Restore after Open. Stores are not
// safe for concurrent use.
package storage

// Package mmap provides read-only and read-write memory mappings of store files.
//
// # Usage
//
//	m, err := mmap.Map(file, size, true)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes() // writes go straight to the page cache
//	_ = m.Sync()      // msync(2)
//
// Mappings have a fixed size. Stores that grow their file unmap first,
// truncate the file to the new size and map again, so no caller ever reads
// through a stale mapping.
//
// # Platform Support
//
// Unix only (mmap(2), msync(2), madvise(2) through golang.org/x/sys/unix).
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must not use
// slices returned by Bytes after Close.
package mmap

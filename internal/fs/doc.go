// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open store file (read/write/sync/truncate plus the descriptor
//     needed for memory mapping)
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to make growth, sync or writes fail:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".structures", fs.Fault{FailOnTruncate: true})
//
// Filesystem operations carry no context.Context: they are local and
// non-interruptible at the syscall level.
package fs

// Package manifest implements the database metadata file.
//
// Store files are header-less, so the durable element counts of every
// resource live in a companion file, rodb.meta, next to them.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x524F4442 ("RODB")
//	  Version  (4 bytes) - Format version (currently 1)
//	  Checksum (4 bytes) - CRC32-C of payload
//	  Length   (4 bytes) - Payload length in bytes
//
//	Payload:
//	  CreatedAt, UpdatedAt (8 bytes each) - Unix nanoseconds
//	  PageSize             (8 bytes)      - page size the stores were grown with
//	  NumResources         (4 bytes)
//	  Resources[]                         - name, type id, layout fingerprint, counts
//
// Strings are length-prefixed (2-byte length + bytes).
//
// # Atomic Protocol
//
// Save writes rodb.meta.tmp, syncs it and renames it over rodb.meta, so a
// crash leaves either the old or the new manifest, never a torn one.
package manifest

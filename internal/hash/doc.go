// Package hash provides the CRC32-C helpers used for file checksums,
// schema fingerprints and index bucket selection.
package hash

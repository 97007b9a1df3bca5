// Package compress wraps the block compressors used for index files.
//
// Every encoded block carries its algorithm in a small header, so readers
// never need to know which compression the writer was configured with:
//
//	block, _ := compress.Encode(compress.ZSTD, data)
//	data, _ = compress.Decode(block)
//
// Supported algorithms are LZ4 (github.com/pierrec/lz4/v4), zstd
// (github.com/klauspost/compress/zstd) and snappy (github.com/golang/snappy).
package compress

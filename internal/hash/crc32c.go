package hash

import (
	"encoding/binary"
	"hash/crc32"
	"math"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Update extends a running CRC32-C checksum with data.
func Update(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crc32cTable, data)
}

// Bucket maps data onto [0, n) using its CRC32-C checksum.
func Bucket(data []byte, n int) int {
	if n <= 1 {
		return 0
	}
	return int(CRC32C(data) % uint32(n))
}

// Float64Bucket maps the IEEE-754 bits of f onto [0, n).
// Negative zero is folded onto zero so equal keys share a bucket.
func Float64Bucket(f float64, n int) int {
	if f == 0 {
		f = 0
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	return Bucket(buf[:], n)
}

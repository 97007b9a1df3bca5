package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/rodb/internal/hash"
	"github.com/hupe1980/rodb/storage"
)

// DefaultBuckets is the bucket count of segmented indexes.
const DefaultBuckets = 1001

// ErrInvalidKey is returned for keys of unsupported types.
var ErrInvalidKey = fmt.Errorf("%w: unsupported index key", storage.ErrInvalidArgument)

// Ref is the key of association indexes: the referenced element.
type Ref struct {
	TypeID uint64
	ID     uint64
}

// key tags. The order of tags is the order of encoded keys.
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt
	tagUint
	tagFloat
	tagString
	tagRef
)

// NormalizeKey widens v to one of nil, bool, int64, uint64, float64,
// string or Ref. Negative zero and NaN floats are canonicalized.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return k, nil
	case int:
		return int64(k), nil
	case int8:
		return int64(k), nil
	case int16:
		return int64(k), nil
	case int32:
		return int64(k), nil
	case int64:
		return k, nil
	case uint:
		return uint64(k), nil
	case uint8:
		return uint64(k), nil
	case uint16:
		return uint64(k), nil
	case uint32:
		return uint64(k), nil
	case uint64:
		return k, nil
	case float32:
		return canonicalFloat(float64(k)), nil
	case float64:
		return canonicalFloat(k), nil
	case string:
		return k, nil
	case []byte:
		return string(k), nil
	case Ref:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKey, v)
	}
}

func canonicalFloat(f float64) float64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return math.NaN()
	default:
		return f
	}
}

// EncodeKey returns the type-tagged binary form of a normalized key.
// Integers are big-endian with the sign bit flipped so that encoded keys
// of one type sort like their values.
func EncodeKey(k any) ([]byte, error) {
	switch v := k.(type) {
	case nil:
		return []byte{tagNil}, nil
	case bool:
		if v {
			return []byte{tagTrue}, nil
		}
		return []byte{tagFalse}, nil
	case int64:
		return binary.BigEndian.AppendUint64([]byte{tagInt}, uint64(v)^(1<<63)), nil
	case uint64:
		return binary.BigEndian.AppendUint64([]byte{tagUint}, v), nil
	case float64:
		return binary.BigEndian.AppendUint64([]byte{tagFloat}, math.Float64bits(v)), nil
	case string:
		return append([]byte{tagString}, v...), nil
	case Ref:
		b := binary.BigEndian.AppendUint64([]byte{tagRef}, v.TypeID)
		return binary.BigEndian.AppendUint64(b, v.ID), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKey, k)
	}
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty encoded key", ErrInvalidKey)
	}
	body := b[1:]
	fixed := func(n int) error {
		if len(body) != n {
			return fmt.Errorf("%w: encoded key of tag %d has %d bytes", ErrInvalidKey, b[0], len(body))
		}
		return nil
	}
	switch b[0] {
	case tagNil:
		return nil, fixed(0)
	case tagFalse:
		return false, fixed(0)
	case tagTrue:
		return true, fixed(0)
	case tagInt:
		if err := fixed(8); err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(body) ^ (1 << 63)), nil
	case tagUint:
		if err := fixed(8); err != nil {
			return nil, err
		}
		return binary.BigEndian.Uint64(body), nil
	case tagFloat:
		if err := fixed(8); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(body)), nil
	case tagString:
		return string(body), nil
	case tagRef:
		if err := fixed(16); err != nil {
			return nil, err
		}
		return Ref{TypeID: binary.BigEndian.Uint64(body), ID: binary.BigEndian.Uint64(body[8:])}, nil
	default:
		return nil, fmt.Errorf("%w: unknown key tag %d", ErrInvalidKey, b[0])
	}
}

// Bucket maps a normalized key to one of n buckets: nil to 0, false to 1,
// true to 2, integers and ids to their absolute value mod n, floats and
// strings to a CRC32-C hash mod n.
func Bucket(k any, n int) int {
	if n <= 0 {
		return 0
	}
	switch v := k.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 2 % n
		}
		return 1 % n
	case int64:
		abs := uint64(v)
		if v < 0 {
			abs = -abs
		}
		return int(abs % uint64(n))
	case uint64:
		return int(v % uint64(n))
	case float64:
		return hash.Float64Bucket(v, n)
	case string:
		return hash.Bucket([]byte(v), n)
	case Ref:
		return int(v.ID % uint64(n))
	default:
		return 0
	}
}

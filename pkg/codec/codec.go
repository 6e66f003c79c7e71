// Package codec holds the key and value serializers used by the tree, and
// the comparers to order keys with.
package codec

import (
	"encoding/binary"
	"strings"

	"go-blockdb/pkg/customerrors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

var bin = binary.LittleEndian

// MaxStringSize is the longest string the string serializers accept.
const MaxStringSize = 16 * 1024

// Serializer converts values of type T to bytes and back.
type Serializer[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)

	// IsFixedSize reports whether every marshaled value has Size() bytes.
	IsFixedSize() bool

	// Size returns the marshaled size of fixed size values, or -1.
	Size() int
}

// Comparer returns a negative number, zero or a positive number when a is
// less than, equal to or greater than b.
type Comparer[T any] func(a, b T) int

// Compare orders values with the builtin operators.
func Compare[T constraints.Ordered](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func checkSize(data []byte, size int) error {
	if len(data) != size {
		return errors.Wrapf(customerrors.ErrDataIntegrity, "expected %d bytes, got %d", size, len(data))
	}
	return nil
}

type Int32 struct{}

func (Int32) Marshal(v int32) ([]byte, error) {
	data := make([]byte, 4)
	bin.PutUint32(data, uint32(v))
	return data, nil
}

func (Int32) Unmarshal(data []byte) (int32, error) {
	if err := checkSize(data, 4); err != nil {
		return 0, err
	}
	return int32(bin.Uint32(data)), nil
}

func (Int32) IsFixedSize() bool { return true }
func (Int32) Size() int         { return 4 }

type Uint32 struct{}

func (Uint32) Marshal(v uint32) ([]byte, error) {
	data := make([]byte, 4)
	bin.PutUint32(data, v)
	return data, nil
}

func (Uint32) Unmarshal(data []byte) (uint32, error) {
	if err := checkSize(data, 4); err != nil {
		return 0, err
	}
	return bin.Uint32(data), nil
}

func (Uint32) IsFixedSize() bool { return true }
func (Uint32) Size() int         { return 4 }

type Int64 struct{}

func (Int64) Marshal(v int64) ([]byte, error) {
	data := make([]byte, 8)
	bin.PutUint64(data, uint64(v))
	return data, nil
}

func (Int64) Unmarshal(data []byte) (int64, error) {
	if err := checkSize(data, 8); err != nil {
		return 0, err
	}
	return int64(bin.Uint64(data)), nil
}

func (Int64) IsFixedSize() bool { return true }
func (Int64) Size() int         { return 8 }

// String stores the raw utf-8 bytes. It is a variable size serializer.
type String struct{}

func (String) Marshal(v string) ([]byte, error) {
	if len(v) > MaxStringSize {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "string of %d bytes is too long", len(v))
	}
	return []byte(v), nil
}

func (String) Unmarshal(data []byte) (string, error) {
	if len(data) > MaxStringSize {
		return "", errors.Wrapf(customerrors.ErrDataIntegrity, "string of %d bytes is too long", len(data))
	}
	return string(data), nil
}

func (String) IsFixedSize() bool { return false }
func (String) Size() int         { return -1 }

// UUID stores the 16 raw bytes of the id.
type UUID struct{}

func (UUID) Marshal(v uuid.UUID) ([]byte, error) {
	return v.MarshalBinary()
}

func (UUID) Unmarshal(data []byte) (uuid.UUID, error) {
	if err := checkSize(data, 16); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(data)
}

func (UUID) IsFixedSize() bool { return true }
func (UUID) Size() int         { return 16 }

// CompareUUID orders ids by their bytes.
func CompareUUID(a, b uuid.UUID) int {
	for i := range a {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// StringInt is a composite key of a string and an integer.
type StringInt struct {
	S string
	I int32
}

// CompareStringInt orders by S, then by I.
func CompareStringInt(a, b StringInt) int {
	if c := strings.Compare(a.S, b.S); c != 0 {
		return c
	}
	return Compare(a.I, b.I)
}

// StringIntSerializer encodes a StringInt as
// len(S) (4 bytes) | S | I (4 bytes).
type StringIntSerializer struct{}

func (StringIntSerializer) Marshal(v StringInt) ([]byte, error) {
	if len(v.S) > MaxStringSize {
		return nil, errors.Wrapf(customerrors.ErrDataIntegrity, "string of %d bytes is too long", len(v.S))
	}

	data := make([]byte, 4+len(v.S)+4)
	bin.PutUint32(data[0:4], uint32(len(v.S)))
	copy(data[4:], v.S)
	bin.PutUint32(data[4+len(v.S):], uint32(v.I))
	return data, nil
}

func (StringIntSerializer) Unmarshal(data []byte) (StringInt, error) {
	if len(data) < 8 {
		return StringInt{}, errors.Wrapf(customerrors.ErrDataIntegrity, "string-int key of %d bytes", len(data))
	}

	n := int(bin.Uint32(data[0:4]))
	if n > MaxStringSize {
		return StringInt{}, errors.Wrapf(customerrors.ErrDataIntegrity, "string of %d bytes is too long", n)
	}
	if err := checkSize(data, 4+n+4); err != nil {
		return StringInt{}, err
	}

	return StringInt{
		S: string(data[4 : 4+n]),
		I: int32(bin.Uint32(data[4+n:])),
	}, nil
}

func (StringIntSerializer) IsFixedSize() bool { return false }
func (StringIntSerializer) Size() int         { return -1 }

// Package serde maps named key codecs to their serializer, deserializer,
// and concrete key type. The interactive query path uses it twice: once to
// convert the textual key carried over the wire into a typed key, and once
// to serialize that key into the bytes the runtime partitions on.
package serde

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"

	"github.com/c360/streampilot/errors"
)

// Serializer turns a typed key into its wire bytes.
type Serializer func(key any) ([]byte, error)

// Deserializer turns wire bytes back into a typed key.
type Deserializer func(data []byte) (any, error)

// Entry binds a codec name to its serializer, deserializer, and the
// concrete type the deserializer produces. Entries are immutable once
// registered.
type Entry struct {
	Name         string
	Serializer   Serializer
	Deserializer Deserializer
	KeyType      reflect.Type
}

// Built-in codec names.
const (
	StringSerde  = "string"
	LongSerde    = "long"
	IntSerde     = "int"
	Float64Serde = "float64"
	UUIDSerde    = "uuid"
	BytesSerde   = "bytes"
)

func typeMismatch(name string, want string, got any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%s serde expects %s, got %T", name, want, got),
		"Entry", "Serialize", "check key type")
}

func stringEntry() Entry {
	return Entry{
		Name: StringSerde,
		Serializer: func(key any) ([]byte, error) {
			s, ok := key.(string)
			if !ok {
				return nil, typeMismatch(StringSerde, "string", key)
			}
			return []byte(s), nil
		},
		Deserializer: func(data []byte) (any, error) {
			return string(data), nil
		},
		KeyType: reflect.TypeOf(""),
	}
}

func longEntry() Entry {
	return Entry{
		Name: LongSerde,
		Serializer: func(key any) ([]byte, error) {
			n, ok := key.(int64)
			if !ok {
				return nil, typeMismatch(LongSerde, "int64", key)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(n))
			return buf, nil
		},
		Deserializer: func(data []byte) (any, error) {
			if len(data) != 8 {
				return nil, errors.WrapInvalid(
					fmt.Errorf("long key must be 8 bytes, got %d", len(data)),
					"Entry", "Deserialize", "decode long")
			}
			return int64(binary.BigEndian.Uint64(data)), nil
		},
		KeyType: reflect.TypeOf(int64(0)),
	}
}

func intEntry() Entry {
	return Entry{
		Name: IntSerde,
		Serializer: func(key any) ([]byte, error) {
			n, ok := key.(int32)
			if !ok {
				return nil, typeMismatch(IntSerde, "int32", key)
			}
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, uint32(n))
			return buf, nil
		},
		Deserializer: func(data []byte) (any, error) {
			if len(data) != 4 {
				return nil, errors.WrapInvalid(
					fmt.Errorf("int key must be 4 bytes, got %d", len(data)),
					"Entry", "Deserialize", "decode int")
			}
			return int32(binary.BigEndian.Uint32(data)), nil
		},
		KeyType: reflect.TypeOf(int32(0)),
	}
}

func float64Entry() Entry {
	return Entry{
		Name: Float64Serde,
		Serializer: func(key any) ([]byte, error) {
			f, ok := key.(float64)
			if !ok {
				return nil, typeMismatch(Float64Serde, "float64", key)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, math.Float64bits(f))
			return buf, nil
		},
		Deserializer: func(data []byte) (any, error) {
			if len(data) != 8 {
				return nil, errors.WrapInvalid(
					fmt.Errorf("float64 key must be 8 bytes, got %d", len(data)),
					"Entry", "Deserialize", "decode float64")
			}
			return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
		},
		KeyType: reflect.TypeOf(float64(0)),
	}
}

func uuidEntry() Entry {
	return Entry{
		Name: UUIDSerde,
		Serializer: func(key any) ([]byte, error) {
			id, ok := key.(uuid.UUID)
			if !ok {
				return nil, typeMismatch(UUIDSerde, "uuid.UUID", key)
			}
			return id[:], nil
		},
		Deserializer: func(data []byte) (any, error) {
			id, err := uuid.FromBytes(data)
			if err != nil {
				return nil, errors.WrapInvalid(err, "Entry", "Deserialize", "decode uuid")
			}
			return id, nil
		},
		KeyType: reflect.TypeOf(uuid.UUID{}),
	}
}

func bytesEntry() Entry {
	return Entry{
		Name: BytesSerde,
		Serializer: func(key any) ([]byte, error) {
			b, ok := key.([]byte)
			if !ok {
				return nil, typeMismatch(BytesSerde, "[]byte", key)
			}
			return b, nil
		},
		Deserializer: func(data []byte) (any, error) {
			return data, nil
		},
		KeyType: reflect.TypeOf([]byte(nil)),
	}
}

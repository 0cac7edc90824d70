// Package codec turns values into cache payloads and back.
//
// A Codec decides the shape from the decode target: pass *T to read a single
// value and *[]T to read a sequence. Implementations must be safe for
// concurrent use.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Codec encodes values for storage and decodes stored payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name identifies the codec in config and logs.
	Name() string
}

// ErrUnknownCodec is returned by Lookup for an unregistered name.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Lookup returns the codec registered under name.
// Empty name selects JSON.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR(false)
	case "cbor-det", "cbor_deterministic":
		return NewCBOR(true)
	case "protobuf", "proto":
		return Protobuf{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR is a Codec that serializes values using fxamacker/cbor.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// Use deterministic=true for canonical encoding (RFC 8949 Core Deterministic)
// when you need byte-for-byte stable outputs.
// Time values are encoded as RFC3339Nano.
type CBOR struct {
	enc           cbor.EncMode
	dec           cbor.DecMode
	deterministic bool
}

var _ Codec = CBOR{}

// NewCBOR constructs a CBOR codec.
//   - deterministic uses CoreDetEncOptions (RFC 8949).
//   - otherwise PreferredUnsortedEncOptions.
func NewCBOR(deterministic bool) (CBOR, error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm, deterministic: deterministic}, nil
}

// MustCBOR is like NewCBOR but panics on error.
// Handy for package-level variables in tests.
func MustCBOR(deterministic bool) CBOR {
	c, err := NewCBOR(deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR) Name() string {
	if c.deterministic {
		return "cbor-det"
	}
	return "cbor"
}

// Marshal encodes v using the configured EncMode.
func (c CBOR) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

// Unmarshal decodes data into v using the configured DecMode.
func (c CBOR) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size at decode time.
// Marshal is forwarded to Inner unchanged. MaxDecode <= 0 disables the check.
//
// Typical use: protect against oversized entries written into a shared cache
// by another service.
type Limit struct {
	// Inner is the underlying codec being wrapped. It must be set.
	Inner Codec
	// MaxDecode is the maximum permitted payload length in bytes.
	MaxDecode int
}

var _ Codec = Limit{}

func (c Limit) Name() string                  { return c.Inner.Name() }
func (c Limit) Marshal(v any) ([]byte, error) { return c.Inner.Marshal(v) }

func (c Limit) Unmarshal(data []byte, v any) error {
	if c.MaxDecode > 0 && len(data) > c.MaxDecode {
		return fmt.Errorf("payload too large: %d > %d", len(data), c.MaxDecode)
	}
	return c.Inner.Unmarshal(data, v)
}

package lazycache

import (
	"github.com/cockroachdb/errors"
)

// Error kinds. Every failure inside a Session or the Scheduler is marked with
// one of these, logged, reported to Hooks and then downgraded to a miss.
var (
	ErrStoreUnavailable = errors.New("lazycache: store unavailable")
	ErrEncode           = errors.New("lazycache: encode failed")
	ErrDecode           = errors.New("lazycache: decode failed")
	ErrProducer         = errors.New("lazycache: producer failed")

	// Caller misuse.
	ErrModeConflict = errors.New("lazycache: session already bound in another mode")
	ErrUnbound      = errors.New("lazycache: session has no bound key")

	ErrNilStore = errors.New("lazycache: Options.Store is required")
)

func mark(err, kind error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), kind)
}

// ErrorKind returns a short label for err suitable for logs and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoreUnavailable):
		return "store"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrProducer):
		return "producer"
	case errors.Is(err, ErrModeConflict):
		return "mode_conflict"
	case errors.Is(err, ErrUnbound):
		return "unbound"
	default:
		return "unknown"
	}
}

package hlscache

import "errors"

// Kind classifies a core failure the way spec.md §7 requires HTTP handlers
// to map onto status codes, without coupling the core to net/http.
type Kind int

const (
	KindUnknown Kind = iota
	KindItemNotFound
	KindSourceMissing
	KindTranscoderUnavailable
	KindReadinessTimeout
	KindTranscoderExitedWithoutOutput
	KindPathEscape
	KindSegmentNotFound
)

// Error wraps an underlying cause with a Kind the caller can switch on.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err isn't (or doesn't
// wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrTimeoutElapsed = errors.New("transcoder job exceeded its hard timeout")
)

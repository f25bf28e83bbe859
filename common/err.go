package common

import "github.com/pkg/errors"

// Sentinel errors shared across the ambient stack and the packages built on
// top of it (result, channel, supervisor, client, server). Wrapped with
// errors.WithStack at the point of return so callers keep a trace back to
// where the condition was detected, not just where it originated.
var (
	ClosedError   = errors.New("COMMON:CLOSED")
	CanceledError = errors.New("COMMON:CANCELED")
	TimeoutError  = errors.New("COMMON:TIMEOUT")
)

func RunIf(fn func()) func(v interface{}) {
	return func(v interface{}) {
		if v != nil {
			fn()
		}
	}
}

func Or(l error, r error) error {
	if l != nil {
		return l
	} else {
		return r
	}
}

// IsCanceled reports whether cancel has already fired, without blocking.
func IsCanceled(cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

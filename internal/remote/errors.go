package remote

import (
	"errors"
	"fmt"
)

// TransportError is a submission that never produced a usable answer:
// the request failed, the backend answered 5xx or an unreadable body, or
// the circuit breaker refused the call.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response arrived
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submit %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submit %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// errServerStatus marks 5xx answers so the breaker counts them.
var errServerStatus = errors.New("server error")

// internal/stream/errors.go
package stream

import (
	"errors"
	"fmt"
)

// ErrEmptyBody reports a successful response that carried no readable body.
var ErrEmptyBody = errors.New("empty response body")

// TransportError is a terminal failure of the HTTP exchange: a non-2xx status,
// an aborted or timed-out request, a read error or an empty body.
type TransportError struct {
	// Op names the stage that failed: "request", "status", "read" or "body".
	Op string
	// StatusCode is set for Op "status".
	StatusCode int
	// Message is the upstream's own error text, when it sent one.
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Op == "status" && e.Message != "":
		return fmt.Sprintf("search failed: status %d: %s", e.StatusCode, e.Message)
	case e.Op == "status":
		return fmt.Sprintf("search failed: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("search failed: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("search failed: %s", e.Op)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Package clients provides the instrumented HTTP client used for outbound
// calls such as the TRMNL webhook.
package clients

import (
	"errors"
	"fmt"
	"net/http"
)

// Client errors are infrastructure failures. The ACL translates them into
// domain errors before they leave the adapter layer.
var (
	// ErrCircuitOpen is returned without sending anything while the circuit
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last attempt's failure once every
	// attempt has failed.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// StatusError is the failure of an attempt answered with a 5xx status.
// The response body has already been closed.
type StatusError struct {
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode extracts the status of a StatusError anywhere in err's chain,
// or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	return 0
}

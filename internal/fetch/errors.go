package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")

	// ErrUnexpectedStatus is recorded when the server answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrInvalidProxyAddress is returned when the proxy address is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// TransportError is returned once all attempts for a request have failed.
type TransportError struct {
	// Method and URL identify the request.
	Method string
	URL    string

	// Attempts is the number of attempts made.
	Attempts int

	// StatusCode is the status of the last response, or 0 when none was received.
	StatusCode int

	// Err is the failure of the last attempt.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) true for every TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

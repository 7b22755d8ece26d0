package remote

import (
	"errors"
	"fmt"
)

// TransportError means the batch never got a response: the endpoint was
// unreachable, the connection broke, or the request timed out.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("TRANSPORT: %v", e.Err)
	}
	return fmt.Sprintf("TRANSPORT: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerRejectedError means the endpoint answered with a non-2xx status.
// The whole batch is considered rejected.
type ServerRejectedError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ServerRejectedError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("SERVER_REJECTED: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("SERVER_REJECTED: %s: status %d", e.Endpoint, e.StatusCode)
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsServerRejectedError reports whether err is or wraps a *ServerRejectedError.
func IsServerRejectedError(err error) bool {
	var se *ServerRejectedError
	return errors.As(err, &se)
}

// IsRetryable reports whether a later sync attempt may succeed.
// Both batch failure kinds leave local state untouched, so both are.
func IsRetryable(err error) bool {
	return IsTransportError(err) || IsServerRejectedError(err)
}

package relay

import "fmt"

// BadRequestError is a malformed or incorrectly signed relay request.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return "Malformed request: " + e.Reason
}

// SendFailure is returned by Client when the relay does not answer 204.
// Detail holds the response body, or the transport error text when no
// response arrived (StatusCode is then 0).
type SendFailure struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *SendFailure) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay request failed: %s", e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("relay returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned HTTP %d: %s", e.StatusCode, e.Detail)
}

func (e *SendFailure) Unwrap() error {
	return e.Err
}

// Permanent reports whether resending the same message cannot succeed.
func (e *SendFailure) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

package wire

import "fmt"

// StatusError carries a protocol status across an API boundary as a
// Go error. The hub uses it for proxy-chain blocks; the client surface
// re-materializes error responses as StatusError so callers can branch
// on the status kind.
type StatusError struct {
	Status  Status
	Message string
}

// Error returns the status name and message.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// NewStatusError builds a StatusError.
func NewStatusError(status Status, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}

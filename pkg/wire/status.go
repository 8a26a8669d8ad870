package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates an unknown endpoint, cluster, attribute,
	// command, or subscription.
	StatusNotFound Status = 1

	// StatusAlreadyRegistered indicates a registration race was lost.
	StatusAlreadyRegistered Status = 2

	// StatusUnauthorized indicates an access control denial.
	StatusUnauthorized Status = 3

	// StatusTimeout indicates the operation deadline was exceeded.
	StatusTimeout Status = 4

	// StatusUnreadable indicates an attempt to read a non-readable attribute.
	StatusUnreadable Status = 5

	// StatusUnwritable indicates an attempt to write a non-writable attribute.
	StatusUnwritable Status = 6

	// StatusValidationFailed indicates the value violates the attribute schema.
	StatusValidationFailed Status = 7

	// StatusHandlerError indicates an endpoint-side failure; detail is opaque.
	StatusHandlerError Status = 8

	// StatusDisconnected indicates the target's connection was lost.
	StatusDisconnected Status = 9

	// StatusMalformed indicates the envelope failed structural validation.
	// Connection-level: the receiving side closes or resets the connection.
	StatusMalformed Status = 10

	// StatusResourceExhausted indicates a hub-side capacity limit was hit.
	StatusResourceExhausted Status = 11
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusAlreadyRegistered:
		return "ALREADY_REGISTERED"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusUnreadable:
		return "UNREADABLE"
	case StatusUnwritable:
		return "UNWRITABLE"
	case StatusValidationFailed:
		return "VALIDATION_FAILED"
	case StatusHandlerError:
		return "HANDLER_ERROR"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusMalformed:
		return "MALFORMED"
	case StatusResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

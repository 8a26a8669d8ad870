package wire

// Kind identifies the operation carried by an envelope.
type Kind uint8

const (
	// KindRead requests the current value of an attribute.
	KindRead Kind = 1

	// KindWrite requests a new value for an attribute.
	KindWrite Kind = 2

	// KindInvoke requests execution of a command.
	KindInvoke Kind = 3

	// KindSubscribe creates a subscription on an attribute or event.
	KindSubscribe Kind = 4

	// KindUnsubscribe cancels a subscription.
	KindUnsubscribe Kind = 5

	// KindNotify carries a subscription notification (hub to subscriber).
	KindNotify Kind = 6

	// KindResponse carries a successful response to a request.
	KindResponse Kind = 7

	// KindError carries a failure response to a request.
	KindError Kind = 8
)

// IsValid returns true for a known kind.
func (k Kind) IsValid() bool {
	return k >= KindRead && k <= KindError
}

// IsRequest returns true for kinds that expect a response.
func (k Kind) IsRequest() bool {
	switch k {
	case KindRead, KindWrite, KindInvoke, KindSubscribe, KindUnsubscribe:
		return true
	default:
		return false
	}
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "READ"
	case KindWrite:
		return "WRITE"
	case KindInvoke:
		return "INVOKE"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindUnsubscribe:
		return "UNSUBSCRIBE"
	case KindNotify:
		return "NOTIFY"
	case KindResponse:
		return "RESPONSE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

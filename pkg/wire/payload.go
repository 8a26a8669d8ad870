package wire

// ReadResult is the payload of a response to a Read request.
//
// CBOR encoding:
//
//	{
//	  1: value,     // attribute value
//	  2: revision   // uint64: attribute revision at read time
//	}
type ReadResult struct {
	Value    any    `cbor:"1,keyasint"`
	Revision uint64 `cbor:"2,keyasint"`
}

// WriteRequest is the payload of a Write request.
type WriteRequest struct {
	Value any `cbor:"1,keyasint"`
}

// WriteResult is the payload of a response to a Write request.
type WriteResult struct {
	Revision uint64 `cbor:"1,keyasint"`
}

// InvokeRequest is the payload of an Invoke request.
//
// CBOR encoding:
//
//	{
//	  1: params,     // command-specific parameters
//	  2: deadlineMs  // uint32: caller deadline in milliseconds (advisory)
//	}
type InvokeRequest struct {
	Params     any    `cbor:"1,keyasint,omitempty"`
	DeadlineMs uint32 `cbor:"2,keyasint,omitempty"`
}

// InvokeResult is the payload of a response to an Invoke request.
// Structure is command-specific.
type InvokeResult struct {
	Result any `cbor:"1,keyasint,omitempty"`
}

// SubscribeTarget distinguishes attribute and event subscriptions.
type SubscribeTarget uint8

const (
	// TargetAttribute subscribes to attribute value changes.
	TargetAttribute SubscribeTarget = 1

	// TargetEvent subscribes to event emissions.
	TargetEvent SubscribeTarget = 2
)

// SubscribeRequest is the payload of a Subscribe request.
//
// CBOR encoding:
//
//	{
//	  1: targetKind,    // uint8: 1=attribute, 2=event
//	  2: minIntervalMs, // uint32: 0 = on-change (deliver every revision)
//	  3: leaseMs        // uint32: liveness lease duration
//	}
type SubscribeRequest struct {
	TargetKind    SubscribeTarget `cbor:"1,keyasint"`
	MinIntervalMs uint32          `cbor:"2,keyasint,omitempty"`
	LeaseMs       uint32          `cbor:"3,keyasint,omitempty"`
}

// SubscribeResult is the payload of a response to a Subscribe request.
// For attribute subscriptions it carries the priming value.
type SubscribeResult struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
	Value          any    `cbor:"2,keyasint,omitempty"`
	Revision       uint64 `cbor:"3,keyasint,omitempty"`
}

// UnsubscribeRequest is the payload of an Unsubscribe request.
type UnsubscribeRequest struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
}

// NotifyPayload is the payload of a Notify envelope. For attribute
// notifications Revision is the attribute revision; for events the
// envelope Sequence carries the per-endpoint event counter.
type NotifyPayload struct {
	SubscriptionID uint32 `cbor:"1,keyasint"`
	Value          any    `cbor:"2,keyasint,omitempty"`
	Revision       uint64 `cbor:"3,keyasint,omitempty"`
}

// ErrorPayload is the payload of an Error envelope.
type ErrorPayload struct {
	Status  Status `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

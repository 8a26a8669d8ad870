package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CorrelationID 0 is reserved: notifications are not correlated with a
// request and carry id 0.
const NotifyCorrelationID uint32 = 0

// Target addresses a member (attribute, command, or event) of a cluster
// on an endpoint.
//
// CBOR encoding:
//
//	{
//	  1: endpointId,  // uint16
//	  2: clusterId,   // uint16
//	  3: memberId     // uint16: attribute, command, or event id
//	}
type Target struct {
	Endpoint uint16 `cbor:"1,keyasint"`
	Cluster  uint16 `cbor:"2,keyasint"`
	Member   uint16 `cbor:"3,keyasint"`
}

// String returns the target as "endpoint/cluster/member".
func (t Target) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Endpoint, t.Cluster, t.Member)
}

// Envelope is the wire-agnostic unit of communication.
//
// CBOR encoding:
//
//	{
//	  1: correlationId,  // uint32: 0 = notification
//	  2: source,         // text: fabric-qualified sender identity
//	  3: target,         // Target map
//	  4: kind,           // uint8: see Kind
//	  5: payload,        // opaque CBOR payload (operation-specific)
//	  6: sequence        // uint64: event/notification ordering counter
//	}
type Envelope struct {
	CorrelationID uint32          `cbor:"1,keyasint"`
	Source        string          `cbor:"2,keyasint,omitempty"`
	Target        Target          `cbor:"3,keyasint"`
	Kind          Kind            `cbor:"4,keyasint"`
	Payload       cbor.RawMessage `cbor:"5,keyasint,omitempty"`
	Sequence      uint64          `cbor:"6,keyasint,omitempty"`
}

// Validate checks the envelope's structural invariants.
func (e *Envelope) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrMalformedEnvelope, e.Kind)
	}
	if e.Kind.IsRequest() && e.CorrelationID == NotifyCorrelationID {
		return fmt.Errorf("%w: correlation id 0 on %s request", ErrMalformedEnvelope, e.Kind)
	}
	if e.Kind == KindNotify && e.CorrelationID != NotifyCorrelationID {
		return fmt.Errorf("%w: correlation id %d on notification", ErrMalformedEnvelope, e.CorrelationID)
	}
	return nil
}

// IsNotification returns true for notification envelopes.
func (e *Envelope) IsNotification() bool {
	return e.Kind == KindNotify
}

// Reply builds a response envelope addressed back to the requester,
// preserving the correlation id and target.
func (e *Envelope) Reply(payload cbor.RawMessage) *Envelope {
	return &Envelope{
		CorrelationID: e.CorrelationID,
		Target:        e.Target,
		Kind:          KindResponse,
		Payload:       payload,
	}
}

// ReplyError builds an error response preserving the correlation id.
func (e *Envelope) ReplyError(status Status, message string) *Envelope {
	payload, _ := Marshal(&ErrorPayload{Status: status, Message: message})
	return &Envelope{
		CorrelationID: e.CorrelationID,
		Target:        e.Target,
		Kind:          KindError,
		Payload:       payload,
	}
}

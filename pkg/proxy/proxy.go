// Package proxy implements ordered intermediary chains in front of
// endpoints.
//
// A proxy intercepts a request envelope before it reaches the store or
// dispatcher and decides its fate: forward unchanged, transform and
// forward, answer directly from local state, fan out to additional
// targets, or block. Chains are ordered per target filter; the
// correlation id survives the whole chain so responses always route
// back to the original caller.
package proxy

import (
	"errors"

	"github.com/interax-protocol/interax-go/pkg/wire"
)

// Proxy errors.
var (
	ErrProxyNotFound = errors.New("proxy not found")
)

// Verdict is a proxy's decision for one intercepted envelope.
type Verdict uint8

const (
	// VerdictForward passes the envelope on unchanged.
	VerdictForward Verdict = iota

	// VerdictTransform replaces the envelope and passes it on.
	VerdictTransform

	// VerdictAnswer responds directly without forwarding. Reads only.
	VerdictAnswer

	// VerdictBroadcast forwards and additionally fans the envelope
	// out to extra targets.
	VerdictBroadcast

	// VerdictBlock stops the envelope and returns an error response.
	VerdictBlock
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictForward:
		return "FORWARD"
	case VerdictTransform:
		return "TRANSFORM"
	case VerdictAnswer:
		return "ANSWER"
	case VerdictBroadcast:
		return "BROADCAST"
	case VerdictBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// Result carries a proxy's verdict and its verdict-specific data.
type Result struct {
	Verdict Verdict

	// Envelope replaces the in-flight envelope for VerdictTransform.
	Envelope *wire.Envelope

	// Answer is the direct response for VerdictAnswer.
	Answer *wire.Envelope

	// Targets are the extra destinations for VerdictBroadcast.
	Targets []wire.Target

	// Status and Reason describe a VerdictBlock.
	Status wire.Status
	Reason string
}

// Forward passes the envelope on unchanged.
func Forward() Result {
	return Result{Verdict: VerdictForward}
}

// Transform replaces the in-flight envelope.
func Transform(env *wire.Envelope) Result {
	return Result{Verdict: VerdictTransform, Envelope: env}
}

// Answer responds directly without forwarding.
func Answer(env *wire.Envelope) Result {
	return Result{Verdict: VerdictAnswer, Answer: env}
}

// Broadcast forwards and fans out to the extra targets.
func Broadcast(targets ...wire.Target) Result {
	return Result{Verdict: VerdictBroadcast, Targets: targets}
}

// Block stops the envelope with an error status.
func Block(status wire.Status, reason string) Result {
	return Result{Verdict: VerdictBlock, Status: status, Reason: reason}
}

// Proxy intercepts request envelopes for the targets its filter
// covers. Intercept must not block; a proxy needing remote state
// should answer from a local cache or forward.
type Proxy interface {
	Intercept(env *wire.Envelope) Result
}

// ResponseObserver is implemented by proxies that also want to see
// response envelopes flowing back through their chain, cache fills
// being the typical use.
type ResponseObserver interface {
	ObserveResponse(request, response *wire.Envelope)
}

// Func adapts a plain function to the Proxy interface.
type Func func(env *wire.Envelope) Result

// Intercept calls the function.
func (f Func) Intercept(env *wire.Envelope) Result {
	return f(env)
}

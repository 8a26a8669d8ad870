package hub

import (
	"errors"

	"github.com/interax-protocol/interax-go/pkg/dispatch"
	"github.com/interax-protocol/interax-go/pkg/lease"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/registry"
	"github.com/interax-protocol/interax-go/pkg/store"
	"github.com/interax-protocol/interax-go/pkg/subscription"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// Hub-level errors.
var (
	// ErrUnauthorized is an ACL denial. Never retried with the same
	// identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBlocked is a proxy-chain block.
	ErrBlocked = errors.New("blocked by proxy")
)

// StatusOf maps an error from any hub component to its wire status.
// The mapping is total: component sentinels keep their distinguishing
// kind across the boundary.
func StatusOf(err error) wire.Status {
	if err == nil {
		return wire.StatusSuccess
	}

	var statusErr *wire.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	var handlerErr *dispatch.HandlerError
	if errors.As(err, &handlerErr) {
		return wire.StatusHandlerError
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return wire.StatusUnauthorized
	case errors.Is(err, dispatch.ErrTimeout):
		return wire.StatusTimeout
	case errors.Is(err, dispatch.ErrCancelled):
		return wire.StatusDisconnected
	case errors.Is(err, store.ErrUnreadable):
		return wire.StatusUnreadable
	case errors.Is(err, store.ErrUnwritable):
		return wire.StatusUnwritable
	case errors.Is(err, store.ErrValidationFailed),
		errors.Is(err, model.ErrInvalidParameters),
		errors.Is(err, lease.ErrInvalidTTL),
		errors.Is(err, subscription.ErrInvalidInterval):
		return wire.StatusValidationFailed
	case errors.Is(err, subscription.ErrResourceExhausted):
		return wire.StatusResourceExhausted
	case errors.Is(err, registry.ErrAlreadyRegistered),
		errors.Is(err, store.ErrEndpointExists):
		return wire.StatusAlreadyRegistered
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, model.ErrClusterNotFound),
		errors.Is(err, model.ErrAttributeNotFound),
		errors.Is(err, model.ErrCommandNotFound),
		errors.Is(err, model.ErrEventNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return wire.StatusNotFound
	case errors.Is(err, wire.ErrMalformedEnvelope):
		return wire.StatusMalformed
	default:
		return wire.StatusHandlerError
	}
}

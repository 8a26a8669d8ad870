package interaction

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/interax-protocol/interax-go/pkg/hub"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/subscription"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// Session serves one remote connection against a hub. Each inbound
// request runs on its own goroutine; responses and notifications share
// the connection's serialized writer. When the connection drops or
// produces a malformed envelope, the session closes it and runs the
// hub's disconnect cascade for its subject.
type Session struct {
	hub     *hub.Hub
	conn    Transport
	subject model.Identity
	logger  log.Logger
}

// NewSession creates a session for an authenticated subject. Transport
// authentication is the caller's concern; the session trusts the
// subject it is given and stamps it on every hub operation. An empty
// subject is adopted from the first envelope's Source; later envelopes
// claiming a different source are rejected.
func NewSession(h *hub.Hub, conn Transport, subject model.Identity, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Session{hub: h, conn: conn, subject: subject, logger: logger}
}

// Serve reads envelopes until the connection fails, the peer sends a
// malformed envelope, or the context ends. It always leaves the hub
// clean: the subject's invocations are cancelled, its subscriptions
// removed, and its endpoints unregistered before Serve returns.
func (s *Session) Serve(ctx context.Context) error {
	defer func() {
		s.conn.Close()
		s.hub.Disconnect(s.subject)
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		env, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, wire.ErrMalformedEnvelope) {
				// Malformed envelopes are connection-level: reset
				s.logError(err, "malformed envelope")
				return err
			}
			return err
		}
		if !env.Kind.IsRequest() {
			s.logError(wire.ErrMalformedEnvelope, "unexpected kind "+env.Kind.String())
			return wire.ErrMalformedEnvelope
		}
		if s.subject == "" {
			s.subject = model.Identity(env.Source)
		}
		if env.Source != string(s.subject) {
			resp := env.ReplyError(wire.StatusUnauthorized, "source does not match session subject")
			if err := s.conn.Send(resp); err != nil {
				return err
			}
			continue
		}

		go s.handle(ctx, env)
	}
}

// handle routes one request and writes its response.
func (s *Session) handle(ctx context.Context, env *wire.Envelope) {
	started := time.Now()

	var resp *wire.Envelope
	switch env.Kind {
	case wire.KindRead:
		resp = s.handleRead(env)
	case wire.KindWrite:
		resp = s.handleWrite(env)
	case wire.KindInvoke:
		resp = s.handleInvoke(ctx, env)
	case wire.KindSubscribe:
		resp = s.handleSubscribe(env)
	case wire.KindUnsubscribe:
		resp = s.handleUnsubscribe(env)
	default:
		resp = env.ReplyError(wire.StatusMalformed, "unsupported operation")
	}

	if err := s.conn.Send(resp); err != nil {
		s.logError(err, "send response")
		return
	}
	s.logMessage(env, resp, time.Since(started))
}

func (s *Session) handleRead(env *wire.Envelope) *wire.Envelope {
	value, revision, err := s.hub.Read(s.subject, attrPathOf(env.Target))
	if err != nil {
		return env.ReplyError(hub.StatusOf(err), err.Error())
	}
	payload, err := wire.MarshalPayload(&wire.ReadResult{Value: value, Revision: revision})
	if err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	return env.Reply(payload)
}

func (s *Session) handleWrite(env *wire.Envelope) *wire.Envelope {
	var req wire.WriteRequest
	if err := wire.UnmarshalPayload(env.Payload, &req); err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	revision, err := s.hub.Write(s.subject, attrPathOf(env.Target), req.Value)
	if err != nil {
		return env.ReplyError(hub.StatusOf(err), err.Error())
	}
	payload, err := wire.MarshalPayload(&wire.WriteResult{Revision: revision})
	if err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	return env.Reply(payload)
}

func (s *Session) handleInvoke(ctx context.Context, env *wire.Envelope) *wire.Envelope {
	var req wire.InvokeRequest
	if err := wire.UnmarshalPayload(env.Payload, &req); err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}

	path := model.CommandPath{
		Endpoint: model.EndpointID(env.Target.Endpoint),
		Cluster:  model.ClusterID(env.Target.Cluster),
		Command:  model.CommandID(env.Target.Member),
	}
	deadline := time.Duration(req.DeadlineMs) * time.Millisecond

	result, err := s.hub.Invoke(ctx, s.subject, path, toParams(req.Params), deadline)
	if err != nil {
		return env.ReplyError(hub.StatusOf(err), err.Error())
	}
	payload, err := wire.MarshalPayload(&wire.InvokeResult{Result: result})
	if err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	return env.Reply(payload)
}

func (s *Session) handleSubscribe(env *wire.Envelope) *wire.Envelope {
	var req wire.SubscribeRequest
	if err := wire.UnmarshalPayload(env.Payload, &req); err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}

	target := subscription.Target{
		Endpoint: model.EndpointID(env.Target.Endpoint),
		Cluster:  model.ClusterID(env.Target.Cluster),
		Member:   env.Target.Member,
	}
	mode := subscription.ModeOnChange
	switch req.TargetKind {
	case wire.TargetAttribute:
		target.Kind = subscription.TargetAttribute
	case wire.TargetEvent:
		target.Kind = subscription.TargetEvent
	default:
		return env.ReplyError(wire.StatusMalformed, "unknown subscribe target kind")
	}
	if req.MinIntervalMs > 0 {
		mode = subscription.ModeMinInterval
	}

	sub, value, revision, err := s.hub.Subscribe(
		s.subject,
		target,
		mode,
		time.Duration(req.MinIntervalMs)*time.Millisecond,
		time.Duration(req.LeaseMs)*time.Millisecond,
	)
	if err != nil {
		return env.ReplyError(hub.StatusOf(err), err.Error())
	}

	go s.pump(sub)

	payload, err := wire.MarshalPayload(&wire.SubscribeResult{
		SubscriptionID: sub.ID,
		Value:          value,
		Revision:       revision,
	})
	if err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	return env.Reply(payload)
}

func (s *Session) handleUnsubscribe(env *wire.Envelope) *wire.Envelope {
	var req wire.UnsubscribeRequest
	if err := wire.UnmarshalPayload(env.Payload, &req); err != nil {
		return env.ReplyError(wire.StatusMalformed, err.Error())
	}
	if err := s.hub.Unsubscribe(s.subject, req.SubscriptionID); err != nil {
		return env.ReplyError(hub.StatusOf(err), err.Error())
	}
	return env.Reply(nil)
}

// pump forwards one subscription's notifications onto the connection.
// It exits when the subscription's channel closes; delivery failures
// are reported back so the hub can retire the subscription after its
// failure budget.
func (s *Session) pump(sub *subscription.Subscription) {
	for n := range sub.Notifications() {
		payload, err := wire.MarshalPayload(&wire.NotifyPayload{
			SubscriptionID: n.SubscriptionID,
			Value:          n.Value,
			Revision:       n.Revision,
		})
		if err != nil {
			continue
		}
		env := &wire.Envelope{
			CorrelationID: wire.NotifyCorrelationID,
			Target: wire.Target{
				Endpoint: uint16(n.Target.Endpoint),
				Cluster:  uint16(n.Target.Cluster),
				Member:   n.Target.Member,
			},
			Kind:     wire.KindNotify,
			Payload:  payload,
			Sequence: n.Sequence,
		}
		if err := s.conn.Send(env); err != nil {
			s.hub.RecordDeliveryFailure(sub.ID)
			continue
		}
		s.hub.RecordDeliverySuccess(sub.ID)
	}
}

func (s *Session) logMessage(req, resp *wire.Envelope, elapsed time.Duration) {
	var status *wire.Status
	if resp.Kind == wire.KindError {
		var ep wire.ErrorPayload
		if err := wire.UnmarshalPayload(resp.Payload, &ep); err == nil {
			status = &ep.Status
		}
	}
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Subject:   string(s.subject),
		Message: &log.MessageEvent{
			Kind:           req.Kind,
			CorrelationID:  req.CorrelationID,
			Target:         req.Target,
			Status:         status,
			ProcessingTime: &elapsed,
		},
	})
}

func (s *Session) logError(err error, context string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		Subject:   string(s.subject),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}

func attrPathOf(target wire.Target) model.AttributePath {
	return model.AttributePath{
		Endpoint:  model.EndpointID(target.Endpoint),
		Cluster:   model.ClusterID(target.Cluster),
		Attribute: model.AttributeID(target.Member),
	}
}

// toParams normalizes a decoded CBOR params value into the handler
// parameter shape.
func toParams(v any) map[string]any {
	switch params := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return params
	case map[any]any:
		result := make(map[string]any, len(params))
		for key, value := range params {
			if name, ok := key.(string); ok {
				result[name] = value
			}
		}
		return result
	default:
		return nil
	}
}

// Package hub composes the registry, attribute store, command
// dispatcher, subscription manager, access control enforcer, and proxy
// chains into the single in-process coordinator every operation routes
// through.
//
// The hub is an explicit constructed object, not a singleton; tests
// and embedders run as many independent instances as they like. Every
// client-facing operation checks the ACL first, then runs the proxy
// chain, then touches the owning component.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/interax-protocol/interax-go/pkg/acl"
	"github.com/interax-protocol/interax-go/pkg/dispatch"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/persistence"
	"github.com/interax-protocol/interax-go/pkg/proxy"
	"github.com/interax-protocol/interax-go/pkg/registry"
	"github.com/interax-protocol/interax-go/pkg/store"
	"github.com/interax-protocol/interax-go/pkg/subscription"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// Options configures a hub instance. The zero value is usable: noop
// logging, an empty deny-everything policy, default subscription
// limits, no persistence.
type Options struct {
	// Logger receives structured protocol events.
	Logger log.Logger

	// ACLSource provides the active policy. Nil denies everything.
	ACLSource acl.Source

	// ACLConfig tunes check timeout and decision caching.
	ACLConfig acl.Config

	// Subscriptions tunes subscription limits.
	Subscriptions subscription.Config

	// StatePath, if set, persists event sequence counters across
	// restarts.
	StatePath string
}

// Hub is the process-wide interaction coordinator.
type Hub struct {
	// ID is the hub instance identity (UUID).
	ID string

	logger     log.Logger
	registry   *registry.Registry
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	subs       *subscription.Manager
	enforcer   *acl.Enforcer
	chain      *proxy.Chain

	stateStore *persistence.StateStore

	seqMu     sync.Mutex
	sequences map[model.EndpointID]uint64
}

// New creates a hub and wires its components together. The store's
// change sink feeds the subscription manager; registry teardown hooks
// cancel invocations, remove subscriptions, and drop attribute state
// synchronously.
func New(opts Options) (*Hub, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	source := opts.ACLSource
	if source == nil {
		source = acl.NewStaticSource(nil)
	}

	h := &Hub{
		ID:         uuid.NewString(),
		logger:     logger,
		registry:   registry.New(),
		store:      store.New(),
		dispatcher: dispatch.New(logger),
		subs:       subscription.NewManagerWithConfig(opts.Subscriptions, logger),
		enforcer:   acl.NewEnforcer(source, opts.ACLConfig, logger),
		chain:      proxy.NewChain(),
		sequences:  make(map[model.EndpointID]uint64),
	}

	h.store.SetChangeSink(h.subs.EnqueueChange)
	h.registry.AddTeardownHook(func(id model.EndpointID) {
		h.dispatcher.CancelEndpoint(id)
		h.subs.RemoveEndpoint(id)
		h.store.RemoveEndpoint(id)
	})

	if opts.StatePath != "" {
		h.stateStore = persistence.NewStateStore(opts.StatePath)
		state, err := h.stateStore.Load()
		if err != nil {
			return nil, fmt.Errorf("load hub state: %w", err)
		}
		if state != nil {
			for ep, seq := range state.EventSequences {
				h.sequences[model.EndpointID(ep)] = seq
			}
		}
	}
	return h, nil
}

// Close tears the hub down: all subscriptions end and, when
// persistence is configured, the event sequence counters are saved.
func (h *Hub) Close() error {
	h.subs.Stop()
	h.dispatcher.CancelAll()

	if h.stateStore == nil {
		return nil
	}

	state := &persistence.HubState{HubID: h.ID}
	h.seqMu.Lock()
	if len(h.sequences) > 0 {
		state.EventSequences = make(map[uint16]uint64, len(h.sequences))
		for ep, seq := range h.sequences {
			state.EventSequences[uint16(ep)] = seq
		}
	}
	h.seqMu.Unlock()
	for _, info := range h.registry.List(registry.Filter{}) {
		state.Endpoints = append(state.Endpoints, uint16(info.ID))
	}
	return h.stateStore.Save(state)
}

// RegisterEndpoint installs an endpoint's schema and handlers.
// Attribute state is installed before the registry entry becomes
// visible, so a resolved endpoint always has its full schema; the
// loser of a same-id race gets ErrAlreadyRegistered.
func (h *Hub) RegisterEndpoint(owner model.Identity, desc *model.EndpointDescriptor, handlers registry.HandlerSet) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := h.store.InstallEndpoint(desc); err != nil {
		return fmt.Errorf("%w: endpoint %d", registry.ErrAlreadyRegistered, desc.ID)
	}
	if err := h.registry.Register(desc, handlers, owner); err != nil {
		h.store.RemoveEndpoint(desc.ID)
		return err
	}

	h.logEndpointState(owner, desc.ID, "", "REGISTERED")
	return nil
}

// UnregisterEndpoint removes an endpoint. Pending invocations are
// cancelled and live subscriptions removed synchronously before the
// call returns.
func (h *Hub) UnregisterEndpoint(id model.EndpointID) error {
	handle, err := h.registry.Resolve(id)
	if err != nil {
		return err
	}
	if err := h.registry.Unregister(id); err != nil {
		return err
	}
	h.logEndpointState(handle.Owner(), id, "REGISTERED", "UNREGISTERED")
	return nil
}

// Read returns an attribute's value and revision.
func (h *Hub) Read(subject model.Identity, path model.AttributePath) (any, uint64, error) {
	if err := h.authorize(subject, aclAttrTarget(path), acl.OpRead); err != nil {
		return nil, 0, err
	}

	env := &wire.Envelope{
		CorrelationID: h.dispatcher.NextCorrelationID(),
		Source:        string(subject),
		Target:        attrWireTarget(path),
		Kind:          wire.KindRead,
	}
	outcome := h.chain.Process(env)
	if outcome.Blocked {
		return nil, 0, blockError(outcome)
	}
	if outcome.Answer != nil {
		var result wire.ReadResult
		if err := wire.UnmarshalPayload(outcome.Answer.Payload, &result); err != nil {
			return nil, 0, err
		}
		return result.Value, result.Revision, nil
	}

	value, revision, err := h.store.Read(attrPathOf(outcome.Envelope.Target))
	if err != nil {
		return nil, 0, err
	}

	if payload, perr := wire.MarshalPayload(&wire.ReadResult{Value: value, Revision: revision}); perr == nil {
		h.chain.ObserveResponse(outcome.Envelope, outcome.Envelope.Reply(payload))
	}
	return value, revision, nil
}

// Write validates and applies an attribute value, returning the new
// revision. The change notification is enqueued before Write returns.
func (h *Hub) Write(subject model.Identity, path model.AttributePath, value any) (uint64, error) {
	if err := h.authorize(subject, aclAttrTarget(path), acl.OpWrite); err != nil {
		return 0, err
	}

	payload, err := wire.MarshalPayload(&wire.WriteRequest{Value: value})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", wire.ErrMalformedEnvelope, err)
	}
	env := &wire.Envelope{
		CorrelationID: h.dispatcher.NextCorrelationID(),
		Source:        string(subject),
		Target:        attrWireTarget(path),
		Kind:          wire.KindWrite,
		Payload:       payload,
	}
	outcome := h.chain.Process(env)
	if outcome.Blocked {
		return 0, blockError(outcome)
	}

	writePath, writeValue := path, value
	if outcome.Envelope != env {
		var req wire.WriteRequest
		if err := wire.UnmarshalPayload(outcome.Envelope.Payload, &req); err != nil {
			return 0, err
		}
		writePath = attrPathOf(outcome.Envelope.Target)
		writeValue = req.Value
	}

	revision, err := h.store.Write(writePath, writeValue)
	if err != nil {
		return 0, err
	}

	// Broadcast fan-out is best effort; the primary write already
	// succeeded.
	for _, target := range outcome.Broadcast {
		if _, werr := h.store.Write(attrPathOf(target), writeValue); werr != nil {
			h.logError(subject, werr, "broadcast write "+target.String())
		}
	}

	if respPayload, perr := wire.MarshalPayload(&wire.WriteResult{Revision: revision}); perr == nil {
		h.chain.ObserveResponse(outcome.Envelope, outcome.Envelope.Reply(respPayload))
	}
	return revision, nil
}

// Invoke runs a command under the given deadline. At most one result
// reaches the caller; a handler that misses the deadline yields
// ErrTimeout and its late result is discarded.
func (h *Hub) Invoke(ctx context.Context, subject model.Identity, path model.CommandPath, params map[string]any, deadline time.Duration) (map[string]any, error) {
	if err := h.authorize(subject, aclCmdTarget(path), acl.OpInvoke); err != nil {
		return nil, err
	}

	handle, err := h.registry.Resolve(path.Endpoint)
	if err != nil {
		return nil, err
	}
	meta, handler, err := handle.Command(path.Cluster, path.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: command %s", registry.ErrNotFound, path)
	}

	payload, err := wire.MarshalPayload(&wire.InvokeRequest{
		Params:     params,
		DeadlineMs: uint32(deadline / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformedEnvelope, err)
	}
	env := &wire.Envelope{
		CorrelationID: h.dispatcher.NextCorrelationID(),
		Source:        string(subject),
		Target:        cmdWireTarget(path),
		Kind:          wire.KindInvoke,
		Payload:       payload,
	}
	outcome := h.chain.Process(env)
	if outcome.Blocked {
		return nil, blockError(outcome)
	}

	invokePath, invokeParams := path, params
	if outcome.Envelope != env {
		var req wire.InvokeRequest
		if err := wire.UnmarshalPayload(outcome.Envelope.Payload, &req); err != nil {
			return nil, err
		}
		invokePath = cmdPathOf(outcome.Envelope.Target)
		invokeParams = paramsMap(req.Params)

		if invokePath != path {
			redirected, rerr := h.registry.Resolve(invokePath.Endpoint)
			if rerr != nil {
				return nil, rerr
			}
			meta, handler, err = redirected.Command(invokePath.Cluster, invokePath.Command)
			if err != nil {
				return nil, fmt.Errorf("%w: command %s", registry.ErrNotFound, invokePath)
			}
		}
	}

	if err := meta.ValidateParams(invokeParams); err != nil {
		return nil, err
	}

	result, err := h.dispatcher.Invoke(ctx, subject, invokePath, handler, invokeParams, deadline)

	for _, target := range outcome.Broadcast {
		h.invokeBroadcast(subject, cmdPathOf(target), invokeParams, deadline)
	}

	if err == nil {
		if respPayload, perr := wire.MarshalPayload(&wire.InvokeResult{Result: result}); perr == nil {
			h.chain.ObserveResponse(outcome.Envelope, outcome.Envelope.Reply(respPayload))
		}
	}
	return result, err
}

// invokeBroadcast fires a fan-out invocation whose result is
// discarded.
func (h *Hub) invokeBroadcast(subject model.Identity, path model.CommandPath, params map[string]any, deadline time.Duration) {
	handle, err := h.registry.Resolve(path.Endpoint)
	if err != nil {
		h.logError(subject, err, "broadcast invoke "+path.String())
		return
	}
	_, handler, err := handle.Command(path.Cluster, path.Command)
	if err != nil {
		h.logError(subject, err, "broadcast invoke "+path.String())
		return
	}
	go func() {
		if _, ierr := h.dispatcher.Invoke(context.Background(), subject, path, handler, params, deadline); ierr != nil {
			h.logError(subject, ierr, "broadcast invoke "+path.String())
		}
	}()
}

// UpdateAttribute lets an endpoint implementation push a new value for
// one of its own attributes, bypassing the write-access check (the
// usual case is a read-only measurement the endpoint owns). Only the
// registering identity may update; validation and change notification
// behave exactly like Write.
func (h *Hub) UpdateAttribute(owner model.Identity, path model.AttributePath, value any) (uint64, error) {
	handle, err := h.registry.Resolve(path.Endpoint)
	if err != nil {
		return 0, err
	}
	if handle.Owner() != owner {
		return 0, fmt.Errorf("%w: endpoint %d", ErrUnauthorized, path.Endpoint)
	}
	return h.store.Seed(path, value)
}

// Subscribe creates a subscription on an attribute or event of a
// registered endpoint. For attribute targets the returned value and
// revision prime the subscriber with current state.
func (h *Hub) Subscribe(subject model.Identity, target subscription.Target, mode subscription.Mode, minInterval, leaseTTL time.Duration) (*subscription.Subscription, any, uint64, error) {
	aclTarget := acl.Target{Endpoint: target.Endpoint, Cluster: target.Cluster, Member: target.Member}
	if err := h.authorize(subject, aclTarget, acl.OpSubscribe); err != nil {
		return nil, nil, 0, err
	}

	handle, err := h.registry.Resolve(target.Endpoint)
	if err != nil {
		return nil, nil, 0, err
	}
	cluster, err := handle.Descriptor().Cluster(target.Cluster)
	if err != nil {
		return nil, nil, 0, err
	}

	var primeValue any
	var primeRevision uint64
	switch target.Kind {
	case subscription.TargetAttribute:
		if _, err := cluster.Attribute(model.AttributeID(target.Member)); err != nil {
			return nil, nil, 0, err
		}
		primeValue, primeRevision, err = h.store.Read(target.AttributePath())
		if err != nil {
			return nil, nil, 0, err
		}
	case subscription.TargetEvent:
		if _, err := cluster.Event(model.EventID(target.Member)); err != nil {
			return nil, nil, 0, err
		}
	default:
		return nil, nil, 0, fmt.Errorf("%w: target kind %d", wire.ErrMalformedEnvelope, target.Kind)
	}

	sub, err := h.subs.Subscribe(subject, target, mode, minInterval, leaseTTL)
	if err != nil {
		return nil, nil, 0, err
	}

	// The unregister cascade may have swept the endpoint between the
	// prime read and the insert; re-check so the subscription cannot
	// outlive its endpoint.
	if _, rerr := h.registry.Resolve(target.Endpoint); rerr != nil {
		h.subs.Unsubscribe(sub.ID)
		return nil, nil, 0, rerr
	}
	return sub, primeValue, primeRevision, nil
}

// Unsubscribe removes a subscription. Only its owner may remove it.
func (h *Hub) Unsubscribe(subject model.Identity, id uint32) error {
	sub, err := h.subs.Get(id)
	if err != nil {
		return err
	}
	if sub.Subscriber != subject {
		return fmt.Errorf("%w: subscription %d", ErrUnauthorized, id)
	}
	return h.subs.Unsubscribe(id)
}

// RenewSubscription restarts a subscription's liveness lease. A TTL of
// 0 keeps the granted duration.
func (h *Hub) RenewSubscription(subject model.Identity, id uint32, ttl time.Duration) error {
	sub, err := h.subs.Get(id)
	if err != nil {
		return err
	}
	if sub.Subscriber != subject {
		return fmt.Errorf("%w: subscription %d", ErrUnauthorized, id)
	}
	return h.subs.Renew(id, ttl)
}

// PublishEvent emits an event from its owning endpoint and returns the
// event's per-endpoint sequence number. Only the registering identity
// may publish; events are fire-once and never re-delivered.
func (h *Hub) PublishEvent(owner model.Identity, path model.EventPath, payload any) (uint64, error) {
	handle, err := h.registry.Resolve(path.Endpoint)
	if err != nil {
		return 0, err
	}
	if handle.Owner() != owner {
		return 0, fmt.Errorf("%w: endpoint %d", ErrUnauthorized, path.Endpoint)
	}
	cluster, err := handle.Descriptor().Cluster(path.Cluster)
	if err != nil {
		return 0, err
	}
	if _, err := cluster.Event(path.Event); err != nil {
		return 0, err
	}

	sequence := h.nextSequence(path.Endpoint)
	h.subs.PublishEvent(path, payload, sequence)
	return sequence, nil
}

// Disconnect runs the cancellation cascade for a departed identity:
// its invocations are cancelled (handlers may still finish, results
// discarded), its subscriptions removed, and its endpoints
// unregistered.
func (h *Hub) Disconnect(subject model.Identity) {
	h.dispatcher.CancelSubject(subject)
	h.subs.RemoveSubscriber(subject)
	h.registry.UnregisterOwned(subject)

	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		Subject:   string(subject),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: "CONNECTED",
			NewState: "DISCONNECTED",
		},
	})
}

// RegisterProxy inserts a proxy into the chain for the filtered
// targets at the given position.
func (h *Hub) RegisterProxy(filter proxy.Filter, position int, p proxy.Proxy) proxy.ID {
	return h.chain.Register(filter, position, p)
}

// UnregisterProxy removes a proxy from the chain.
func (h *Hub) UnregisterProxy(id proxy.ID) error {
	return h.chain.Unregister(id)
}

// ListEndpoints returns discovery info for registered endpoints.
func (h *Hub) ListEndpoints(filter registry.Filter) []*model.EndpointInfo {
	descs := h.registry.List(filter)
	infos := make([]*model.EndpointInfo, 0, len(descs))
	for _, desc := range descs {
		infos = append(infos, desc.Info())
	}
	return infos
}

// ListSubscriptions returns the live subscriptions observing an
// endpoint.
func (h *Hub) ListSubscriptions(endpoint model.EndpointID) []*subscription.Subscription {
	var subs []*subscription.Subscription
	for _, sub := range h.subs.List() {
		if sub.Target.Endpoint == endpoint {
			subs = append(subs, sub)
		}
	}
	return subs
}

// RecordDeliveryFailure reports a failed notification delivery. The
// subscription is retired once its failure budget is exhausted.
func (h *Hub) RecordDeliveryFailure(id uint32) {
	h.subs.RecordDeliveryFailure(id)
}

// RecordDeliverySuccess resets a subscription's failure count.
func (h *Hub) RecordDeliverySuccess(id uint32) {
	h.subs.RecordDeliverySuccess(id)
}

// Registry exposes the endpoint registry for embedding surfaces.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// authorize runs the ACL check and converts a denial into
// ErrUnauthorized.
func (h *Hub) authorize(subject model.Identity, target acl.Target, op acl.Op) error {
	if decision := h.enforcer.Check(subject, target, op); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrUnauthorized, decision.Reason)
	}
	return nil
}

// nextSequence allocates the next event sequence for an endpoint.
func (h *Hub) nextSequence(id model.EndpointID) uint64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	h.sequences[id]++
	return h.sequences[id]
}

func (h *Hub) logEndpointState(owner model.Identity, id model.EndpointID, oldState, newState string) {
	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		Subject:   string(owner),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityEndpoint,
			OldState: oldState,
			NewState: newState,
			Reason:   fmt.Sprintf("endpoint %d", id),
		},
	})
}

func (h *Hub) logError(subject model.Identity, err error, context string) {
	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHub,
		Category:  log.CategoryError,
		Subject:   string(subject),
		Error: &log.ErrorEventData{
			Layer:   log.LayerHub,
			Message: err.Error(),
			Context: context,
		},
	})
}

// blockError converts a proxy-chain block into a status-carrying
// error. A block without an explicit status denies.
func blockError(outcome proxy.Outcome) error {
	status := outcome.Status
	if status == wire.StatusSuccess {
		status = wire.StatusUnauthorized
	}
	return wire.NewStatusError(status, outcome.Reason)
}

func attrWireTarget(path model.AttributePath) wire.Target {
	return wire.Target{
		Endpoint: uint16(path.Endpoint),
		Cluster:  uint16(path.Cluster),
		Member:   uint16(path.Attribute),
	}
}

func cmdWireTarget(path model.CommandPath) wire.Target {
	return wire.Target{
		Endpoint: uint16(path.Endpoint),
		Cluster:  uint16(path.Cluster),
		Member:   uint16(path.Command),
	}
}

func attrPathOf(target wire.Target) model.AttributePath {
	return model.AttributePath{
		Endpoint:  model.EndpointID(target.Endpoint),
		Cluster:   model.ClusterID(target.Cluster),
		Attribute: model.AttributeID(target.Member),
	}
}

func cmdPathOf(target wire.Target) model.CommandPath {
	return model.CommandPath{
		Endpoint: model.EndpointID(target.Endpoint),
		Cluster:  model.ClusterID(target.Cluster),
		Command:  model.CommandID(target.Member),
	}
}

func aclAttrTarget(path model.AttributePath) acl.Target {
	return acl.Target{Endpoint: path.Endpoint, Cluster: path.Cluster, Member: uint16(path.Attribute)}
}

func aclCmdTarget(path model.CommandPath) acl.Target {
	return acl.Target{Endpoint: path.Endpoint, Cluster: path.Cluster, Member: uint16(path.Command)}
}

// paramsMap normalizes a decoded CBOR params value into the handler
// parameter shape. CBOR decodes maps into map[any]any when the static
// type is any.
func paramsMap(v any) map[string]any {
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

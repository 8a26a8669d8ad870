package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/interax-protocol/interax-go/pkg/lease"
	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/store"
)

// Config holds subscription manager limits.
type Config struct {
	// MaxSubscriptions bounds the number of live subscriptions.
	MaxSubscriptions int

	// ChannelCapacity is the per-subscriber notification buffer size.
	ChannelCapacity int

	// MaxDeliveryFailures removes a subscription after this many
	// consecutive failed deliveries.
	MaxDeliveryFailures int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions:    DefaultMaxSubscriptions,
		ChannelCapacity:     DefaultChannelCapacity,
		MaxDeliveryFailures: DefaultMaxDeliveryFailures,
	}
}

// targetKey indexes subscriptions by observed member.
type targetKey struct {
	kind     TargetKind
	endpoint model.EndpointID
	cluster  model.ClusterID
	member   uint16
}

func keyOf(t Target) targetKey {
	return targetKey{kind: t.Kind, endpoint: t.Endpoint, cluster: t.Cluster, member: t.Member}
}

// Manager owns all live subscriptions and fans changes out to them.
type Manager struct {
	mu sync.RWMutex

	config Config

	// Live subscriptions by id
	subscriptions map[uint32]*Subscription

	// Index by observed target for change dispatch
	targetIndex map[targetKey][]*Subscription

	// Index by endpoint for teardown cascades
	byEndpoint map[model.EndpointID]map[uint32]*Subscription

	// Index by subscriber for disconnect cascades
	bySubscriber map[model.Identity]map[uint32]*Subscription

	leases *lease.Manager
	logger log.Logger
}

// idGenerator allocates unique subscription ids.
var idGenerator atomic.Uint32

func nextID() uint32 {
	return idGenerator.Add(1)
}

// NewManager creates a subscription manager with default limits.
func NewManager(logger log.Logger) *Manager {
	return NewManagerWithConfig(DefaultConfig(), logger)
}

// NewManagerWithConfig creates a subscription manager with custom limits.
func NewManagerWithConfig(config Config, logger log.Logger) *Manager {
	if config.MaxSubscriptions <= 0 {
		config.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.MaxDeliveryFailures <= 0 {
		config.MaxDeliveryFailures = DefaultMaxDeliveryFailures
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	m := &Manager{
		config:        config,
		subscriptions: make(map[uint32]*Subscription),
		targetIndex:   make(map[targetKey][]*Subscription),
		byEndpoint:    make(map[model.EndpointID]map[uint32]*Subscription),
		bySubscriber:  make(map[model.Identity]map[uint32]*Subscription),
		leases:        lease.NewManager(),
		logger:        logger,
	}
	m.leases.OnExpiry(m.expireLease)
	return m
}

// Subscribe creates a subscription and grants its liveness lease.
// ModeMinInterval requires a positive interval; zero falls back to
// DefaultMinInterval.
func (m *Manager) Subscribe(subscriber model.Identity, target Target, mode Mode, minInterval, leaseTTL time.Duration) (*Subscription, error) {
	if mode == ModeMinInterval && minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if leaseTTL == 0 {
		leaseTTL = lease.DefaultTTL
	}

	m.mu.Lock()

	if len(m.subscriptions) >= m.config.MaxSubscriptions {
		m.mu.Unlock()
		return nil, ErrResourceExhausted
	}

	sub := newSubscription(nextID(), subscriber, target, mode, minInterval, m.config.ChannelCapacity)
	m.subscriptions[sub.ID] = sub

	key := keyOf(target)
	m.targetIndex[key] = append(m.targetIndex[key], sub)

	if m.byEndpoint[target.Endpoint] == nil {
		m.byEndpoint[target.Endpoint] = make(map[uint32]*Subscription)
	}
	m.byEndpoint[target.Endpoint][sub.ID] = sub

	if m.bySubscriber[subscriber] == nil {
		m.bySubscriber[subscriber] = make(map[uint32]*Subscription)
	}
	m.bySubscriber[subscriber][sub.ID] = sub

	m.mu.Unlock()

	if err := m.leases.Grant(sub.ID, leaseTTL); err != nil {
		m.remove(sub.ID, "invalid lease")
		return nil, err
	}

	m.logState(sub, "", "ACTIVE", "")
	return sub, nil
}

// Unsubscribe removes a subscription at the subscriber's request.
func (m *Manager) Unsubscribe(id uint32) error {
	if !m.remove(id, "unsubscribed") {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Renew restarts the subscription's lease. A TTL of 0 keeps the
// granted duration.
func (m *Manager) Renew(id uint32, ttl time.Duration) error {
	if err := m.leases.Renew(id, ttl); err != nil {
		return ErrSubscriptionNotFound
	}
	return nil
}

// EnqueueChange fans an applied attribute write out to its observers.
// Called synchronously from the store's change sink with the endpoint
// entry locked, so enqueue order matches revision order; it only
// enqueues and never blocks.
func (m *Manager) EnqueueChange(change store.Change) {
	key := targetKey{
		kind:     TargetAttribute,
		endpoint: change.Path.Endpoint,
		cluster:  change.Path.Cluster,
		member:   uint16(change.Path.Attribute),
	}

	m.mu.RLock()
	subs := m.targetIndex[key]
	m.mu.RUnlock()

	now := time.Now()
	for _, sub := range subs {
		sub.enqueue(Notification{
			SubscriptionID: sub.ID,
			Target:         sub.Target,
			Value:          change.Value,
			Revision:       change.Revision,
			Timestamp:      now,
		})
	}
}

// PublishEvent fans an emitted event out to its observers. The
// sequence number is allocated by the caller per endpoint; subscribers
// detect gaps from it, missed events are not re-delivered.
func (m *Manager) PublishEvent(path model.EventPath, payload any, sequence uint64) {
	key := targetKey{
		kind:     TargetEvent,
		endpoint: path.Endpoint,
		cluster:  path.Cluster,
		member:   uint16(path.Event),
	}

	m.mu.RLock()
	subs := m.targetIndex[key]
	m.mu.RUnlock()

	now := time.Now()
	for _, sub := range subs {
		sub.enqueue(Notification{
			SubscriptionID: sub.ID,
			Target:         sub.Target,
			Value:          payload,
			Sequence:       sequence,
			Timestamp:      now,
		})
	}
}

// RecordDeliveryFailure counts a failed delivery for the subscription.
// After the configured number of consecutive failures the subscription
// is removed.
func (m *Manager) RecordDeliveryFailure(id uint32) {
	m.mu.RLock()
	sub := m.subscriptions[id]
	m.mu.RUnlock()

	if sub == nil {
		return
	}
	if sub.recordFailure(m.config.MaxDeliveryFailures) {
		m.remove(id, "delivery failures exceeded")
	}
}

// RecordDeliverySuccess resets the subscription's failure budget.
func (m *Manager) RecordDeliverySuccess(id uint32) {
	m.mu.RLock()
	sub := m.subscriptions[id]
	m.mu.RUnlock()

	if sub != nil {
		sub.resetFailures()
	}
}

// RemoveEndpoint removes every subscription observing the endpoint.
// Runs synchronously from the registry teardown hook.
func (m *Manager) RemoveEndpoint(id model.EndpointID) {
	m.mu.RLock()
	ids := make([]uint32, 0, len(m.byEndpoint[id]))
	for subID := range m.byEndpoint[id] {
		ids = append(ids, subID)
	}
	m.mu.RUnlock()

	for _, subID := range ids {
		m.remove(subID, "endpoint unregistered")
	}
}

// RemoveSubscriber removes every subscription owned by the identity.
// Used by the disconnect cascade.
func (m *Manager) RemoveSubscriber(subscriber model.Identity) {
	m.mu.RLock()
	ids := make([]uint32, 0, len(m.bySubscriber[subscriber]))
	for subID := range m.bySubscriber[subscriber] {
		ids = append(ids, subID)
	}
	m.mu.RUnlock()

	for _, subID := range ids {
		m.remove(subID, "subscriber disconnected")
	}
}

// Get returns a subscription by id.
func (m *Manager) Get(id uint32) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns all live subscriptions.
func (m *Manager) List() []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

// Count returns the number of live subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Stop removes all subscriptions and cancels their leases.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[uint32]*Subscription)
	m.targetIndex = make(map[targetKey][]*Subscription)
	m.byEndpoint = make(map[model.EndpointID]map[uint32]*Subscription)
	m.bySubscriber = make(map[model.Identity]map[uint32]*Subscription)
	m.mu.Unlock()

	m.leases.Stop()
	for _, sub := range subs {
		sub.close()
	}
}

// expireLease handles a lease that ran out without renewal.
func (m *Manager) expireLease(id uint32) {
	m.remove(id, "lease expired")
}

// remove unlinks a subscription from all indexes and closes it,
// flushing any pending coalesced value first. Returns false if the id
// was not live.
func (m *Manager) remove(id uint32, reason string) bool {
	m.mu.Lock()

	sub, exists := m.subscriptions[id]
	if !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.subscriptions, id)

	// Dispatch snapshots this slice outside the lock, so rebuild it
	// rather than compacting the shared backing array in place.
	key := keyOf(sub.Target)
	old := m.targetIndex[key]
	if len(old) <= 1 {
		delete(m.targetIndex, key)
	} else {
		remaining := make([]*Subscription, 0, len(old)-1)
		for _, s := range old {
			if s.ID != id {
				remaining = append(remaining, s)
			}
		}
		m.targetIndex[key] = remaining
	}

	if byEp := m.byEndpoint[sub.Target.Endpoint]; byEp != nil {
		delete(byEp, id)
		if len(byEp) == 0 {
			delete(m.byEndpoint, sub.Target.Endpoint)
		}
	}
	if bySub := m.bySubscriber[sub.Subscriber]; bySub != nil {
		delete(bySub, id)
		if len(bySub) == 0 {
			delete(m.bySubscriber, sub.Subscriber)
		}
	}

	m.mu.Unlock()

	m.leases.Cancel(id)
	sub.close()
	m.logState(sub, "ACTIVE", "REMOVED", reason)
	return true
}

func (m *Manager) logState(sub *Subscription, oldState, newState, reason string) {
	m.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		Subject:   string(sub.Subscriber),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

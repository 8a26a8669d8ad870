package subscription

import (
	"errors"
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrResourceExhausted    = errors.New("maximum subscriptions reached")
	ErrInvalidInterval      = errors.New("invalid notification interval")
)

// Default subscription limits.
const (
	DefaultMaxSubscriptions    = 1024
	DefaultChannelCapacity     = 32
	DefaultMaxDeliveryFailures = 3
	DefaultMinInterval         = 1 * time.Second
)

// Mode selects how attribute changes are delivered.
type Mode uint8

const (
	// ModeOnChange delivers every applied revision.
	ModeOnChange Mode = iota

	// ModeMinInterval coalesces changes and delivers at most one
	// notification per interval, carrying the latest value.
	ModeMinInterval
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeOnChange:
		return "ON_CHANGE"
	case ModeMinInterval:
		return "MIN_INTERVAL"
	default:
		return "UNKNOWN"
	}
}

// TargetKind distinguishes attribute and event subscriptions.
type TargetKind uint8

const (
	// TargetAttribute subscribes to attribute changes.
	TargetAttribute TargetKind = 1

	// TargetEvent subscribes to event emissions.
	TargetEvent TargetKind = 2
)

// String returns the target kind name.
func (k TargetKind) String() string {
	switch k {
	case TargetAttribute:
		return "ATTRIBUTE"
	case TargetEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// Target addresses what a subscription observes.
type Target struct {
	// Kind selects attribute or event semantics.
	Kind TargetKind

	// Endpoint hosting the observed member.
	Endpoint model.EndpointID

	// Cluster containing the observed member.
	Cluster model.ClusterID

	// Member is the attribute or event id.
	Member uint16
}

// AttributePath returns the target as an attribute path.
// Only meaningful for TargetAttribute subscriptions.
func (t Target) AttributePath() model.AttributePath {
	return model.AttributePath{
		Endpoint:  t.Endpoint,
		Cluster:   t.Cluster,
		Attribute: model.AttributeID(t.Member),
	}
}

// Notification is one delivered observation.
type Notification struct {
	// SubscriptionID identifies the subscription.
	SubscriptionID uint32

	// Target that produced the notification.
	Target Target

	// Value is the attribute value or event payload.
	Value any

	// Revision is the attribute revision (attribute targets only).
	Revision uint64

	// Sequence is the endpoint event sequence (event targets only).
	Sequence uint64

	// Timestamp is when the notification was generated.
	Timestamp time.Time
}

// Subscription is one live observer of an attribute or event.
//
// Notifications flow through a bounded channel. When the channel is
// full the oldest queued notification is dropped so the subscriber
// always converges on recent state; drops are counted.
type Subscription struct {
	// ID is the unique subscription identifier.
	ID uint32

	// Subscriber is the fabric-qualified identity receiving delivery.
	Subscriber model.Identity

	// Target being observed.
	Target Target

	// Mode selects on-change or min-interval delivery.
	Mode Mode

	// MinInterval is the coalescing interval for ModeMinInterval.
	MinInterval time.Duration

	mu sync.Mutex

	ch chan Notification

	// Latest coalesced notification awaiting the interval flush
	pending *Notification

	// Flush timer for ModeMinInterval
	flushTimer *time.Timer

	lastRevision uint64
	dropped      uint64
	failures     int
	active       bool
}

func newSubscription(id uint32, subscriber model.Identity, target Target, mode Mode, minInterval time.Duration, capacity int) *Subscription {
	return &Subscription{
		ID:          id,
		Subscriber:  subscriber,
		Target:      target,
		Mode:        mode,
		MinInterval: minInterval,
		ch:          make(chan Notification, capacity),
		active:      true,
	}
}

// Notifications returns the delivery channel. The channel is closed
// when the subscription is removed; a final coalesced value, if any,
// is flushed first.
func (s *Subscription) Notifications() <-chan Notification {
	return s.ch
}

// IsActive reports whether the subscription still delivers.
func (s *Subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Dropped returns how many notifications were discarded because the
// subscriber's channel was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// LastRevision returns the revision of the last enqueued attribute
// notification.
func (s *Subscription) LastRevision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRevision
}

// enqueue appends a notification, evicting the oldest entry when the
// channel is full. Never blocks; safe to call from the store's change
// sink.
func (s *Subscription) enqueue(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	if n.Revision > 0 {
		s.lastRevision = n.Revision
	}

	switch s.Mode {
	case ModeOnChange:
		s.push(n)

	case ModeMinInterval:
		first := s.pending == nil
		s.pending = &n
		if first {
			s.flushTimer = time.AfterFunc(s.MinInterval, s.flush)
		}
	}
}

// flush moves the pending coalesced notification onto the channel.
func (s *Subscription) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.pending == nil {
		return
	}
	s.push(*s.pending)
	s.pending = nil
}

// push adds to the channel with drop-oldest overflow. Caller holds mu.
func (s *Subscription) push(n Notification) {
	for {
		select {
		case s.ch <- n:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// close deactivates the subscription. A pending coalesced value is
// flushed onto the channel before it closes, so min-interval
// subscribers always see the final value.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	if s.pending != nil {
		s.push(*s.pending)
		s.pending = nil
	}
	close(s.ch)
}

// recordFailure counts a delivery failure. Returns true once the
// failure budget is exhausted.
func (s *Subscription) recordFailure(limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures >= limit
}

// resetFailures clears the consecutive failure count after a
// successful delivery.
func (s *Subscription) resetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}

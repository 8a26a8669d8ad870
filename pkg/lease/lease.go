// Package lease implements liveness leases for subscriptions.
//
// A lease is granted with a TTL and must be renewed before it expires.
// On expiry the manager fires a callback (outside its lock) so the
// owner can tear the leased resource down.
package lease

import (
	"errors"
	"sync"
	"time"
)

// Lease errors.
var (
	ErrLeaseNotFound = errors.New("lease not found")
	ErrInvalidTTL    = errors.New("invalid lease duration")
)

// TTL limits.
const (
	// MinTTL is the minimum allowed lease duration.
	MinTTL = 1 * time.Second

	// MaxTTL is the maximum allowed lease duration.
	MaxTTL = 24 * time.Hour

	// DefaultTTL is used when a subscriber does not request a lease.
	DefaultTTL = 5 * time.Minute
)

// Lease represents an active liveness lease.
type Lease struct {
	// ID identifies the leased resource (subscription id).
	ID uint32

	// GrantedAt is when the lease was granted or last renewed.
	GrantedAt time.Time

	// TTL is the lease duration.
	TTL time.Duration

	// timer drives automatic expiry
	timer *time.Timer
}

// ExpiresAt returns when the lease will expire.
func (l *Lease) ExpiresAt() time.Time {
	return l.GrantedAt.Add(l.TTL)
}

// Remaining returns time until expiry.
func (l *Lease) Remaining() time.Duration {
	remaining := l.TTL - time.Since(l.GrantedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Manager tracks leases and fires expiry callbacks.
type Manager struct {
	mu sync.Mutex

	leases map[uint32]*Lease

	// Callback when a lease expires without renewal
	onExpiry func(id uint32)
}

// NewManager creates a new lease manager.
func NewManager() *Manager {
	return &Manager{
		leases: make(map[uint32]*Lease),
	}
}

// OnExpiry sets the callback fired when a lease expires.
// The callback runs outside the manager lock.
func (m *Manager) OnExpiry(fn func(id uint32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpiry = fn
}

// Grant creates or replaces a lease with the given TTL.
func (m *Manager) Grant(id uint32, ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.leases[id]; exists {
		existing.timer.Stop()
	}

	l := &Lease{
		ID:        id,
		GrantedAt: time.Now(),
		TTL:       ttl,
	}
	l.timer = time.AfterFunc(ttl, func() {
		m.expire(id)
	})
	m.leases[id] = l
	return nil
}

// Renew restarts a lease's TTL. Passing 0 keeps the granted TTL.
func (m *Manager) Renew(id uint32, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.leases[id]
	if !exists {
		return ErrLeaseNotFound
	}
	if ttl == 0 {
		ttl = l.TTL
	}
	if ttl < MinTTL || ttl > MaxTTL {
		return ErrInvalidTTL
	}

	l.timer.Stop()
	l.GrantedAt = time.Now()
	l.TTL = ttl
	l.timer = time.AfterFunc(ttl, func() {
		m.expire(id)
	})
	return nil
}

// Cancel removes a lease without firing the expiry callback.
func (m *Manager) Cancel(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.leases[id]
	if !exists {
		return ErrLeaseNotFound
	}
	l.timer.Stop()
	delete(m.leases, id)
	return nil
}

// Get returns a copy of the lease, or nil if not granted.
func (m *Manager) Get(id uint32) *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, exists := m.leases[id]; exists {
		return &Lease{ID: l.ID, GrantedAt: l.GrantedAt, TTL: l.TTL}
	}
	return nil
}

// Count returns the number of active leases.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// Stop cancels all leases without firing callbacks.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, l := range m.leases {
		l.timer.Stop()
		delete(m.leases, id)
	}
}

// expire handles lease expiry.
func (m *Manager) expire(id uint32) {
	m.mu.Lock()

	if _, exists := m.leases[id]; !exists {
		m.mu.Unlock()
		return
	}
	delete(m.leases, id)
	callback := m.onExpiry

	m.mu.Unlock()

	// Call callback outside lock
	if callback != nil {
		callback(id)
	}
}

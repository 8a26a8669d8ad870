package lease

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGrantAndGet(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	if err := m.Grant(1, 5*time.Second); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	l := m.Get(1)
	if l == nil {
		t.Fatal("expected lease to exist")
	}
	if l.TTL != 5*time.Second {
		t.Errorf("expected TTL 5s, got %v", l.TTL)
	}
	if l.Remaining() <= 0 {
		t.Error("expected positive remaining time")
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 lease, got %d", m.Count())
	}
}

func TestGrantTTLBounds(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	if err := m.Grant(1, 10*time.Millisecond); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("expected ErrInvalidTTL for short TTL, got %v", err)
	}
	if err := m.Grant(1, 25*time.Hour); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("expected ErrInvalidTTL for long TTL, got %v", err)
	}
}

func TestExpiryFiresCallback(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	expired := make(chan uint32, 1)
	m.OnExpiry(func(id uint32) { expired <- id })

	if err := m.Grant(7, MinTTL); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	select {
	case id := <-expired:
		if id != 7 {
			t.Errorf("expected expiry for lease 7, got %d", id)
		}
	case <-time.After(MinTTL + 2*time.Second):
		t.Fatal("expiry callback never fired")
	}

	if m.Get(7) != nil {
		t.Error("expected lease removed after expiry")
	}
}

func TestRenewExtendsLease(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	expired := make(chan uint32, 1)
	m.OnExpiry(func(id uint32) { expired <- id })

	if err := m.Grant(3, MinTTL); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	// Renew with 0 keeps the granted TTL and restarts the clock
	time.Sleep(MinTTL / 2)
	if err := m.Renew(3, 0); err != nil {
		t.Fatalf("Renew failed: %v", err)
	}

	select {
	case <-expired:
		t.Fatal("lease expired despite renewal")
	case <-time.After(MinTTL / 2):
	}

	if err := m.Renew(99, 0); !errors.Is(err, ErrLeaseNotFound) {
		t.Errorf("expected ErrLeaseNotFound, got %v", err)
	}
}

func TestCancelSuppressesCallback(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	var mu sync.Mutex
	fired := false
	m.OnExpiry(func(uint32) {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := m.Grant(5, MinTTL); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := m.Cancel(5); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	time.Sleep(MinTTL + 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("expiry callback fired for cancelled lease")
	}
	if err := m.Cancel(5); !errors.Is(err, ErrLeaseNotFound) {
		t.Errorf("expected ErrLeaseNotFound on second cancel, got %v", err)
	}
}

func TestStopClearsAll(t *testing.T) {
	m := NewManager()

	for id := uint32(1); id <= 3; id++ {
		if err := m.Grant(id, time.Minute); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}
	m.Stop()

	if m.Count() != 0 {
		t.Errorf("expected 0 leases after Stop, got %d", m.Count())
	}
}

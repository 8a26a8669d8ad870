package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Second,
		Max:        8 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	})

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, expected := range want {
		if got := b.Next(); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("expected %d attempts, got %d", len(want), b.Attempts())
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2.0, Jitter: 0})

	b.Next()
	b.Next()
	b.Reset()

	if b.Current() != time.Second {
		t.Errorf("expected initial delay after reset, got %v", b.Current())
	}
	if b.Attempts() != 0 {
		t.Errorf("expected 0 attempts after reset, got %d", b.Attempts())
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2.0, Jitter: 0.25})

	for i := 0; i < 10; i++ {
		delay := b.Next()
		base := time.Second << i
		if base > time.Minute {
			base = time.Minute
		}
		if delay < base || delay > base+time.Duration(float64(base)*0.25) {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", i, delay, base, base+base/4)
		}
	}
}

func fastBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0,
	})
}

func TestReconnectorRetriesUntilConnected(t *testing.T) {
	var attempts atomic.Int32
	connect := func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	r := NewReconnector(connect, fastBackoff(), nil)

	connected := make(chan struct{})
	r.OnConnected(func(ctx context.Context) error {
		close(connected)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go r.Run(ctx)

	select {
	case <-connected:
	case <-ctx.Done():
		t.Fatal("never connected")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 connect attempts, got %d", attempts.Load())
	}
}

func TestReconnectorReplaysHooksAfterDrop(t *testing.T) {
	var connects atomic.Int32
	connect := func(ctx context.Context) error {
		connects.Add(1)
		return nil
	}

	r := NewReconnector(connect, fastBackoff(), nil)

	hookRuns := make(chan struct{}, 4)
	r.OnConnected(func(ctx context.Context) error {
		hookRuns <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go r.Run(ctx)

	select {
	case <-hookRuns:
	case <-ctx.Done():
		t.Fatal("initial connect never completed")
	}

	r.ConnectionDropped()

	select {
	case <-hookRuns:
	case <-ctx.Done():
		t.Fatal("hooks not replayed after drop")
	}
	if connects.Load() != 2 {
		t.Errorf("expected 2 connects, got %d", connects.Load())
	}
}

func TestReconnectorHookFailureRetries(t *testing.T) {
	connect := func(ctx context.Context) error { return nil }

	r := NewReconnector(connect, fastBackoff(), nil)

	var hookCalls atomic.Int32
	done := make(chan struct{})
	r.OnConnected(func(ctx context.Context) error {
		if hookCalls.Add(1) == 1 {
			// A failing hook means the connection is unusable
			return errors.New("resubscribe failed")
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go r.Run(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("reconnector gave up after hook failure")
	}
}

func TestReconnectorStopsOnContextCancel(t *testing.T) {
	connect := func(ctx context.Context) error { return errors.New("unreachable") }

	r := NewReconnector(connect, fastBackoff(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package connection

import (
	"context"
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/log"
)

// Reconnector re-establishes a dropped connection with exponential
// backoff and replays registered re-subscribe hooks once connected.
// Subscriptions do not survive a drop on the hub side; after
// reconnecting the hooks issue fresh subscribe calls, and subscribers
// accept the resulting gap in sequence numbers.
type Reconnector struct {
	connect func(ctx context.Context) error
	backoff *Backoff
	logger  log.Logger

	mu      sync.Mutex
	hooks   []func(ctx context.Context) error
	dropped chan struct{}
}

// NewReconnector creates a reconnector around a connect function. The
// function establishes the transport session and returns once the
// connection is usable.
func NewReconnector(connect func(ctx context.Context) error, backoff *Backoff, logger log.Logger) *Reconnector {
	if backoff == nil {
		backoff = NewBackoff()
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Reconnector{
		connect: connect,
		backoff: backoff,
		logger:  logger,
		dropped: make(chan struct{}, 1),
	}
}

// OnConnected registers a hook replayed after every successful
// connect, in registration order. Clients use this to re-issue their
// subscribe calls.
func (r *Reconnector) OnConnected(hook func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// ConnectionDropped signals that the active connection failed and a
// reconnect should begin.
func (r *Reconnector) ConnectionDropped() {
	select {
	case r.dropped <- struct{}{}:
	default:
	}
}

// Run connects and keeps the session alive until the context ends.
// Each drop triggers a backoff-delayed reconnect followed by the
// re-subscribe hooks.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		if err := r.establish(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.dropped:
			r.logState("CONNECTED", "RECONNECTING")
		}
	}
}

// establish retries the connect function until it succeeds or the
// context ends.
func (r *Reconnector) establish(ctx context.Context) error {
	for {
		err := r.connect(ctx)
		if err == nil {
			r.backoff.Reset()
			if herr := r.runHooks(ctx); herr == nil {
				r.logState("RECONNECTING", "CONNECTED")
				return nil
			}
			// Hooks failing means the fresh connection is already
			// unusable; fall through to the next attempt.
		}

		delay := r.backoff.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Reconnector) runHooks(ctx context.Context) error {
	r.mu.Lock()
	hooks := make([]func(ctx context.Context) error, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconnector) logState(oldState, newState string) {
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

package interaction

import (
	"context"
	"errors"
	"sync"

	"github.com/interax-protocol/interax-go/pkg/wire"
)

// ErrStreamEnded indicates the subscription behind a stream is gone.
var ErrStreamEnded = errors.New("subscription stream ended")

// streamBuffer bounds notifications queued on an unread stream.
const streamBuffer = 32

// SubscriptionStream is a restartable, potentially infinite sequence
// of notifications. It survives reconnects: the client re-subscribes
// and rebinds the stream to the fresh hub-side subscription id, so
// consumers keep reading across a drop, accepting a gap in sequence
// numbers.
type SubscriptionStream struct {
	client *Client
	target wire.Target
	opts   SubscribeOptions

	mu    sync.Mutex
	subID uint32
	ch    chan Notification
	ended bool
}

func newSubscriptionStream(client *Client, target wire.Target, opts SubscribeOptions, subID uint32) *SubscriptionStream {
	return &SubscriptionStream{
		client: client,
		target: target,
		opts:   opts,
		subID:  subID,
		ch:     make(chan Notification, streamBuffer),
	}
}

// SubscriptionID returns the current hub-side subscription id. It
// changes after a reconnect.
func (s *SubscriptionStream) SubscriptionID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subID
}

// Target returns the subscribed target.
func (s *SubscriptionStream) Target() wire.Target {
	return s.target
}

// Next blocks until the next notification, the context ends, or the
// stream ends.
func (s *SubscriptionStream) Next(ctx context.Context) (Notification, error) {
	select {
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	case n, ok := <-s.ch:
		if !ok {
			return Notification{}, ErrStreamEnded
		}
		return n, nil
	}
}

// Notifications exposes the stream's channel for select-based
// consumers. The channel closes when the stream ends.
func (s *SubscriptionStream) Notifications() <-chan Notification {
	return s.ch
}

// Cancel unsubscribes and ends the stream.
func (s *SubscriptionStream) Cancel(ctx context.Context) error {
	s.mu.Lock()
	id := s.subID
	s.mu.Unlock()
	return s.client.Unsubscribe(ctx, id)
}

// prime seeds the stream with the subscription's initial value.
func (s *SubscriptionStream) prime(value any, revision uint64) {
	s.mu.Lock()
	id := s.subID
	s.mu.Unlock()
	s.deliver(Notification{
		SubscriptionID: id,
		Target:         s.target,
		Value:          value,
		Revision:       revision,
	})
}

// rebind points the stream at a fresh subscription id after a
// reconnect.
func (s *SubscriptionStream) rebind(subID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subID = subID
}

// deliver appends a notification, dropping the oldest queued one when
// the consumer is behind.
func (s *SubscriptionStream) deliver(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	for {
		select {
		case s.ch <- n:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// end closes the stream.
func (s *SubscriptionStream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.ended = true
	close(s.ch)
}

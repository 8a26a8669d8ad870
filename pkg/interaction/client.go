package interaction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/wire"
)

// Client errors.
var (
	ErrClientClosed    = errors.New("client is closed")
	ErrRequestTimeout  = errors.New("request timed out")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DefaultRequestTimeout bounds calls whose context carries no
// deadline.
const DefaultRequestTimeout = 30 * time.Second

// Transport is the envelope stream a client runs over.
// transport.Conn satisfies it.
type Transport interface {
	Send(env *wire.Envelope) error
	Receive() (*wire.Envelope, error)
	Close() error
}

// Notification is one delivered observation on the client side.
type Notification struct {
	// SubscriptionID identifies the subscription.
	SubscriptionID uint32

	// Target that produced the notification.
	Target wire.Target

	// Value is the attribute value or event payload.
	Value any

	// Revision is the attribute revision (attribute subscriptions).
	Revision uint64

	// Sequence is the endpoint event counter (event subscriptions).
	Sequence uint64
}

// Client is the application-facing interaction surface over one hub
// connection. Every call resolves to a success value or one named
// error kind; no call waits unboundedly.
type Client struct {
	identity string
	conn     Transport

	timeout time.Duration

	correlation uint32

	mu      sync.Mutex
	pending map[uint32]chan *wire.Envelope
	streams map[uint32]*SubscriptionStream
	closed  bool
	readErr error
	done    chan struct{}
}

// NewClient creates a client speaking as the given fabric-qualified
// identity and starts its receive loop.
func NewClient(identity string, conn Transport) *Client {
	c := &Client{
		identity: identity,
		conn:     conn,
		timeout:  DefaultRequestTimeout,
		pending:  make(map[uint32]chan *wire.Envelope),
		streams:  make(map[uint32]*SubscriptionStream),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetTimeout changes the default per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Close shuts the client down. Pending calls fail with
// ErrClientClosed; open streams end.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *wire.Envelope)
	streams := c.streams
	c.streams = make(map[uint32]*SubscriptionStream)
	c.mu.Unlock()

	for _, stream := range streams {
		stream.end()
	}
	close(c.done)
	return c.conn.Close()
}

// Read reads an attribute's value and revision.
func (c *Client) Read(ctx context.Context, target wire.Target) (any, uint64, error) {
	resp, err := c.roundTrip(ctx, wire.KindRead, target, nil, 0)
	if err != nil {
		return nil, 0, err
	}
	var result wire.ReadResult
	if err := wire.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, 0, err
	}
	return result.Value, result.Revision, nil
}

// Write applies an attribute value and returns the new revision.
func (c *Client) Write(ctx context.Context, target wire.Target, value any) (uint64, error) {
	resp, err := c.roundTrip(ctx, wire.KindWrite, target, &wire.WriteRequest{Value: value}, 0)
	if err != nil {
		return 0, err
	}
	var result wire.WriteResult
	if err := wire.UnmarshalPayload(resp.Payload, &result); err != nil {
		return 0, err
	}
	return result.Revision, nil
}

// Invoke runs a command with a deadline and returns its result.
func (c *Client) Invoke(ctx context.Context, target wire.Target, params map[string]any, deadline time.Duration) (any, error) {
	req := &wire.InvokeRequest{
		Params:     params,
		DeadlineMs: uint32(deadline / time.Millisecond),
	}
	resp, err := c.roundTrip(ctx, wire.KindInvoke, target, req, deadline)
	if err != nil {
		return nil, err
	}
	var result wire.InvokeResult
	if err := wire.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, err
	}
	return result.Result, nil
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Target distinguishes attribute and event subscriptions.
	TargetKind wire.SubscribeTarget

	// MinInterval coalesces notifications; 0 delivers every change.
	MinInterval time.Duration

	// Lease is the liveness lease TTL; 0 uses the hub default.
	Lease time.Duration
}

// Subscribe creates a subscription and returns its stream. For
// attribute subscriptions the stream is primed with the current value
// and revision.
func (c *Client) Subscribe(ctx context.Context, target wire.Target, opts SubscribeOptions) (*SubscriptionStream, error) {
	if opts.TargetKind == 0 {
		opts.TargetKind = wire.TargetAttribute
	}
	req := &wire.SubscribeRequest{
		TargetKind:    opts.TargetKind,
		MinIntervalMs: uint32(opts.MinInterval / time.Millisecond),
		LeaseMs:       uint32(opts.Lease / time.Millisecond),
	}
	resp, err := c.roundTrip(ctx, wire.KindSubscribe, target, req, 0)
	if err != nil {
		return nil, err
	}
	var result wire.SubscribeResult
	if err := wire.UnmarshalPayload(resp.Payload, &result); err != nil {
		return nil, err
	}

	stream := newSubscriptionStream(c, target, opts, result.SubscriptionID)
	if opts.TargetKind == wire.TargetAttribute {
		stream.prime(result.Value, result.Revision)
	}

	c.mu.Lock()
	c.streams[result.SubscriptionID] = stream
	c.mu.Unlock()
	return stream, nil
}

// Unsubscribe removes a subscription and ends its stream.
func (c *Client) Unsubscribe(ctx context.Context, id uint32) error {
	target := wire.Target{}
	_, err := c.roundTrip(ctx, wire.KindUnsubscribe, target, &wire.UnsubscribeRequest{SubscriptionID: id}, 0)

	c.mu.Lock()
	stream := c.streams[id]
	delete(c.streams, id)
	c.mu.Unlock()
	if stream != nil {
		stream.end()
	}
	return err
}

// Resubscribe re-issues every open stream's subscribe call on a fresh
// connection. Used by the reconnect policy after a drop; streams keep
// their identity while the hub-side subscription id changes, and a gap
// in sequence numbers is accepted.
func (c *Client) Resubscribe(ctx context.Context, conn Transport) error {
	c.mu.Lock()
	c.conn = conn
	streams := make([]*SubscriptionStream, 0, len(c.streams))
	for _, stream := range c.streams {
		streams = append(streams, stream)
	}
	c.streams = make(map[uint32]*SubscriptionStream)
	c.mu.Unlock()

	go c.readLoop()

	for _, stream := range streams {
		req := &wire.SubscribeRequest{
			TargetKind:    stream.opts.TargetKind,
			MinIntervalMs: uint32(stream.opts.MinInterval / time.Millisecond),
			LeaseMs:       uint32(stream.opts.Lease / time.Millisecond),
		}
		resp, err := c.roundTrip(ctx, wire.KindSubscribe, stream.target, req, 0)
		if err != nil {
			return err
		}
		var result wire.SubscribeResult
		if err := wire.UnmarshalPayload(resp.Payload, &result); err != nil {
			return err
		}
		stream.rebind(result.SubscriptionID)
		if stream.opts.TargetKind == wire.TargetAttribute {
			stream.prime(result.Value, result.Revision)
		}

		c.mu.Lock()
		c.streams[result.SubscriptionID] = stream
		c.mu.Unlock()
	}
	return nil
}

// roundTrip sends a request and waits for its correlated response.
func (c *Client) roundTrip(ctx context.Context, kind wire.Kind, target wire.Target, payload any, deadline time.Duration) (*wire.Envelope, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	timeout := c.timeout
	if deadline > 0 {
		// Leave headroom so the hub's own timeout answers first
		timeout = deadline + time.Second
	}
	c.correlation++
	id := c.correlation
	conn := c.conn
	respCh := make(chan *wire.Envelope, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	env := &wire.Envelope{
		CorrelationID: id,
		Source:        c.identity,
		Target:        target,
		Kind:          kind,
	}
	if payload != nil {
		raw, err := wire.MarshalPayload(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	if err := conn.Send(env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrClientClosed
		}
		if resp.Kind == wire.KindError {
			var ep wire.ErrorPayload
			if err := wire.UnmarshalPayload(resp.Payload, &ep); err != nil {
				return nil, err
			}
			return nil, wire.NewStatusError(ep.Status, ep.Message)
		}
		if resp.Kind != wire.KindResponse {
			return nil, ErrUnexpectedReply
		}
		return resp, nil
	}
}

// readLoop demultiplexes inbound envelopes: responses resolve pending
// calls, notifications feed their stream. Exits when the connection
// fails.
func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	for {
		env, err := conn.Receive()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		switch env.Kind {
		case wire.KindResponse, wire.KindError:
			c.mu.Lock()
			ch := c.pending[env.CorrelationID]
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- env:
				default:
				}
			}

		case wire.KindNotify:
			var payload wire.NotifyPayload
			if err := wire.UnmarshalPayload(env.Payload, &payload); err != nil {
				continue
			}
			c.mu.Lock()
			stream := c.streams[payload.SubscriptionID]
			c.mu.Unlock()
			if stream != nil {
				stream.deliver(Notification{
					SubscriptionID: payload.SubscriptionID,
					Target:         env.Target,
					Value:          payload.Value,
					Revision:       payload.Revision,
					Sequence:       env.Sequence,
				})
			}
		}
	}
}

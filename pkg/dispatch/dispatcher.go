// Package dispatch implements the hub's command dispatcher: it routes
// invocation requests to endpoint handlers, correlates responses, and
// enforces at-most-once delivery of each result to the caller.
//
// A handler that misses its deadline keeps running (its side effects
// may persist; the dispatcher never retries), but the caller gets
// ErrTimeout and the late result is discarded.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/model"
)

// Dispatcher errors.
var (
	ErrTimeout   = errors.New("invocation deadline exceeded")
	ErrCancelled = errors.New("invocation cancelled")
)

// HandlerError wraps an endpoint-side failure. The detail is opaque to
// the hub and passed through to the caller unchanged.
type HandlerError struct {
	Err error
}

// Error returns the handler's failure detail.
func (e *HandlerError) Error() string {
	return "handler error: " + e.Err.Error()
}

// Unwrap exposes the handler's error for errors.Is/As.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// DefaultDeadline bounds invocations whose caller supplied none.
const DefaultDeadline = 30 * time.Second

// Dispatcher routes command invocations and tracks their records.
type Dispatcher struct {
	mu sync.Mutex

	// Pending invocations by correlation id
	invocations map[uint32]*Invocation

	// Indexes for cancellation cascades
	byEndpoint map[model.EndpointID]map[uint32]*Invocation
	bySubject  map[model.Identity]map[uint32]*Invocation

	nextID atomic.Uint32

	logger log.Logger
}

// New creates a dispatcher. Pass a nil logger to disable logging.
func New(logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Dispatcher{
		invocations: make(map[uint32]*Invocation),
		byEndpoint:  make(map[model.EndpointID]map[uint32]*Invocation),
		bySubject:   make(map[model.Identity]map[uint32]*Invocation),
		logger:      logger,
	}
}

// NextCorrelationID allocates a fresh non-zero correlation id.
func (d *Dispatcher) NextCorrelationID() uint32 {
	for {
		if id := d.nextID.Add(1); id != 0 {
			return id
		}
	}
}

// Invoke runs a command handler under the given deadline.
//
// The handler executes on its own goroutine with a context that expires
// at the deadline. If the handler does not finish in time the caller
// receives ErrTimeout and any late result is discarded; the invocation
// record transitions to exactly one terminal status either way.
func (d *Dispatcher) Invoke(
	ctx context.Context,
	requester model.Identity,
	path model.CommandPath,
	handler model.CommandHandler,
	params map[string]any,
	deadline time.Duration,
) (map[string]any, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	inv := newInvocation(d.NextCorrelationID(), requester, path, time.Now().Add(deadline))
	d.track(inv)
	defer d.untrack(inv)

	handlerCtx, cancel := context.WithDeadline(context.Background(), inv.Deadline)

	go func() {
		defer cancel()
		result, err := handler(handlerCtx, params)
		if err != nil {
			inv.finish(StatusCompleted, nil, &HandlerError{Err: err})
			return
		}
		inv.finish(StatusCompleted, result, nil)
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-inv.done:
		status, result, err := inv.outcome()
		d.logTerminal(inv, status)
		if status == StatusCancelled {
			return nil, ErrCancelled
		}
		return result, err

	case <-timer.C:
		if !inv.finish(StatusTimedOut, nil, ErrTimeout) {
			// Handler won the race; deliver its result
			status, result, err := inv.outcome()
			d.logTerminal(inv, status)
			if status == StatusCancelled {
				return nil, ErrCancelled
			}
			return result, err
		}
		d.logTerminal(inv, StatusTimedOut)
		return nil, ErrTimeout

	case <-ctx.Done():
		if !inv.finish(StatusCancelled, nil, ErrCancelled) {
			status, result, err := inv.outcome()
			d.logTerminal(inv, status)
			if status == StatusCancelled {
				return nil, ErrCancelled
			}
			return result, err
		}
		d.logTerminal(inv, StatusCancelled)
		return nil, ErrCancelled
	}
}

// CancelEndpoint cancels every pending invocation targeting the
// endpoint. Called synchronously from the registry teardown hook.
func (d *Dispatcher) CancelEndpoint(id model.EndpointID) {
	d.cancelAll(d.snapshotEndpoint(id), "endpoint unregistered")
}

// CancelSubject cancels every pending invocation the identity
// originated. Called from the disconnect cascade; the handler may still
// run to completion but its result is discarded.
func (d *Dispatcher) CancelSubject(subject model.Identity) {
	d.cancelAll(d.snapshotSubject(subject), "requester disconnected")
}

// CancelAll cancels every pending invocation, for hub shutdown.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	invs := make([]*Invocation, 0, len(d.invocations))
	for _, inv := range d.invocations {
		invs = append(invs, inv)
	}
	d.mu.Unlock()

	d.cancelAll(invs, "hub shutdown")
}

// PendingCount returns the number of invocations not yet terminal.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.invocations)
}

// PendingForEndpoint returns the number of pending invocations
// targeting the endpoint.
func (d *Dispatcher) PendingForEndpoint(id model.EndpointID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byEndpoint[id])
}

func (d *Dispatcher) track(inv *Invocation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.invocations[inv.CorrelationID] = inv

	ep := inv.Path.Endpoint
	if d.byEndpoint[ep] == nil {
		d.byEndpoint[ep] = make(map[uint32]*Invocation)
	}
	d.byEndpoint[ep][inv.CorrelationID] = inv

	if d.bySubject[inv.Requester] == nil {
		d.bySubject[inv.Requester] = make(map[uint32]*Invocation)
	}
	d.bySubject[inv.Requester][inv.CorrelationID] = inv
}

func (d *Dispatcher) untrack(inv *Invocation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.invocations, inv.CorrelationID)

	ep := inv.Path.Endpoint
	if m := d.byEndpoint[ep]; m != nil {
		delete(m, inv.CorrelationID)
		if len(m) == 0 {
			delete(d.byEndpoint, ep)
		}
	}
	if m := d.bySubject[inv.Requester]; m != nil {
		delete(m, inv.CorrelationID)
		if len(m) == 0 {
			delete(d.bySubject, inv.Requester)
		}
	}
}

func (d *Dispatcher) snapshotEndpoint(id model.EndpointID) []*Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()

	invs := make([]*Invocation, 0, len(d.byEndpoint[id]))
	for _, inv := range d.byEndpoint[id] {
		invs = append(invs, inv)
	}
	return invs
}

func (d *Dispatcher) snapshotSubject(subject model.Identity) []*Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()

	invs := make([]*Invocation, 0, len(d.bySubject[subject]))
	for _, inv := range d.bySubject[subject] {
		invs = append(invs, inv)
	}
	return invs
}

func (d *Dispatcher) cancelAll(invs []*Invocation, reason string) {
	for _, inv := range invs {
		if inv.finish(StatusCancelled, nil, ErrCancelled) {
			d.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerHub,
				Category:  log.CategoryState,
				Subject:   string(inv.Requester),
				StateChange: &log.StateChangeEvent{
					Entity:   log.StateEntityInvocation,
					OldState: StatusPending.String(),
					NewState: StatusCancelled.String(),
					Reason:   reason,
				},
			})
		}
	}
}

func (d *Dispatcher) logTerminal(inv *Invocation, status Status) {
	d.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		Subject:   string(inv.Requester),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityInvocation,
			OldState: StatusPending.String(),
			NewState: status.String(),
		},
	})
}

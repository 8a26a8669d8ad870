package dispatch

import (
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// Status is the lifecycle state of an invocation.
type Status uint8

const (
	// StatusPending indicates the handler has not finished yet.
	StatusPending Status = iota

	// StatusCompleted indicates the handler finished before the deadline.
	StatusCompleted

	// StatusTimedOut indicates the deadline elapsed first.
	StatusTimedOut

	// StatusCancelled indicates the invocation was cancelled by endpoint
	// teardown or requester disconnect.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Invocation is the transient record tracking one command call.
// Exactly one terminal status is recorded; later completions are
// rejected idempotently (first writer wins).
type Invocation struct {
	// CorrelationID uniquely identifies this invocation.
	CorrelationID uint32

	// Requester is the identity that issued the command.
	Requester model.Identity

	// Path addresses the invoked command.
	Path model.CommandPath

	// Deadline is when the invocation times out.
	Deadline time.Time

	mu     sync.Mutex
	status Status
	result map[string]any
	err    error
	done   chan struct{}
}

func newInvocation(id uint32, requester model.Identity, path model.CommandPath, deadline time.Time) *Invocation {
	return &Invocation{
		CorrelationID: id,
		Requester:     requester,
		Path:          path,
		Deadline:      deadline,
		status:        StatusPending,
		done:          make(chan struct{}),
	}
}

// Status returns the invocation's current status.
func (inv *Invocation) Status() Status {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.status
}

// finish records a terminal status. Returns false if a terminal status
// was already recorded; the late result is discarded.
func (inv *Invocation) finish(status Status, result map[string]any, err error) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.status != StatusPending {
		return false
	}
	inv.status = status
	inv.result = result
	inv.err = err
	close(inv.done)
	return true
}

// outcome returns the recorded result. Only valid after done is closed.
func (inv *Invocation) outcome() (Status, map[string]any, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.status, inv.result, inv.err
}

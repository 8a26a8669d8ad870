package proxy

import (
	"sort"
	"sync"

	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/wire"
)

// ID identifies a registered proxy in the arena.
type ID uint32

// Filter selects which envelopes a proxy intercepts. Nil fields match
// any value; an empty Kinds slice matches every request kind. A proxy
// never sees envelopes its filter does not cover.
type Filter struct {
	// Endpoint, if set, restricts the proxy to one endpoint.
	Endpoint *model.EndpointID

	// Cluster, if set, restricts the proxy to one cluster.
	Cluster *model.ClusterID

	// Kinds, if non-empty, restricts the proxy to these request kinds.
	Kinds []wire.Kind
}

// Matches reports whether the filter covers the envelope.
func (f Filter) Matches(env *wire.Envelope) bool {
	if f.Endpoint != nil && uint16(*f.Endpoint) != env.Target.Endpoint {
		return false
	}
	if f.Cluster != nil && uint16(*f.Cluster) != env.Target.Cluster {
		return false
	}
	if len(f.Kinds) > 0 {
		for _, k := range f.Kinds {
			if k == env.Kind {
				return true
			}
		}
		return false
	}
	return true
}

// registration is one arena slot.
type registration struct {
	id       ID
	filter   Filter
	position int
	proxy    Proxy
}

// Outcome is the chain's aggregate decision for one envelope.
type Outcome struct {
	// Envelope is the request after all transformations.
	Envelope *wire.Envelope

	// Answer, if set, is a direct response produced by a proxy; the
	// request was not forwarded.
	Answer *wire.Envelope

	// Blocked reports that a proxy stopped the request.
	Blocked bool

	// Status and Reason describe the block.
	Status wire.Status
	Reason string

	// Broadcast lists extra targets the request fans out to.
	Broadcast []wire.Target
}

// Chain holds the proxy arena and its ordered per-target index.
// Proxies run in ascending position order; ties break by registration
// order.
type Chain struct {
	mu     sync.RWMutex
	arena  map[ID]*registration
	order  []ID
	nextID ID
}

// NewChain creates an empty proxy chain.
func NewChain() *Chain {
	return &Chain{
		arena: make(map[ID]*registration),
	}
}

// Register adds a proxy at the given chain position for the filtered
// targets and returns its arena id.
func (c *Chain) Register(filter Filter, position int, p Proxy) ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.arena[id] = &registration{id: id, filter: filter, position: position, proxy: p}

	c.order = append(c.order, id)
	sort.SliceStable(c.order, func(i, j int) bool {
		return c.arena[c.order[i]].position < c.arena[c.order[j]].position
	})
	return id
}

// Unregister removes a proxy from the arena.
func (c *Chain) Unregister(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.arena[id]; !exists {
		return ErrProxyNotFound
	}
	delete(c.arena, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of registered proxies.
func (c *Chain) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.arena)
}

// Process runs the envelope through every matching proxy in chain
// order. The correlation id of the original request is preserved
// across transformations and direct answers. A direct answer is only
// honored for reads; for other kinds it degrades to forward.
func (c *Chain) Process(env *wire.Envelope) Outcome {
	c.mu.RLock()
	matched := make([]*registration, 0, len(c.order))
	for _, id := range c.order {
		reg := c.arena[id]
		if reg.filter.Matches(env) {
			matched = append(matched, reg)
		}
	}
	c.mu.RUnlock()

	correlationID := env.CorrelationID
	outcome := Outcome{Envelope: env}

	for _, reg := range matched {
		result := reg.proxy.Intercept(outcome.Envelope)

		switch result.Verdict {
		case VerdictForward:

		case VerdictTransform:
			if result.Envelope != nil {
				result.Envelope.CorrelationID = correlationID
				outcome.Envelope = result.Envelope
			}

		case VerdictAnswer:
			if env.Kind == wire.KindRead && result.Answer != nil {
				result.Answer.CorrelationID = correlationID
				outcome.Answer = result.Answer
				return outcome
			}

		case VerdictBroadcast:
			outcome.Broadcast = append(outcome.Broadcast, result.Targets...)

		case VerdictBlock:
			outcome.Blocked = true
			outcome.Status = result.Status
			outcome.Reason = result.Reason
			return outcome
		}
	}
	return outcome
}

// ObserveResponse shows a response to every matching proxy that
// implements ResponseObserver, in chain order.
func (c *Chain) ObserveResponse(request, response *wire.Envelope) {
	c.mu.RLock()
	matched := make([]*registration, 0, len(c.order))
	for _, id := range c.order {
		reg := c.arena[id]
		if reg.filter.Matches(request) {
			matched = append(matched, reg)
		}
	}
	c.mu.RUnlock()

	for _, reg := range matched {
		if observer, ok := reg.proxy.(ResponseObserver); ok {
			observer.ObserveResponse(request, response)
		}
	}
}

package proxy

import (
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/wire"
)

// DefaultCacheTTL bounds cached read answers.
const DefaultCacheTTL = 5 * time.Second

// cacheEntry is one cached read result.
type cacheEntry struct {
	payload []byte
	expires time.Time
}

// CacheProxy answers attribute reads from responses it has observed,
// for the TTL the entry was cached with. Writes flowing through the
// chain invalidate the written attribute's entry before forwarding,
// so a cached value never outlives a local write.
type CacheProxy struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[wire.Target]cacheEntry
}

// NewCacheProxy creates a read cache with the given TTL. A TTL of 0
// uses DefaultCacheTTL.
func NewCacheProxy(ttl time.Duration) *CacheProxy {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheProxy{
		ttl:     ttl,
		entries: make(map[wire.Target]cacheEntry),
	}
}

// Intercept answers reads on cache hits and invalidates on writes.
func (p *CacheProxy) Intercept(env *wire.Envelope) Result {
	switch env.Kind {
	case wire.KindRead:
		p.mu.Lock()
		entry, ok := p.entries[env.Target]
		if ok && time.Now().After(entry.expires) {
			delete(p.entries, env.Target)
			ok = false
		}
		p.mu.Unlock()

		if ok {
			return Answer(env.Reply(entry.payload))
		}

	case wire.KindWrite:
		p.mu.Lock()
		delete(p.entries, env.Target)
		p.mu.Unlock()
	}
	return Forward()
}

// ObserveResponse caches successful read responses.
func (p *CacheProxy) ObserveResponse(request, response *wire.Envelope) {
	if request.Kind != wire.KindRead || response.Kind != wire.KindResponse {
		return
	}
	p.mu.Lock()
	p.entries[request.Target] = cacheEntry{
		payload: response.Payload,
		expires: time.Now().Add(p.ttl),
	}
	p.mu.Unlock()
}

// Len returns the number of live cache entries.
func (p *CacheProxy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// BroadcastProxy fans matching envelopes out to a fixed set of extra
// targets in addition to the original one.
type BroadcastProxy struct {
	targets []wire.Target
}

// NewBroadcastProxy creates a broadcast proxy with the given extra
// targets.
func NewBroadcastProxy(targets ...wire.Target) *BroadcastProxy {
	return &BroadcastProxy{targets: targets}
}

// Intercept forwards and adds the configured broadcast targets.
func (p *BroadcastProxy) Intercept(env *wire.Envelope) Result {
	if len(p.targets) == 0 {
		return Forward()
	}
	return Broadcast(p.targets...)
}

// TransformProxy rewrites envelopes with a caller-supplied function.
// A nil result or an error forwards the original unchanged.
type TransformProxy struct {
	fn func(env *wire.Envelope) (*wire.Envelope, error)
}

// NewTransformProxy creates a transform proxy around fn.
func NewTransformProxy(fn func(env *wire.Envelope) (*wire.Envelope, error)) *TransformProxy {
	return &TransformProxy{fn: fn}
}

// Intercept applies the transformation.
func (p *TransformProxy) Intercept(env *wire.Envelope) Result {
	transformed, err := p.fn(env)
	if err != nil || transformed == nil {
		return Forward()
	}
	return Transform(transformed)
}

package acl

import (
	"sync"
	"time"

	"github.com/interax-protocol/interax-go/pkg/log"
	"github.com/interax-protocol/interax-go/pkg/model"
)

// Check limits.
const (
	// DefaultCheckTimeout bounds a single policy source lookup. A
	// source that does not answer in time yields Deny.
	DefaultCheckTimeout = 50 * time.Millisecond

	// DefaultCacheTTL bounds cached decisions whose entry carries no
	// TTL of its own.
	DefaultCacheTTL = 30 * time.Second
)

// Decision is the outcome of an access check.
type Decision struct {
	// Allowed reports whether the operation may proceed.
	Allowed bool

	// Reason explains a denial. Empty on Allow.
	Reason string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision with a reason.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Source provides the active policy entries for a subject. A Source
// may be slow (backed by a remote policy service); the enforcer bounds
// each lookup with the check timeout.
type Source interface {
	Entries(subject model.Identity) ([]Entry, error)
}

// StaticSource is an in-memory policy, typically loaded from a YAML
// file. Lookups never block.
type StaticSource struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStaticSource creates a static policy source.
func NewStaticSource(entries []Entry) *StaticSource {
	return &StaticSource{entries: entries}
}

// Entries returns the entries whose subject pattern covers the identity.
func (s *StaticSource) Entries(subject model.Identity) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for _, e := range s.entries {
		if e.MatchesSubject(subject) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// Replace swaps the active policy, for reloads.
func (s *StaticSource) Replace(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// cacheKey identifies one cached decision.
type cacheKey struct {
	subject model.Identity
	target  Target
	op      Op
}

// cachedDecision pairs a decision with its expiry.
type cachedDecision struct {
	decision Decision
	expires  time.Time
}

// Config holds enforcer tuning.
type Config struct {
	// CheckTimeout bounds a policy source lookup.
	CheckTimeout time.Duration

	// CacheTTL bounds cached decisions without an entry TTL.
	CacheTTL time.Duration
}

// Enforcer answers access checks against a policy source with a
// TTL-bounded decision cache.
type Enforcer struct {
	source Source
	config Config
	logger log.Logger

	mu    sync.Mutex
	cache map[cacheKey]cachedDecision
}

// NewEnforcer creates an enforcer over the given policy source.
func NewEnforcer(source Source, config Config, logger log.Logger) *Enforcer {
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = DefaultCheckTimeout
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Enforcer{
		source: source,
		config: config,
		logger: logger,
		cache:  make(map[cacheKey]cachedDecision),
	}
}

// Check decides whether the subject may perform op on target.
//
// The policy source lookup is bounded by the check timeout; a source
// that does not answer in time produces Deny. Decisions are cached
// per (subject, target, op) until their TTL elapses.
func (e *Enforcer) Check(subject model.Identity, target Target, op Op) Decision {
	key := cacheKey{subject: subject, target: target, op: op}

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok && time.Now().Before(cached.expires) {
		e.mu.Unlock()
		return cached.decision
	}
	e.mu.Unlock()

	decision, ttl := e.evaluate(subject, target, op)

	e.mu.Lock()
	e.cache[key] = cachedDecision{decision: decision, expires: time.Now().Add(ttl)}
	e.mu.Unlock()

	if !decision.Allowed {
		e.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerHub,
			Category:  log.CategoryError,
			Subject:   string(subject),
			Error: &log.ErrorEventData{
				Layer:   log.LayerHub,
				Message: decision.Reason,
				Context: "acl check " + op.String() + " " + target.String(),
			},
		})
	}
	return decision
}

// Invalidate drops all cached decisions, for policy reloads.
func (e *Enforcer) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[cacheKey]cachedDecision)
}

// evaluate performs the uncached check and returns the decision plus
// its cache TTL.
func (e *Enforcer) evaluate(subject model.Identity, target Target, op Op) (Decision, time.Duration) {
	type lookup struct {
		entries []Entry
		err     error
	}
	ch := make(chan lookup, 1)
	go func() {
		entries, err := e.source.Entries(subject)
		ch <- lookup{entries: entries, err: err}
	}()

	timer := time.NewTimer(e.config.CheckTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return Deny("policy source error: " + res.err.Error()), e.config.CacheTTL
		}
		for _, entry := range res.entries {
			if entry.Scope.Matches(target) && entry.Grants(op) {
				ttl := e.config.CacheTTL
				if entry.TTLSeconds > 0 {
					ttl = time.Duration(entry.TTLSeconds) * time.Second
				}
				return Allow, ttl
			}
		}
		return Deny("no matching grant"), e.config.CacheTTL

	case <-timer.C:
		// Slow source is a denial, never a silent allow. The result
		// is not cached at full TTL so recovery is quick.
		return Deny("policy source timeout"), e.config.CheckTimeout
	}
}

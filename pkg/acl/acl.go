// Package acl implements the hub's access control enforcer.
//
// Every routed operation is checked against the active policy before
// it touches the registry, store, or dispatcher. Checks are
// synchronous, side-effect-free, and deny by default: an empty policy,
// an unknown subject, or a policy source that fails to answer inside
// the check timeout all produce Deny, never a silent Allow.
package acl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// ACL errors.
var (
	ErrInvalidPolicy = errors.New("invalid ACL policy")
)

// Op is an operation class subject to access control.
type Op uint8

const (
	// OpRead covers attribute reads and snapshots.
	OpRead Op = iota

	// OpWrite covers attribute writes.
	OpWrite

	// OpInvoke covers command invocations.
	OpInvoke

	// OpSubscribe covers attribute and event subscriptions.
	OpSubscribe
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpInvoke:
		return "INVOKE"
	case OpSubscribe:
		return "SUBSCRIBE"
	default:
		return "UNKNOWN"
	}
}

// parseOp maps a policy-file operation name to an Op.
func parseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "read":
		return OpRead, nil
	case "write":
		return OpWrite, nil
	case "invoke":
		return OpInvoke, nil
	case "subscribe":
		return OpSubscribe, nil
	default:
		return 0, fmt.Errorf("%w: unknown operation %q", ErrInvalidPolicy, s)
	}
}

// Target is the addressed resource of a checked operation.
type Target struct {
	// Endpoint being addressed.
	Endpoint model.EndpointID

	// Cluster being addressed.
	Cluster model.ClusterID

	// Member is the attribute, command, or event id.
	Member uint16
}

// String returns the target as "endpoint/cluster/member".
func (t Target) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Endpoint, t.Cluster, t.Member)
}

// Scope narrows which targets an entry grants. Nil fields match any
// value at that level.
type Scope struct {
	// Endpoint, if set, restricts the entry to one endpoint.
	Endpoint *model.EndpointID

	// Cluster, if set, restricts the entry to one cluster.
	Cluster *model.ClusterID

	// Member, if set, restricts the entry to one attribute/command/event.
	Member *uint16
}

// Matches reports whether the scope covers the target.
func (s Scope) Matches(t Target) bool {
	if s.Endpoint != nil && *s.Endpoint != t.Endpoint {
		return false
	}
	if s.Cluster != nil && *s.Cluster != t.Cluster {
		return false
	}
	if s.Member != nil && *s.Member != t.Member {
		return false
	}
	return true
}

// Entry grants an operation set on a target scope to matching
// subjects. Entries only grant; absence of a matching entry denies.
type Entry struct {
	// Subject is an exact fabric-qualified identity or a pattern.
	// A '*' matches any run of characters, so "home/*" covers every
	// node in the home fabric and "*" covers everyone.
	Subject string

	// Scope restricts which targets the grant covers.
	Scope Scope

	// Ops are the granted operation classes.
	Ops []Op

	// TTLSeconds bounds how long a decision derived from this entry
	// may be cached. 0 uses the enforcer default.
	TTLSeconds int
}

// MatchesSubject reports whether the entry's subject pattern covers
// the identity.
func (e Entry) MatchesSubject(subject model.Identity) bool {
	return matchPattern(e.Subject, string(subject))
}

// Grants reports whether the entry covers the operation.
func (e Entry) Grants(op Op) bool {
	for _, granted := range e.Ops {
		if granted == op {
			return true
		}
	}
	return false
}

// matchPattern matches a subject against a pattern where '*' matches
// any run of characters including '/'.
func matchPattern(pattern, subject string) bool {
	if pattern == "*" {
		return true
	}
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == subject
	}
	prefix, rest := pattern[:star], pattern[star+1:]
	if !strings.HasPrefix(subject, prefix) {
		return false
	}
	remainder := subject[len(prefix):]
	if rest == "" {
		return true
	}
	for i := 0; i <= len(remainder); i++ {
		if matchPattern(rest, remainder[i:]) {
			return true
		}
	}
	return false
}

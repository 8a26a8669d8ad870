// Package registry implements the hub's endpoint registry: it maps
// endpoint identities to their resolved capability schema, command
// handler table, and owning connection.
//
// Registration is atomic with respect to lookups: a resolved handle
// always carries the endpoint's full schema. Unregistration invokes the
// wired teardown hooks synchronously, before returning, so pending
// invocations and live subscriptions never outlive their endpoint.
package registry

import (
	"errors"
	"sync"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// Registry errors.
var (
	ErrAlreadyRegistered = errors.New("endpoint already registered")
	ErrNotFound          = errors.New("endpoint not found")
)

// CommandKey identifies a command within an endpoint's handler table.
type CommandKey struct {
	Cluster model.ClusterID
	Command model.CommandID
}

// HandlerSet maps an endpoint's commands to their handlers.
type HandlerSet map[CommandKey]model.CommandHandler

// Handle is a resolved registry entry for a live endpoint.
type Handle struct {
	desc     *model.EndpointDescriptor
	owner    model.Identity
	commands HandlerSet
}

// Descriptor returns the endpoint's capability schema.
func (h *Handle) Descriptor() *model.EndpointDescriptor {
	return h.desc
}

// Owner returns the identity that registered the endpoint.
func (h *Handle) Owner() model.Identity {
	return h.owner
}

// Command resolves a command's metadata and handler.
func (h *Handle) Command(cluster model.ClusterID, id model.CommandID) (*model.CommandMetadata, model.CommandHandler, error) {
	c, err := h.desc.Cluster(cluster)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	meta, err := c.Command(id)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	handler, ok := h.commands[CommandKey{Cluster: cluster, Command: id}]
	if !ok || handler == nil {
		return nil, nil, ErrNotFound
	}
	return meta, handler, nil
}

// TeardownHook is called synchronously while an endpoint is being
// unregistered, before Unregister returns.
type TeardownHook func(id model.EndpointID)

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	// Cluster, if set, matches endpoints exposing this cluster.
	Cluster *model.ClusterID

	// Owner, if set, matches endpoints registered by this identity.
	Owner model.Identity
}

func (f Filter) matches(h *Handle) bool {
	if f.Cluster != nil {
		if _, err := h.desc.Cluster(*f.Cluster); err != nil {
			return false
		}
	}
	if f.Owner != "" && h.owner != f.Owner {
		return false
	}
	return true
}

// Registry is the hub's endpoint registry.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[model.EndpointID]*Handle
	hooks     []TeardownHook
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		endpoints: make(map[model.EndpointID]*Handle),
	}
}

// AddTeardownHook wires a hook run synchronously during Unregister.
// Hooks are called in registration order. Wire at startup, before the
// first endpoint registers.
func (r *Registry) AddTeardownHook(hook TeardownHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Register installs an endpoint. Concurrent registrations for the same
// id race; the loser fails with ErrAlreadyRegistered.
func (r *Registry) Register(desc *model.EndpointDescriptor, handlers HandlerSet, owner model.Identity) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[desc.ID]; exists {
		return ErrAlreadyRegistered
	}
	r.endpoints[desc.ID] = &Handle{
		desc:     desc,
		owner:    owner,
		commands: handlers,
	}
	return nil
}

// Unregister removes an endpoint. Teardown hooks run synchronously
// after the endpoint disappears from lookups and before Unregister
// returns, so no new operation can target the endpoint while its
// invocations and subscriptions are being cancelled.
func (r *Registry) Unregister(id model.EndpointID) error {
	r.mu.Lock()
	if _, exists := r.endpoints[id]; !exists {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.endpoints, id)
	hooks := make([]TeardownHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(id)
	}
	return nil
}

// Resolve returns the handle for a registered endpoint.
func (r *Registry) Resolve(id model.EndpointID) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.endpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// List returns descriptors of all registered endpoints matching the filter.
func (r *Registry) List(filter Filter) []*model.EndpointDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.EndpointDescriptor, 0, len(r.endpoints))
	for _, h := range r.endpoints {
		if filter.matches(h) {
			result = append(result, h.desc)
		}
	}
	return result
}

// UnregisterOwned removes every endpoint registered by the given
// identity, running teardown hooks for each. Used by the disconnect
// cascade.
func (r *Registry) UnregisterOwned(owner model.Identity) []model.EndpointID {
	r.mu.RLock()
	var ids []model.EndpointID
	for id, h := range r.endpoints {
		if h.owner == owner {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	removed := ids[:0]
	for _, id := range ids {
		if err := r.Unregister(id); err == nil {
			removed = append(removed, id)
		}
	}
	return removed
}

// Count returns the number of registered endpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

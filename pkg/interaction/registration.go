package interaction

import (
	"sync"

	"github.com/interax-protocol/interax-go/pkg/hub"
	"github.com/interax-protocol/interax-go/pkg/model"
	"github.com/interax-protocol/interax-go/pkg/registry"
)

// Registration is the scoped handle an in-process endpoint implementer
// holds while its endpoint is live. It is the only way the implementer
// pushes state: attribute updates and event publications go through
// the handle, stamped with the owning identity, and Release tears the
// endpoint down.
type Registration struct {
	hub      *hub.Hub
	owner    model.Identity
	endpoint model.EndpointID

	mu       sync.Mutex
	released bool
}

// RegisterEndpoint installs an endpoint on the hub and returns its
// registration handle.
func RegisterEndpoint(h *hub.Hub, owner model.Identity, desc *model.EndpointDescriptor, handlers registry.HandlerSet) (*Registration, error) {
	if err := h.RegisterEndpoint(owner, desc, handlers); err != nil {
		return nil, err
	}
	return &Registration{hub: h, owner: owner, endpoint: desc.ID}, nil
}

// EndpointID returns the registered endpoint's id.
func (r *Registration) EndpointID() model.EndpointID {
	return r.endpoint
}

// UpdateAttribute pushes a new attribute value as the endpoint owner,
// bypassing external-write access checks but not validation. Returns
// the new revision.
func (r *Registration) UpdateAttribute(cluster model.ClusterID, attr model.AttributeID, value any) (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	path := model.AttributePath{Endpoint: r.endpoint, Cluster: cluster, Attribute: attr}
	return r.hub.UpdateAttribute(r.owner, path, value)
}

// PublishEvent emits an event occurrence and returns its sequence
// number within the endpoint's event stream.
func (r *Registration) PublishEvent(cluster model.ClusterID, event model.EventID, payload any) (uint64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	path := model.EventPath{Endpoint: r.endpoint, Cluster: cluster, Event: event}
	return r.hub.PublishEvent(r.owner, path, payload)
}

// Release unregisters the endpoint. Further use of the handle fails
// with registry.ErrNotFound. Release is idempotent.
func (r *Registration) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	r.mu.Unlock()

	return r.hub.UnregisterEndpoint(r.endpoint)
}

func (r *Registration) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return registry.ErrNotFound
	}
	return nil
}

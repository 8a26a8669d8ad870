// Package store implements the hub's attribute store: per-endpoint
// key-value state with read/write/change-notify semantics.
//
// Every successful write increments the attribute's revision counter by
// exactly one and hands the change to the configured sink before
// returning to the caller. The sink is invoked with the endpoint entry
// lock held so enqueue order always matches revision order; sinks must
// only enqueue, never block.
//
// Endpoints are locked individually. Writes to one endpoint never block
// reads or writes on another.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/interax-protocol/interax-go/pkg/model"
)

// Store errors.
var (
	ErrNotFound         = errors.New("attribute not found")
	ErrUnreadable       = errors.New("attribute is not readable")
	ErrUnwritable       = errors.New("attribute is not writable")
	ErrValidationFailed = errors.New("attribute validation failed")
	ErrEndpointExists   = errors.New("endpoint state already installed")
)

// Change describes one applied attribute write.
type Change struct {
	// Path addresses the changed attribute.
	Path model.AttributePath

	// Value is the newly applied value.
	Value any

	// Revision is the attribute revision after the write.
	Revision uint64
}

// ChangeSink receives every applied change, in revision order per
// attribute. Called synchronously from Write with the endpoint entry
// locked; implementations must only enqueue.
type ChangeSink func(Change)

// attrKey identifies an attribute within an endpoint entry.
type attrKey struct {
	cluster model.ClusterID
	attr    model.AttributeID
}

// attribute holds one attribute instance's runtime state.
type attribute struct {
	meta     *model.AttributeMetadata
	value    any
	revision uint64
}

// endpointEntry holds all attribute state for one endpoint.
type endpointEntry struct {
	mu    sync.RWMutex
	attrs map[attrKey]*attribute
}

// Store is the hub's attribute store.
type Store struct {
	mu        sync.RWMutex
	endpoints map[model.EndpointID]*endpointEntry
	sink      ChangeSink
}

// New creates an empty attribute store.
func New() *Store {
	return &Store{
		endpoints: make(map[model.EndpointID]*endpointEntry),
	}
}

// SetChangeSink wires the change sink. Must be called before the first
// write; typically done once by the hub at startup.
func (s *Store) SetChangeSink(sink ChangeSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// InstallEndpoint creates attribute state for every attribute the
// descriptor declares, seeded with default values at revision 0.
// Installation is atomic: lookups see the full schema or none of it.
func (s *Store) InstallEndpoint(desc *model.EndpointDescriptor) error {
	attrs := make(map[attrKey]*attribute)
	for _, cluster := range desc.Clusters {
		for _, meta := range cluster.Attributes {
			attrs[attrKey{cluster: cluster.ID, attr: meta.ID}] = &attribute{
				meta:  meta,
				value: meta.Default,
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[desc.ID]; exists {
		return ErrEndpointExists
	}
	s.endpoints[desc.ID] = &endpointEntry{attrs: attrs}
	return nil
}

// RemoveEndpoint drops all attribute state for an endpoint.
func (s *Store) RemoveEndpoint(id model.EndpointID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.endpoints, id)
}

// Read returns the current value and revision of an attribute.
// Reads of the same attribute observe a consistent (value, revision)
// pair; reads are never blocked by writes to other attributes.
func (s *Store) Read(path model.AttributePath) (any, uint64, error) {
	entry, err := s.entry(path.Endpoint)
	if err != nil {
		return nil, 0, err
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	attr, ok := entry.attrs[attrKey{cluster: path.Cluster, attr: path.Attribute}]
	if !ok {
		return nil, 0, ErrNotFound
	}
	if !attr.meta.Access.CanRead() {
		return nil, 0, ErrUnreadable
	}
	return attr.value, attr.revision, nil
}

// Write validates and applies a new attribute value, bumping the
// revision by exactly one. The change notification is handed to the
// sink before Write returns: a writer that sees success is guaranteed
// the notification was enqueued.
func (s *Store) Write(path model.AttributePath, value any) (uint64, error) {
	entry, err := s.entry(path.Endpoint)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	attr, ok := entry.attrs[attrKey{cluster: path.Cluster, attr: path.Attribute}]
	if !ok {
		return 0, ErrNotFound
	}
	if !attr.meta.Access.CanWrite() {
		return 0, ErrUnwritable
	}
	if err := attr.meta.Validate(value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	attr.value = value
	attr.revision++

	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()

	if sink != nil {
		sink(Change{Path: path, Value: value, Revision: attr.revision})
	}
	return attr.revision, nil
}

// Seed applies an initial value without write-access checks, for
// endpoint implementations updating their own read-only attributes.
// The revision still advances and the sink still fires.
func (s *Store) Seed(path model.AttributePath, value any) (uint64, error) {
	entry, err := s.entry(path.Endpoint)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	attr, ok := entry.attrs[attrKey{cluster: path.Cluster, attr: path.Attribute}]
	if !ok {
		return 0, ErrNotFound
	}
	if err := attr.meta.Validate(value); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	attr.value = value
	attr.revision++

	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()

	if sink != nil {
		sink(Change{Path: path, Value: value, Revision: attr.revision})
	}
	return attr.revision, nil
}

// Snapshot returns all readable attribute values of an endpoint's
// cluster, for priming reports and the admin surface.
func (s *Store) Snapshot(endpoint model.EndpointID, cluster model.ClusterID) (map[model.AttributeID]any, error) {
	entry, err := s.entry(endpoint)
	if err != nil {
		return nil, err
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	result := make(map[model.AttributeID]any)
	for key, attr := range entry.attrs {
		if key.cluster == cluster && attr.meta.Access.CanRead() {
			result[key.attr] = attr.value
		}
	}
	return result, nil
}

// entry resolves an endpoint's state.
func (s *Store) entry(id model.EndpointID) (*endpointEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.endpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

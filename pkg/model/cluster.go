package model

import "errors"

// Descriptor errors.
var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrClusterNotFound   = errors.New("cluster not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrDuplicateMember   = errors.New("duplicate member id in cluster")
)

// ClusterDescriptor declares a named grouping of related attributes,
// commands, and events within an endpoint (e.g. "PowerState").
type ClusterDescriptor struct {
	// ID is the cluster identifier, scoped to its owning endpoint.
	ID ClusterID

	// Name is the human-readable cluster name.
	Name string

	// Attributes declared by this cluster, indexed by ID.
	Attributes map[AttributeID]*AttributeMetadata

	// Commands declared by this cluster, indexed by ID.
	Commands map[CommandID]*CommandMetadata

	// Events declared by this cluster, indexed by ID.
	Events map[EventID]*EventMetadata
}

// NewClusterDescriptor creates an empty cluster descriptor.
func NewClusterDescriptor(id ClusterID, name string) *ClusterDescriptor {
	return &ClusterDescriptor{
		ID:         id,
		Name:       name,
		Attributes: make(map[AttributeID]*AttributeMetadata),
		Commands:   make(map[CommandID]*CommandMetadata),
		Events:     make(map[EventID]*EventMetadata),
	}
}

// AddAttribute declares an attribute on the cluster.
func (c *ClusterDescriptor) AddAttribute(meta *AttributeMetadata) *ClusterDescriptor {
	c.Attributes[meta.ID] = meta
	return c
}

// AddCommand declares a command on the cluster.
func (c *ClusterDescriptor) AddCommand(meta *CommandMetadata) *ClusterDescriptor {
	c.Commands[meta.ID] = meta
	return c
}

// AddEvent declares an event on the cluster.
func (c *ClusterDescriptor) AddEvent(meta *EventMetadata) *ClusterDescriptor {
	c.Events[meta.ID] = meta
	return c
}

// Attribute returns the metadata for an attribute id.
func (c *ClusterDescriptor) Attribute(id AttributeID) (*AttributeMetadata, error) {
	meta, ok := c.Attributes[id]
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return meta, nil
}

// Command returns the metadata for a command id.
func (c *ClusterDescriptor) Command(id CommandID) (*CommandMetadata, error) {
	meta, ok := c.Commands[id]
	if !ok {
		return nil, ErrCommandNotFound
	}
	return meta, nil
}

// Event returns the metadata for an event id.
func (c *ClusterDescriptor) Event(id EventID) (*EventMetadata, error) {
	meta, ok := c.Events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return meta, nil
}

// EndpointDescriptor declares an endpoint's full capability set.
// It is resolved once at registration time; lookups after that go
// through the registry's handle tables.
type EndpointDescriptor struct {
	// ID is the endpoint identifier within the node.
	ID EndpointID

	// Label is an optional human-readable label.
	Label string

	// Clusters indexed by ID.
	Clusters map[ClusterID]*ClusterDescriptor
}

// NewEndpointDescriptor creates an endpoint descriptor without clusters.
func NewEndpointDescriptor(id EndpointID, label string) *EndpointDescriptor {
	return &EndpointDescriptor{
		ID:       id,
		Label:    label,
		Clusters: make(map[ClusterID]*ClusterDescriptor),
	}
}

// AddCluster attaches a cluster to the endpoint.
func (d *EndpointDescriptor) AddCluster(cluster *ClusterDescriptor) *EndpointDescriptor {
	d.Clusters[cluster.ID] = cluster
	return d
}

// Cluster returns a cluster descriptor by ID.
func (d *EndpointDescriptor) Cluster(id ClusterID) (*ClusterDescriptor, error) {
	cluster, ok := d.Clusters[id]
	if !ok {
		return nil, ErrClusterNotFound
	}
	return cluster, nil
}

// Attribute resolves attribute metadata by cluster and attribute id.
func (d *EndpointDescriptor) Attribute(cluster ClusterID, attr AttributeID) (*AttributeMetadata, error) {
	c, err := d.Cluster(cluster)
	if err != nil {
		return nil, err
	}
	return c.Attribute(attr)
}

// ClusterIDs returns the ids of all clusters on the endpoint.
func (d *EndpointDescriptor) ClusterIDs() []ClusterID {
	ids := make([]ClusterID, 0, len(d.Clusters))
	for id := range d.Clusters {
		ids = append(ids, id)
	}
	return ids
}

// Validate checks the descriptor for structural problems: nil clusters
// or member metadata whose map key disagrees with its declared ID.
func (d *EndpointDescriptor) Validate() error {
	for cid, cluster := range d.Clusters {
		if cluster == nil || cluster.ID != cid {
			return ErrDuplicateMember
		}
		for aid, meta := range cluster.Attributes {
			if meta == nil || meta.ID != aid {
				return ErrDuplicateMember
			}
		}
		for mid, meta := range cluster.Commands {
			if meta == nil || meta.ID != mid {
				return ErrDuplicateMember
			}
		}
		for eid, meta := range cluster.Events {
			if meta == nil || meta.ID != eid {
				return ErrDuplicateMember
			}
		}
	}
	return nil
}

// EndpointInfo is the discovery view of a registered endpoint.
type EndpointInfo struct {
	ID       EndpointID  `cbor:"1,keyasint"`
	Label    string      `cbor:"2,keyasint,omitempty"`
	Clusters []ClusterID `cbor:"3,keyasint"`
}

// Info returns endpoint information for discovery listings.
func (d *EndpointDescriptor) Info() *EndpointInfo {
	return &EndpointInfo{
		ID:       d.ID,
		Label:    d.Label,
		Clusters: d.ClusterIDs(),
	}
}

package model

import "fmt"

// NodeID identifies a device within a fabric.
type NodeID string

// EndpointID identifies an addressable endpoint within a node.
// Unique among registered endpoints at any instant; may be reused
// after a full teardown.
type EndpointID uint16

// ClusterID identifies a cluster within an endpoint.
type ClusterID uint16

// AttributeID identifies an attribute within a cluster.
type AttributeID uint16

// CommandID identifies a command within a cluster.
type CommandID uint8

// EventID identifies an event type within a cluster.
type EventID uint16

// SubscriptionID identifies a live subscription on the hub.
type SubscriptionID uint32

// Identity is a fabric-qualified subject identity ("fabric/node").
// The fabric qualifier is carried even for in-device operation so ACL
// entries need no rework when trust domains arrive.
type Identity string

// Fabric returns the fabric qualifier, or "" if unqualified.
func (i Identity) Fabric() string {
	for n := 0; n < len(i); n++ {
		if i[n] == '/' {
			return string(i[:n])
		}
	}
	return ""
}

// Node returns the node part of the identity.
func (i Identity) Node() string {
	for n := 0; n < len(i); n++ {
		if i[n] == '/' {
			return string(i[n+1:])
		}
	}
	return string(i)
}

// AttributePath addresses one attribute instance.
type AttributePath struct {
	Endpoint  EndpointID
	Cluster   ClusterID
	Attribute AttributeID
}

// String returns the path as "endpoint/cluster/attribute".
func (p AttributePath) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Endpoint, p.Cluster, p.Attribute)
}

// CommandPath addresses one command.
type CommandPath struct {
	Endpoint EndpointID
	Cluster  ClusterID
	Command  CommandID
}

// String returns the path as "endpoint/cluster/command".
func (p CommandPath) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Endpoint, p.Cluster, p.Command)
}

// EventPath addresses one event source.
type EventPath struct {
	Endpoint EndpointID
	Cluster  ClusterID
	Event    EventID
}

// String returns the path as "endpoint/cluster/event".
func (p EventPath) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Endpoint, p.Cluster, p.Event)
}

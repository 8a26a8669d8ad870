package model

// EventMetadata describes an event type emitted by a cluster.
//
// Events are fire-once: they are not stored after delivery. Each
// endpoint instance keeps a monotonically increasing sequence counter
// so subscribers can detect gaps; missed events are not re-delivered.
type EventMetadata struct {
	// ID is the event identifier within the cluster.
	ID EventID

	// Name is the human-readable event name.
	Name string

	// PayloadType is the data type of the event payload.
	PayloadType DataType

	// Description is a human-readable description.
	Description string
}

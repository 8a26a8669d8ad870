// Package model defines the interaction-model data types: identifiers,
// attributes, commands, events, clusters, and endpoint descriptors.
//
// An endpoint's capability set is declared as an EndpointDescriptor: a
// set of clusters, each grouping attribute, command, and event
// declarations with typed payload schemas. Descriptors are resolved
// once at registration time and dispatched via lookup tables; there is
// no inheritance between endpoint types.
//
// Runtime attribute state (values and revisions) lives in the hub's
// attribute store, not in the descriptor.
package model

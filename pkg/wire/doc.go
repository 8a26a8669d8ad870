// Package wire defines the transport-agnostic message envelope and its
// CBOR encoding.
//
// Every message crossing a hub boundary is an Envelope: a correlation
// id, a source identity, a target address (endpoint, cluster, member),
// an operation kind, and an opaque payload. Payloads are themselves
// CBOR-encoded operation structs defined in this package.
//
// All messages use integer map keys for compactness. Encoding is
// deterministic (canonical key order); decoding is lenient for forward
// compatibility.
package wire

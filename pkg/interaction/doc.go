// Package interaction provides the library surfaces on both sides of
// the hub.
//
// Clients use Client over a framed envelope connection: requests carry
// a correlation id, responses are matched back to the pending call,
// and notifications flow into SubscriptionStream values that survive
// reconnects. Endpoint implementers in the hub process use
// RegisterEndpoint, which returns a scoped Registration whose Release
// unregisters. The Session type serves one remote connection against a
// hub: it decodes envelopes, routes them through the hub's checked
// operations, and pumps subscription notifications back out.
package interaction

// Package subscription implements the hub's subscription manager.
//
// Subscriptions let a client observe attribute changes or event
// emissions on a registered endpoint. Each subscription owns a bounded
// notification channel; the manager fans applied changes out to every
// matching subscription in write order.
//
// # Delivery Modes
//
// On-change subscriptions receive every applied revision. Min-interval
// subscriptions coalesce: changes inside the interval collapse to the
// latest value, delivered when the interval elapses. When a
// min-interval subscription is torn down with a value still pending,
// that value is flushed before the channel closes, so observers always
// converge on the final state.
//
// # Backpressure
//
// The notification channel is bounded. A subscriber that stops reading
// loses the oldest queued notifications first; drops are counted on
// the subscription. Revision numbers let the subscriber detect the
// gap.
//
// # Liveness
//
// Every subscription carries a lease. A lease that expires without
// renewal removes the subscription, as do repeated delivery failures.
// Subscriptions never outlive their endpoint: endpoint teardown
// removes them synchronously.
package subscription

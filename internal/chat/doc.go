// Package chat provides the session manager, message log, and presence
// delivery for the support chat bridge.
//
// # Session lifecycle
//
// A session walks open -> assigned -> closed. Closed is terminal. A
// customer has at most one active session; OpenOrResumeSession is
// idempotent and safe under concurrent double-invocation (duplicate UI
// triggers), resolving races through the store's unique constraint the
// same way on every path.
//
// # Ordering
//
// Every message gets a per-session sequence number assigned atomically at
// append time. Readers always observe a strictly increasing, gap-free
// order; there is no ordering relationship across different sessions.
//
// # Delivery
//
// The Broadcaster fans persisted activity out to live subscribers as
// ephemeral PresenceEvents. Delivery is best effort: slow subscribers drop
// events, disconnects lose them, and the repair path is always the same -
// call Read with the last sequence you saw. Publishing happens strictly
// after the append commits, so an observed event always refers to a
// durable message.
//
// # Authorization
//
// Role checks come from the identity package; the session-scope rule
// (agents touch only their own or unassigned sessions) is enforced here
// because only this layer knows the assignment.
package chat

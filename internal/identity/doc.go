// Package identity owns admin accounts and authorization for the chat bridge.
//
// Accounts carry a role of super_admin or agent. super_admin may do
// everything, including account management and reassigning any session;
// agents may only claim unassigned sessions and work the ones assigned to
// them. The session-scoped half of that rule lives in the chat service,
// which knows the assignment; Authorize here answers the pure role question.
//
// Password handling is deliberate: hashing happens inside CreateAccount and
// RotatePassword with bcrypt, the raw value's lifetime is scoped to those
// calls, and VerifyCredentials burns a bcrypt compare on every failure path
// so response timing doesn't reveal whether a username exists. bcrypt work
// is intentionally slow and must stay off the chat hot path.
package identity

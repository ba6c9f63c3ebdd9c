// Package store provides persistent storage for the chat bridge using SQLite.
//
// # Architecture
//
// The store package splits persistence into two interfaces:
//
//   - AdminStore: Admin accounts (credentials, roles, activation)
//   - SessionStore: Chat sessions and their append-only message logs
//
// SQLiteStore implements both in a single struct so services can depend on
// the narrow interface they need while sharing one database handle.
//
// # Data Models
//
//   - AdminAccount: Support staff account with bcrypt password hash and a
//     role of super_admin or agent. Deactivated, never deleted.
//   - ChatSession: One customer interaction. Status walks open -> assigned
//     -> closed; closed is terminal. The partial unique index on
//     customer_ref guarantees at most one active session per customer.
//   - Message: Immutable log entry keyed by (session_id, seq). The seq
//     column is assigned from the session's last_seq counter inside the
//     append transaction, so readers always observe a gap-free order.
//
// # Concurrency
//
// All contended transitions are expressed as guarded UPDATE statements
// (claim: WHERE status = 'open'; append: bump last_seq WHERE status !=
// 'closed'). SQLite serializes writers, so exactly one concurrent claim or
// append wins per session and the rest observe the losing state. Sessions
// never share application-level locks with each other.
//
// # SQLite Configuration
//
// WAL mode for concurrent reads, foreign keys on:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// # Error Handling
//
// Sentinel errors cover the chat taxonomy: ErrDuplicateAccount,
// ErrAccountNotFound, ErrSessionNotFound, ErrDuplicateSession,
// ErrAlreadyAssigned, ErrSessionClosed. All methods accept context.Context.
package store

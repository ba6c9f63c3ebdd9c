// ABOUTME: Store interface and data types for chat bridge persistence
// ABOUTME: Defines AdminAccount, ChatSession, Message and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAccount is returned when creating an account whose username is taken
var ErrDuplicateAccount = errors.New("account already exists")

// ErrAccountNotFound is returned when an admin account doesn't exist
var ErrAccountNotFound = errors.New("admin account not found")

// ErrSessionNotFound is returned when a chat session doesn't exist
var ErrSessionNotFound = errors.New("chat session not found")

// ErrAlreadyAssigned is returned when claiming a session another admin holds
var ErrAlreadyAssigned = errors.New("session already assigned")

// ErrSessionClosed is returned when mutating a closed session
var ErrSessionClosed = errors.New("session closed")

// Role constants for admin accounts
const (
	RoleSuperAdmin = "super_admin"
	RoleAgent      = "agent"
)

// AdminAccount represents a privileged account that can work support sessions.
// PasswordHash is a bcrypt hash; the raw password is never stored or logged.
// Accounts are deactivated rather than deleted so assignment history survives.
type AdminAccount struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string // super_admin or agent
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session status constants
const (
	SessionOpen     = "open"
	SessionAssigned = "assigned"
	SessionClosed   = "closed"
)

// ChatSession represents one customer support interaction.
// AssignedAdmin is empty while open and retained after close so assignment
// history survives. At most one open/assigned session exists per CustomerRef.
type ChatSession struct {
	ID             string
	CustomerRef    string
	AssignedAdmin  string // admin account ID, empty when unassigned
	Status         string // open, assigned, closed
	LastSeq        int64  // highest message sequence issued for this session
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Active reports whether the session can still accept messages.
func (s *ChatSession) Active() bool {
	return s.Status == SessionOpen || s.Status == SessionAssigned
}

// Message is one immutable entry in a session's ordered log.
// Seq is strictly increasing per session with no gaps.
type Message struct {
	SessionID string
	Seq       int64
	Sender    string // "customer:<ref>" or "admin:<username>"
	Body      string
	SentAt    time.Time
}

// AdminStore defines persistence for admin accounts.
type AdminStore interface {
	CreateAccount(ctx context.Context, acct *AdminAccount) error
	GetAccount(ctx context.Context, id string) (*AdminAccount, error)
	GetAccountByUsername(ctx context.Context, username string) (*AdminAccount, error)
	UpdateAccountPassword(ctx context.Context, id, passwordHash string) error
	UpdateAccountRole(ctx context.Context, id, role string) error
	DeactivateAccount(ctx context.Context, id string) error
	ListAccounts(ctx context.Context) ([]*AdminAccount, error)
	CountAccounts(ctx context.Context) (int, error)
}

// SessionStore defines persistence for chat sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, session *ChatSession) error
	GetSession(ctx context.Context, id string) (*ChatSession, error)
	GetActiveSessionByCustomer(ctx context.Context, customerRef string) (*ChatSession, error)
	ListSessions(ctx context.Context, status string, limit int) ([]*ChatSession, error)

	// ClaimSession atomically moves open -> assigned for the given admin.
	// Returns ErrAlreadyAssigned or ErrSessionClosed when the transition loses.
	ClaimSession(ctx context.Context, sessionID, adminID string) error

	// ReassignSession moves an active session to a different admin.
	ReassignSession(ctx context.Context, sessionID, adminID string) error

	// CloseSession marks a session closed. Closing a closed session is a
	// no-op. Returns whether this call performed the transition, so exactly
	// one of several concurrent closers observes true.
	CloseSession(ctx context.Context, sessionID string) (bool, error)

	// AppendMessage assigns the next sequence number and inserts the message
	// in one transaction. msg.Seq and msg.SentAt are filled in on success.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns messages with seq > afterSeq in ascending order.
	ListMessages(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*Message, error)
}

// Store is the combined persistence interface backed by SQLite.
type Store interface {
	AdminStore
	SessionStore

	// Close releases any resources held by the store
	Close() error
}

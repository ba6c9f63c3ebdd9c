// ABOUTME: Chat session store methods with atomic status transitions
// ABOUTME: Claim/reassign/close use guarded UPDATEs so races resolve in SQL

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new chat session.
// The partial unique index on customer_ref rejects a second active session
// for the same customer, surfaced as ErrDuplicateSession; callers resolve the
// race by re-looking up the winner's session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, customer_ref, assigned_admin, status, last_seq, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var assigned sql.NullString
	if session.AssignedAdmin != "" {
		assigned = sql.NullString{String: session.AssignedAdmin, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.CustomerRef,
		assigned,
		session.Status,
		session.LastSeq,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.LastActivityAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting chat session: %w", err)
	}

	s.logger.Info("created chat session", "id", session.ID, "customer_ref", session.CustomerRef)
	return nil
}

// ErrDuplicateSession is returned when the customer already has an active session
var ErrDuplicateSession = errors.New("customer already has an active session")

// GetSession retrieves a chat session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	return s.getSession(ctx, "id = ?", id)
}

// GetActiveSessionByCustomer returns the customer's open or assigned session.
func (s *SQLiteStore) GetActiveSessionByCustomer(ctx context.Context, customerRef string) (*ChatSession, error) {
	return s.getSession(ctx, "customer_ref = ? AND status != 'closed'", customerRef)
}

func (s *SQLiteStore) getSession(ctx context.Context, where string, args ...any) (*ChatSession, error) {
	query := `
		SELECT id, customer_ref, assigned_admin, status, last_seq, created_at, last_activity_at
		FROM chat_sessions
		WHERE ` + where

	session, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat session: %w", err)
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*ChatSession, error) {
	var session ChatSession
	var assigned sql.NullString
	var createdAtStr, lastActivityStr string

	err := row.Scan(
		&session.ID,
		&session.CustomerRef,
		&assigned,
		&session.Status,
		&session.LastSeq,
		&createdAtStr,
		&lastActivityStr,
	)
	if err != nil {
		return nil, err
	}

	session.AssignedAdmin = assigned.String
	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.LastActivityAt, err = time.Parse(time.RFC3339, lastActivityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	return &session, nil
}

// ListSessions returns sessions, newest activity first. An empty status
// returns every session.
func (s *SQLiteStore) ListSessions(ctx context.Context, status string, limit int) ([]*ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, customer_ref, assigned_admin, status, last_seq, created_at, last_activity_at
		FROM chat_sessions
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY last_activity_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat sessions: %w", err)
	}

	return sessions, nil
}

// ClaimSession atomically transitions open -> assigned for the given admin.
// The guarded UPDATE only succeeds while the session is still open, so under
// concurrent claims exactly one admin wins.
func (s *SQLiteStore) ClaimSession(ctx context.Context, sessionID, adminID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE chat_sessions
		SET status = 'assigned', assigned_admin = ?, last_activity_at = ?
		WHERE id = ? AND status = 'open'
	`

	result, err := s.db.ExecContext(ctx, query, adminID, now, sessionID)
	if err != nil {
		return fmt.Errorf("claiming session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("session claimed", "session_id", sessionID, "admin_id", adminID)
		return nil
	}

	// Lost the race or wrong state - check the session to say why
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch session.Status {
	case SessionAssigned:
		return ErrAlreadyAssigned
	case SessionClosed:
		return ErrSessionClosed
	}
	return ErrSessionNotFound
}

// ReassignSession moves an active session to a different admin.
// Works from either open or assigned; closed sessions are immutable.
func (s *SQLiteStore) ReassignSession(ctx context.Context, sessionID, adminID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE chat_sessions
		SET status = 'assigned', assigned_admin = ?, last_activity_at = ?
		WHERE id = ? AND status != 'closed'
	`

	result, err := s.db.ExecContext(ctx, query, adminID, now, sessionID)
	if err != nil {
		return fmt.Errorf("reassigning session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("session reassigned", "session_id", sessionID, "admin_id", adminID)
		return nil
	}

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	return ErrSessionClosed
}

// CloseSession marks a session closed. Closing an already-closed session
// is a no-op so the operation is idempotent. The boolean reports whether
// this call performed the transition: under concurrent closes the guarded
// UPDATE lets exactly one caller see true, so close-driven side effects
// (like the closed presence event) fire once.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE chat_sessions
		SET status = 'closed', last_activity_at = ?
		WHERE id = ? AND status != 'closed'
	`

	result, err := s.db.ExecContext(ctx, query, now, sessionID)
	if err != nil {
		return false, fmt.Errorf("closing session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("session closed", "session_id", sessionID)
		return true, nil
	}

	// Already closed is fine; missing session is not
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

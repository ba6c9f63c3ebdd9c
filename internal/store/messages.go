// ABOUTME: Append-only message log with per-session sequence assignment
// ABOUTME: Sequence numbers are issued inside the insert transaction, no gaps

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendMessage assigns the next sequence number for the session and inserts
// the message, all in one transaction. The session's last_seq column is the
// sequence authority: the guarded UPDATE bumps it only while the session is
// not closed, which serializes concurrent appends to the same session.
// msg.Seq and msg.SentAt are filled in on success.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	var seq int64
	err = tx.QueryRowContext(ctx, `
		UPDATE chat_sessions
		SET last_seq = last_seq + 1, last_activity_at = ?
		WHERE id = ? AND status != 'closed'
		RETURNING last_seq
	`, nowStr, msg.SessionID).Scan(&seq)

	if errors.Is(err, sql.ErrNoRows) {
		// Closed or missing - distinguish outside the transaction
		_ = tx.Rollback()
		session, getErr := s.GetSession(ctx, msg.SessionID)
		if getErr != nil {
			return getErr
		}
		if session.Status == SessionClosed {
			return ErrSessionClosed
		}
		return fmt.Errorf("sequence assignment failed for session %s", msg.SessionID)
	}
	if err != nil {
		return fmt.Errorf("assigning sequence number: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, seq, sender, body, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.SessionID, seq, msg.Sender, msg.Body, nowStr)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	msg.Seq = seq
	msg.SentAt = now

	s.logger.Debug("message appended",
		"session_id", msg.SessionID,
		"seq", seq,
		"sender", msg.Sender)
	return nil
}

// ListMessages returns messages with seq > afterSeq in ascending order.
// Used for full history replay (afterSeq=0) and reconnect catch-up.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT session_id, seq, sender, body, sent_at
		FROM messages
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var sentAtStr string

		if err := rows.Scan(&msg.SessionID, &msg.Seq, &msg.Sender, &msg.Body, &sentAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.SentAt, err = time.Parse(time.RFC3339, sentAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return msgs, nil
}

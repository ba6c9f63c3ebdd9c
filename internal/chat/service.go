// ABOUTME: Chat service: session lifecycle, message log, and presence publishing
// ABOUTME: Messages are persisted first; presence events fire only after commit

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vthuan-dev/bufforder-sub002/internal/identity"
	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

// Service coordinates session lifecycle, the append-only message log, and
// presence delivery. Write operations on a session are serialized by the
// store's guarded updates; the service adds authorization and publishing.
type Service struct {
	sessions    store.SessionStore
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// New creates a chat service. Pass nil logger for default.
func New(sessions store.SessionStore, broadcaster *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:    sessions,
		broadcaster: broadcaster,
		logger:      logger.With("component", "chat"),
	}
}

// CustomerSender formats the sender tag for a customer message.
func CustomerSender(customerRef string) string {
	return "customer:" + customerRef
}

// AdminSender formats the sender tag for an admin message.
func AdminSender(acct *store.AdminAccount) string {
	return "admin:" + acct.Username
}

// OpenOrResumeSession returns the customer's active session, creating one if
// none exists. Idempotent under concurrent double-invocation: the partial
// unique index on customer_ref makes one insert win, and the loser resumes
// the winner's session after a re-lookup.
func (s *Service) OpenOrResumeSession(ctx context.Context, customerRef string) (*store.ChatSession, error) {
	if customerRef == "" {
		return nil, fmt.Errorf("customer ref is required")
	}

	session, err := s.sessions.GetActiveSessionByCustomer(ctx, customerRef)
	if err == nil {
		s.logger.Debug("resumed session", "session_id", session.ID, "customer_ref", customerRef)
		return session, nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	session = &store.ChatSession{
		ID:             uuid.New().String(),
		CustomerRef:    customerRef,
		Status:         store.SessionOpen,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		// Another open raced us; resume whatever it created
		if errors.Is(err, store.ErrDuplicateSession) {
			existing, lookupErr := s.sessions.GetActiveSessionByCustomer(ctx, customerRef)
			if lookupErr == nil {
				s.logger.Debug("found existing session after race", "session_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, err
	}

	s.logger.Info("session opened", "session_id", session.ID, "customer_ref", customerRef)
	s.broadcaster.Publish(session.ID, &PresenceEvent{
		SessionID: session.ID,
		Kind:      EventOpened,
		At:        now,
	}, "")

	return session, nil
}

// GetSession returns session metadata.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*store.ChatSession, error) {
	return s.sessions.GetSession(ctx, sessionID)
}

// ListSessions returns sessions filtered by status ("" for all).
func (s *Service) ListSessions(ctx context.Context, status string, limit int) ([]*store.ChatSession, error) {
	return s.sessions.ListSessions(ctx, status, limit)
}

// ClaimSession transitions open -> assigned for the acting admin. Under
// concurrent claims exactly one admin wins; the rest get ErrAlreadyAssigned.
func (s *Service) ClaimSession(ctx context.Context, sessionID string, acting *store.AdminAccount) (*store.ChatSession, error) {
	if !identity.Authorize(acting, identity.ActionClaim) {
		return nil, identity.ErrUnauthorized
	}

	if err := s.sessions.ClaimSession(ctx, sessionID, acting.ID); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish(sessionID, &PresenceEvent{
		SessionID: sessionID,
		Kind:      EventAssigned,
		Sender:    AdminSender(acting),
		At:        time.Now().UTC(),
	}, "")

	return session, nil
}

// ReassignSession moves a session to a different admin. Only admins holding
// the reassign action (super_admin) may do this.
func (s *Service) ReassignSession(ctx context.Context, sessionID, newAdminID string, acting *store.AdminAccount) error {
	if !identity.Authorize(acting, identity.ActionReassign) {
		return identity.ErrUnauthorized
	}

	if err := s.sessions.ReassignSession(ctx, sessionID, newAdminID); err != nil {
		return err
	}

	s.broadcaster.Publish(sessionID, &PresenceEvent{
		SessionID: sessionID,
		Kind:      EventAssigned,
		Sender:    "admin:" + newAdminID,
		At:        time.Now().UTC(),
	}, "")

	return nil
}

// CloseSession transitions a session to closed. Idempotent: closing a closed
// session is a no-op. Agents may close only sessions assigned to them.
func (s *Service) CloseSession(ctx context.Context, sessionID string, acting *store.AdminAccount) error {
	if !identity.Authorize(acting, identity.ActionClose) {
		return identity.ErrUnauthorized
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.requireSessionAccess(session, acting); err != nil {
		return err
	}

	closed, err := s.sessions.CloseSession(ctx, sessionID)
	if err != nil {
		return err
	}

	// Only the caller whose close performed the transition publishes, so
	// concurrent or repeat closes never emit a duplicate event
	if closed {
		s.broadcaster.Publish(sessionID, &PresenceEvent{
			SessionID: sessionID,
			Kind:      EventClosed,
			Sender:    AdminSender(acting),
			At:        time.Now().UTC(),
		}, "")
	}

	return nil
}

// AppendFromCustomer appends a customer message. The customer ref must match
// the session's owner.
func (s *Service) AppendFromCustomer(ctx context.Context, sessionID, customerRef, body string) (*store.Message, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CustomerRef != customerRef {
		return nil, identity.ErrUnauthorized
	}

	return s.append(ctx, sessionID, CustomerSender(customerRef), body)
}

// AppendFromAdmin appends an admin message. Agents may only write to
// sessions assigned to them; super_admin may write anywhere.
func (s *Service) AppendFromAdmin(ctx context.Context, sessionID string, acting *store.AdminAccount, body string) (*store.Message, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireSessionAccess(session, acting); err != nil {
		return nil, err
	}

	return s.append(ctx, sessionID, AdminSender(acting), body)
}

// append persists the message, then publishes. Persist-then-publish: once
// the append commits, the message is durable regardless of delivery; a
// dropped event is recovered by Read.
func (s *Service) append(ctx context.Context, sessionID, sender, body string) (*store.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("message body is required")
	}

	msg := &store.Message{
		SessionID: sessionID,
		Sender:    sender,
		Body:      body,
	}
	if err := s.sessions.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.broadcaster.Publish(sessionID, &PresenceEvent{
		SessionID: sessionID,
		Kind:      EventMessage,
		Seq:       msg.Seq,
		Sender:    msg.Sender,
		Body:      msg.Body,
		At:        msg.SentAt,
	}, "")

	return msg, nil
}

// Read returns messages with seq > afterSeq in ascending order. Used for
// full history replay (afterSeq=0) and incremental catch-up after reconnect.
func (s *Service) Read(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*store.Message, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.ListMessages(ctx, sessionID, afterSeq, limit)
}

// Subscribe attaches a live subscription to the session's presence events.
// Callers are expected to Read(sessionID, lastKnownSeq) first; the channel
// makes no durability guarantee. The subscription dies with ctx.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan *PresenceEvent, string, error) {
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, "", err
	}
	ch, subID := s.broadcaster.Subscribe(ctx, sessionID)
	return ch, subID, nil
}

// Unsubscribe drops a live subscription. Persisted state is untouched.
func (s *Service) Unsubscribe(sessionID, subID string) {
	s.broadcaster.Unsubscribe(sessionID, subID)
}

// PublishTyping emits an ephemeral typing notification. Never persisted,
// never an error: a lost typing event costs nothing.
func (s *Service) PublishTyping(sessionID, sender, excludeSubID string) {
	s.broadcaster.Publish(sessionID, &PresenceEvent{
		SessionID: sessionID,
		Kind:      EventTyping,
		Sender:    sender,
		At:        time.Now().UTC(),
	}, excludeSubID)
}

// requireSessionAccess enforces the agent-scope rule: agents act only on
// sessions assigned to them (or unassigned ones), super_admin acts anywhere.
func (s *Service) requireSessionAccess(session *store.ChatSession, acting *store.AdminAccount) error {
	if acting.Role == store.RoleSuperAdmin {
		return nil
	}
	if session.AssignedAdmin != "" && session.AssignedAdmin != acting.ID {
		return identity.ErrUnauthorized
	}
	return nil
}

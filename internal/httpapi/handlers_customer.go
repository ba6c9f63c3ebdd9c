// ABOUTME: Customer-facing widget handlers: open chat, send/read messages, live events
// ABOUTME: Every request carries X-Customer-Ref; the ref must match the session owner

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vthuan-dev/bufforder-sub002/internal/chat"
	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

type sessionResponse struct {
	ID             string    `json:"id"`
	CustomerRef    string    `json:"customer_ref"`
	AssignedAdmin  string    `json:"assigned_admin,omitempty"`
	Status         string    `json:"status"`
	LastSeq        int64     `json:"last_seq"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func toSessionResponse(s *store.ChatSession) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		CustomerRef:    s.CustomerRef,
		AssignedAdmin:  s.AssignedAdmin,
		Status:         s.Status,
		LastSeq:        s.LastSeq,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

type messageResponse struct {
	SessionID string    `json:"session_id"`
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

func toMessageResponse(m *store.Message) messageResponse {
	return messageResponse{
		SessionID: m.SessionID,
		Seq:       m.Seq,
		Sender:    m.Sender,
		Body:      m.Body,
		SentAt:    m.SentAt,
	}
}

func toMessageResponses(msgs []*store.Message) []messageResponse {
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageResponse(m)
	}
	return out
}

// handleChatOpen is the chat trigger endpoint. Repeated calls while a session
// is active return the same session; after close a fresh one is created.
func (s *Server) handleChatOpen(w http.ResponseWriter, r *http.Request) {
	ref := customerRef(r)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing "+customerRefHeader+" header")
		return
	}

	session, err := s.chat.OpenOrResumeSession(r.Context(), ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// requireCustomerSession loads the session and checks the caller's ref owns it.
func (s *Server) requireCustomerSession(w http.ResponseWriter, r *http.Request) (*store.ChatSession, string, bool) {
	ref := customerRef(r)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "missing "+customerRefHeader+" header")
		return nil, "", false
	}

	session, err := s.chat.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, err)
		return nil, "", false
	}
	if session.CustomerRef != ref {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, "", false
	}

	return session, ref, true
}

func (s *Server) handleCustomerSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ref, ok := s.requireCustomerSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "message body is required")
		return
	}

	msg, err := s.chat.AppendFromCustomer(r.Context(), session.ID, ref, req.Body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (s *Server) handleCustomerListMessages(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.requireCustomerSession(w, r)
	if !ok {
		return
	}

	afterSeq, limit := listParams(r)
	msgs, err := s.chat.Read(r.Context(), session.ID, afterSeq, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessageResponses(msgs))
}

func (s *Server) handleCustomerEvents(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.requireCustomerSession(w, r)
	if !ok {
		return
	}
	s.streamEvents(w, r, session.ID)
}

func (s *Server) handleCustomerTyping(w http.ResponseWriter, r *http.Request) {
	session, ref, ok := s.requireCustomerSession(w, r)
	if !ok {
		return
	}

	s.chat.PublishTyping(session.ID, chat.CustomerSender(ref), typingExclude(r))
	w.WriteHeader(http.StatusNoContent)
}

// typingExclude reads the optional sub_id from a typing request so the
// originator's own event stream is skipped. The body may be empty; a stale
// or bogus sub_id just means no stream is excluded.
func typingExclude(r *http.Request) string {
	var req struct {
		SubID string `json:"sub_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return ""
	}
	return req.SubID
}

// streamEvents bridges a presence subscription onto an SSE response. The
// subscription dies with the request context; missed events are the client's
// problem to repair via the messages endpoint. The connected frame carries
// the subscription ID so clients can exclude their own stream when sending
// typing notifications.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, subID, err := s.chat.Subscribe(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	fmt.Fprintf(w, "event: connected\ndata: {\"session_id\": %q, \"sub_id\": %q}\n\n", sessionID, subID)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			// SSE comment as heartbeat to detect dead connections
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case ev, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to marshal presence event", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

// listParams reads after_seq and limit query parameters, tolerating absence.
func listParams(r *http.Request) (afterSeq int64, limit int) {
	if v := r.URL.Query().Get("after_seq"); v != "" {
		afterSeq, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	return afterSeq, limit
}

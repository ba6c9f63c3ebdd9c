// ABOUTME: Admin handlers: login, session queue, claim/reassign/close, accounts
// ABOUTME: Account management routes are gated on the manage_accounts action

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vthuan-dev/bufforder-sub002/internal/chat"
	"github.com/vthuan-dev/bufforder-sub002/internal/identity"
	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

type accountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountResponse(a *store.AdminAccount) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Role:      a.Role,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	acct, err := s.identity.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	token, err := s.verifier.Generate(acct.ID, s.tokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("admin logged in", "username", acct.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"username": acct.Username,
		"role":     acct.Role,
	})
}

func (s *Server) handleAdminListSessions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	_, limit := listParams(r)

	sessions, err := s.chat.ListSessions(r.Context(), status, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]sessionResponse, len(sessions))
	for i, sess := range sessions {
		out[i] = toSessionResponse(sess)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.chat.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleAdminClaim(w http.ResponseWriter, r *http.Request) {
	acting := adminFromContext(r.Context())

	session, err := s.chat.ClaimSession(r.Context(), chi.URLParam(r, "sessionID"), acting)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleAdminReassign(w http.ResponseWriter, r *http.Request) {
	acting := adminFromContext(r.Context())

	var req struct {
		AdminID string `json:"admin_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	// The target must be a real account; reassigning to a ghost would strand
	// the session.
	if _, err := s.identity.GetAccount(r.Context(), req.AdminID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := s.chat.ReassignSession(r.Context(), sessionID, req.AdminID, acting); err != nil {
		s.writeServiceError(w, err)
		return
	}

	session, err := s.chat.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleAdminClose(w http.ResponseWriter, r *http.Request) {
	acting := adminFromContext(r.Context())

	if err := s.chat.CloseSession(r.Context(), chi.URLParam(r, "sessionID"), acting); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleAdminListMessages(w http.ResponseWriter, r *http.Request) {
	afterSeq, limit := listParams(r)

	msgs, err := s.chat.Read(r.Context(), chi.URLParam(r, "sessionID"), afterSeq, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessageResponses(msgs))
}

func (s *Server) handleAdminSendMessage(w http.ResponseWriter, r *http.Request) {
	acting := adminFromContext(r.Context())

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

	msg, err := s.chat.AppendFromAdmin(r.Context(), chi.URLParam(r, "sessionID"), acting, req.Body)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, chi.URLParam(r, "sessionID"))
}

func (s *Server) handleAdminTyping(w http.ResponseWriter, r *http.Request) {
	acting := adminFromContext(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.chat.GetSession(r.Context(), sessionID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.chat.PublishTyping(sessionID, chat.AdminSender(acting), typingExclude(r))
	w.WriteHeader(http.StatusNoContent)
}

// requireManageAccounts gates account management on the acting admin's role.
func (s *Server) requireManageAccounts(w http.ResponseWriter, r *http.Request) bool {
	acting := adminFromContext(r.Context())
	if !identity.Authorize(acting, identity.ActionManageAccounts) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireManageAccounts(w, r) {
		return
	}

	accounts, err := s.identity.ListAccounts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireManageAccounts(w, r) {
		return
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if req.Role == "" {
		req.Role = store.RoleAgent
	}

	acct, err := s.identity.CreateAccount(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (s *Server) handleRotatePassword(w http.ResponseWriter, r *http.Request) {
	if !s.requireManageAccounts(w, r) {
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	if err := s.identity.RotatePassword(r.Context(), chi.URLParam(r, "accountID"), req.Password); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	if !s.requireManageAccounts(w, r) {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	if err := s.identity.SetRole(r.Context(), chi.URLParam(r, "accountID"), req.Role); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireManageAccounts(w, r) {
		return
	}

	acting := adminFromContext(r.Context())
	accountID := chi.URLParam(r, "accountID")
	if acting.ID == accountID {
		writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}

	if err := s.identity.Deactivate(r.Context(), accountID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ABOUTME: End-to-end HTTP tests over httptest with a real SQLite store
// ABOUTME: Covers both surfaces, auth, error mapping, and the SSE stream

package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthuan-dev/bufforder-sub002/internal/chat"
	"github.com/vthuan-dev/bufforder-sub002/internal/config"
	"github.com/vthuan-dev/bufforder-sub002/internal/identity"
	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

func setupServer(t *testing.T) (*Server, *identity.Service) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := chat.NewBroadcaster(nil)
	t.Cleanup(b.Close)

	ids := identity.New(st, nil)
	srv := NewServer(Options{
		Chat:      chat.New(st, b, nil),
		Identity:  ids,
		JWTSecret: []byte("test-secret"),
		TokenTTL:  time.Hour,
		Storefront: config.StorefrontConfig{
			CommissionRate: 0.05,
			OrdersToday:    12,
			Currency:       "USD",
		},
	})
	return srv, ids
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func customerHeaders(ref string) map[string]string {
	return map[string]string{"X-Customer-Ref": ref}
}

func loginAdmin(t *testing.T, srv *Server, ids *identity.Service, username, role string) map[string]string {
	t.Helper()

	_, err := ids.CreateAccount(context.Background(), username, username+"@example.com", "pw-"+username, role)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/login", map[string]string{
		"username": username,
		"password": "pw-" + username,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	return map[string]string{"Authorization": "Bearer " + resp.Token}
}

func openSession(t *testing.T, srv *Server, ref string) sessionResponse {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/open", nil, customerHeaders(ref))
	require.Equal(t, http.StatusOK, rec.Code)

	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

func TestServer_ChatOpen_Idempotent(t *testing.T) {
	srv, _ := setupServer(t)

	first := openSession(t, srv, "cust-1")
	second := openSession(t, srv, "cust-1")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, store.SessionOpen, first.Status)
}

func TestServer_ChatOpen_MissingRef(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/open", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CustomerMessages_RoundTrip(t *testing.T) {
	srv, _ := setupServer(t)
	sess := openSession(t, srv, "cust-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/messages",
		map[string]string{"body": "Hello"}, customerHeaders("cust-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "customer:cust-1", msg.Sender)

	rec = doJSON(t, srv, http.MethodGet, "/api/chat/"+sess.ID+"/messages", nil, customerHeaders("cust-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var msgs []messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].Body)
}

func TestServer_CustomerMessages_WrongRef(t *testing.T) {
	srv, _ := setupServer(t)
	sess := openSession(t, srv, "cust-1")

	rec := doJSON(t, srv, http.MethodGet, "/api/chat/"+sess.ID+"/messages", nil, customerHeaders("cust-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_CustomerMessages_UnknownSession(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/chat/nope/messages", nil, customerHeaders("cust-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AdminLogin_BadPassword(t *testing.T) {
	srv, ids := setupServer(t)
	_, err := ids.CreateAccount(context.Background(), "root", "root@example.com", "correct", store.RoleSuperAdmin)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/login", map[string]string{
		"username": "root",
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AdminRoutes_RequireToken(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/admin/sessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/admin/sessions", nil,
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ClaimFlow(t *testing.T) {
	srv, ids := setupServer(t)
	agentA := loginAdmin(t, srv, ids, "agent-a", store.RoleAgent)
	agentB := loginAdmin(t, srv, ids, "agent-b", store.RoleAgent)

	sess := openSession(t, srv, "cust-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/claim", nil, agentA)
	require.Equal(t, http.StatusOK, rec.Code)

	var claimed sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	assert.Equal(t, store.SessionAssigned, claimed.Status)

	// The second claim loses with a conflict
	rec = doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/claim", nil, agentB)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_CloseThenAppend_Gone(t *testing.T) {
	srv, ids := setupServer(t)
	agent := loginAdmin(t, srv, ids, "agent-a", store.RoleAgent)

	sess := openSession(t, srv, "cust-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/claim", nil, agent)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/close", nil, agent)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/messages",
		map[string]string{"body": "too late"}, customerHeaders("cust-1"))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestServer_Reassign_AgentForbidden(t *testing.T) {
	srv, ids := setupServer(t)
	super := loginAdmin(t, srv, ids, "root", store.RoleSuperAdmin)
	agentA := loginAdmin(t, srv, ids, "agent-a", store.RoleAgent)
	agentB := loginAdmin(t, srv, ids, "agent-b", store.RoleAgent)
	_ = agentB

	sess := openSession(t, srv, "cust-1")
	rec := doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/claim", nil, agentA)
	require.Equal(t, http.StatusOK, rec.Code)

	// Find agent-b's ID through the accounts listing
	rec = doJSON(t, srv, http.MethodGet, "/api/admin/accounts", nil, super)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))

	var agentBID string
	for _, a := range accounts {
		if a.Username == "agent-b" {
			agentBID = a.ID
		}
	}
	require.NotEmpty(t, agentBID)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/reassign",
		map[string]string{"admin_id": agentBID}, agentA)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/sessions/"+sess.ID+"/reassign",
		map[string]string{"admin_id": agentBID}, super)
	require.Equal(t, http.StatusOK, rec.Code)

	var reassigned sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reassigned))
	assert.Equal(t, agentBID, reassigned.AssignedAdmin)
}

func TestServer_Accounts_AgentForbidden(t *testing.T) {
	srv, ids := setupServer(t)
	agent := loginAdmin(t, srv, ids, "agent-a", store.RoleAgent)

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/accounts", map[string]string{
		"username": "newbie",
		"password": "pw",
	}, agent)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/admin/accounts", nil, agent)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_Accounts_CreateAndDuplicate(t *testing.T) {
	srv, ids := setupServer(t)
	super := loginAdmin(t, srv, ids, "root", store.RoleSuperAdmin)

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/accounts", map[string]string{
		"username": "agent-new",
		"password": "pw",
		"role":     store.RoleAgent,
	}, super)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/accounts", map[string]string{
		"username": "agent-new",
		"password": "pw",
	}, super)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_DeactivatedAccount_LockedOut(t *testing.T) {
	srv, ids := setupServer(t)
	super := loginAdmin(t, srv, ids, "root", store.RoleSuperAdmin)
	agent := loginAdmin(t, srv, ids, "agent-a", store.RoleAgent)

	rec := doJSON(t, srv, http.MethodGet, "/api/admin/accounts", nil, super)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))

	var agentID string
	for _, a := range accounts {
		if a.Username == "agent-a" {
			agentID = a.ID
		}
	}
	require.NotEmpty(t, agentID)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/accounts/"+agentID+"/deactivate", nil, super)
	require.Equal(t, http.StatusOK, rec.Code)

	// The still-valid token no longer grants access
	rec = doJSON(t, srv, http.MethodGet, "/api/admin/sessions", nil, agent)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_Deactivate_SelfRejected(t *testing.T) {
	srv, ids := setupServer(t)
	super := loginAdmin(t, srv, ids, "root", store.RoleSuperAdmin)

	rec := doJSON(t, srv, http.MethodGet, "/api/admin/accounts", nil, super)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 1)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/accounts/"+accounts[0].ID+"/deactivate", nil, super)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Commission(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/commission", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CommissionRate float64 `json:"commission_rate"`
		OrdersToday    int     `json:"orders_today"`
		Currency       string  `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.05, resp.CommissionRate)
	assert.Equal(t, 12, resp.OrdersToday)
	assert.Equal(t, "USD", resp.Currency)
}

func TestServer_Typing_NoContent(t *testing.T) {
	srv, _ := setupServer(t)
	sess := openSession(t, srv, "cust-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/typing", nil, customerHeaders("cust-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_EventStream_DeliversMessages(t *testing.T) {
	srv, _ := setupServer(t)
	sess := openSession(t, srv, "cust-1")

	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		ts.URL+"/api/chat/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Customer-Ref", "cust-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	// First frame is the connected event
	requireSSEEvent(t, scanner, "connected")

	// A message posted by the customer shows up on the stream
	rec := doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/messages",
		map[string]string{"body": "Hello"}, customerHeaders("cust-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	data := requireSSEEvent(t, scanner, "message")

	var ev struct {
		Seq  int64  `json:"seq"`
		Body string `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "Hello", ev.Body)
}

func TestServer_Typing_ExcludesOriginator(t *testing.T) {
	srv, _ := setupServer(t)
	sess := openSession(t, srv, "cust-1")

	ts := httptest.NewServer(srv)
	defer ts.Close()

	openStream := func() *bufio.Scanner {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
			ts.URL+"/api/chat/"+sess.ID+"/events", nil)
		require.NoError(t, err)
		req.Header.Set("X-Customer-Ref", "cust-1")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return bufio.NewScanner(resp.Body)
	}

	originator := openStream()
	observer := openStream()

	var connected struct {
		SubID string `json:"sub_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(requireSSEEvent(t, originator, "connected")), &connected))
	require.NotEmpty(t, connected.SubID)
	requireSSEEvent(t, observer, "connected")

	rec := doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/typing",
		map[string]string{"sub_id": connected.SubID}, customerHeaders("cust-1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The observer sees the typing event
	requireSSEEvent(t, observer, "typing")

	// The originator's next frame is the message that follows, proving the
	// typing event was never delivered to its own stream
	rec = doJSON(t, srv, http.MethodPost, "/api/chat/"+sess.ID+"/messages",
		map[string]string{"body": "Hello"}, customerHeaders("cust-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	event, _ := readSSEEvent(t, originator)
	assert.Equal(t, "message", event)
}

// readSSEEvent reads the next event frame and returns its name and data.
func readSSEEvent(t *testing.T, scanner *bufio.Scanner) (string, string) {
	t.Helper()

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			continue
		}
		if event != "" && strings.HasPrefix(line, "data: ") {
			return event, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before next event (read error: %v)", scanner.Err())
	return "", ""
}

// requireSSEEvent reads frames until one with the given event name arrives
// and returns its data payload.
func requireSSEEvent(t *testing.T, scanner *bufio.Scanner, event string) string {
	t.Helper()

	deadline := time.After(5 * time.Second)
	found := false
	for scanner.Scan() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", event)
		default:
		}

		line := scanner.Text()
		if line == "event: "+event {
			found = true
			continue
		}
		if found && strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before %q event (read error: %v)", event, scanner.Err())
	return ""
}

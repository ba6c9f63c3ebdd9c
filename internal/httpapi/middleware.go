// ABOUTME: HTTP middleware for admin JWT authentication and customer ref extraction
// ABOUTME: Extracts the bearer token, resolves the account, and stashes it in context

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

type contextKey string

const adminContextKey contextKey = "admin_account"

// customerRefHeader identifies the customer on widget endpoints. The
// storefront embeds the ref in its page; there is no customer login.
const customerRefHeader = "X-Customer-Ref"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// adminAuth validates the JWT, resolves the admin account, and rejects
// deactivated accounts. Handlers past this middleware can rely on
// adminFromContext returning a live account.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			writeError(w, http.StatusUnauthorized, errMsg)
			return
		}

		accountID, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		acct, err := s.identity.GetAccount(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "account not found")
			return
		}

		if !acct.Active {
			writeError(w, http.StatusForbidden, "account is deactivated")
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminFromContext returns the authenticated admin account, or nil.
func adminFromContext(ctx context.Context) *store.AdminAccount {
	acct, _ := ctx.Value(adminContextKey).(*store.AdminAccount)
	return acct
}

// customerRef pulls the customer identifier from the request header.
// Empty means the widget is misconfigured; handlers reject with 400.
func customerRef(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(customerRefHeader))
}

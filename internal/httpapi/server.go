// ABOUTME: HTTP API server wiring the chat and identity services onto chi routes
// ABOUTME: Customer widget endpoints are header-identified; admin endpoints use JWT

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vthuan-dev/bufforder-sub002/internal/chat"
	"github.com/vthuan-dev/bufforder-sub002/internal/config"
	"github.com/vthuan-dev/bufforder-sub002/internal/identity"
)

// Server exposes the chat bridge over HTTP.
type Server struct {
	chat       *chat.Service
	identity   *identity.Service
	verifier   *JWTVerifier
	tokenTTL   time.Duration
	storefront config.StorefrontConfig
	logger     *slog.Logger

	router chi.Router
}

// Options configures a Server.
type Options struct {
	Chat           *chat.Service
	Identity       *identity.Service
	JWTSecret      []byte
	TokenTTL       time.Duration
	AllowedOrigins []string
	Storefront     config.StorefrontConfig
	Logger         *slog.Logger
}

// NewServer builds the router and returns a ready-to-serve Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 12 * time.Hour
	}

	s := &Server{
		chat:       opts.Chat,
		identity:   opts.Identity,
		verifier:   NewJWTVerifier(opts.JWTSecret),
		tokenTTL:   opts.TokenTTL,
		storefront: opts.Storefront,
		logger:     logger.With("component", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customerRefHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/commission", s.handleCommission)

		// Customer widget surface. No login; the widget sends its
		// customer ref on every request.
		r.Route("/chat", func(r chi.Router) {
			r.Post("/open", s.handleChatOpen)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/messages", s.handleCustomerListMessages)
				r.Post("/messages", s.handleCustomerSendMessage)
				r.Get("/events", s.handleCustomerEvents)
				r.Post("/typing", s.handleCustomerTyping)
			})
		})

		// Admin surface. Login is open; everything else sits behind
		// the JWT middleware.
		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleAdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.adminAuth)

				r.Route("/sessions", func(r chi.Router) {
					r.Get("/", s.handleAdminListSessions)
					r.Route("/{sessionID}", func(r chi.Router) {
						r.Get("/", s.handleAdminGetSession)
						r.Post("/claim", s.handleAdminClaim)
						r.Post("/reassign", s.handleAdminReassign)
						r.Post("/close", s.handleAdminClose)
						r.Get("/messages", s.handleAdminListMessages)
						r.Post("/messages", s.handleAdminSendMessage)
						r.Get("/events", s.handleAdminEvents)
						r.Post("/typing", s.handleAdminTyping)
					})
				})

				r.Route("/accounts", func(r chi.Router) {
					r.Get("/", s.handleListAccounts)
					r.Post("/", s.handleCreateAccount)
					r.Post("/{accountID}/password", s.handleRotatePassword)
					r.Post("/{accountID}/role", s.handleSetRole)
					r.Post("/{accountID}/deactivate", s.handleDeactivateAccount)
				})
			})
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleCommission returns the static storefront commission figures the
// widget header renders next to the chat button.
func (s *Server) handleCommission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commission_rate": s.storefront.CommissionRate,
		"orders_today":    s.storefront.OrdersToday,
		"currency":        s.storefront.Currency,
	})
}

// ABOUTME: Admin identity service: account creation, credential checks, roles
// ABOUTME: bcrypt hashing is mandatory and scoped to create/rotate calls only

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vthuan-dev/bufforder-sub002/internal/store"
)

// ErrInvalidCredentials is returned for any login failure. It deliberately
// does not say whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUnauthorized is returned when an account may not perform an action.
var ErrUnauthorized = errors.New("unauthorized")

// dummyHash keeps failed lookups on the same bcrypt timing as real compares,
// so login timing can't enumerate usernames.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Action is something an admin may attempt.
type Action string

const (
	ActionManageAccounts Action = "manage_accounts" // create/rotate/role/deactivate
	ActionClaim          Action = "claim"           // claim an unassigned session
	ActionReassign       Action = "reassign"        // move any session between admins
	ActionClose          Action = "close"           // close a session
)

// Service owns admin accounts and authorization decisions.
type Service struct {
	accounts store.AdminStore
	logger   *slog.Logger
}

// New creates an identity service. Pass nil logger for default.
func New(accounts store.AdminStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		logger:   logger.With("component", "identity"),
	}
}

// CreateAccount derives a password hash and stores a new admin account.
// The raw password never leaves this call. Returns store.ErrDuplicateAccount
// if the username is taken.
func (s *Service) CreateAccount(ctx context.Context, username, email, rawPassword, role string) (*store.AdminAccount, error) {
	if username == "" || rawPassword == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if role != store.RoleSuperAdmin && role != store.RoleAgent {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	acct := &store.AdminAccount{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("admin account created", "username", username, "role", role)
	return acct, nil
}

// VerifyCredentials checks a username/password pair and returns the account.
// Every failure path performs a bcrypt compare so the caller-observable
// timing is the same whether the username exists or not. Deactivated
// accounts fail like unknown ones.
func (s *Service) VerifyCredentials(ctx context.Context, username, rawPassword string) (*store.AdminAccount, error) {
	acct, err := s.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(rawPassword))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if !acct.Active {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(rawPassword))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(rawPassword)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return acct, nil
}

// RotatePassword derives and stores a new hash for the account.
func (s *Service) RotatePassword(ctx context.Context, accountID, rawPassword string) error {
	if rawPassword == "" {
		return fmt.Errorf("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.accounts.UpdateAccountPassword(ctx, accountID, string(hash))
}

// SetRole changes an account's role.
func (s *Service) SetRole(ctx context.Context, accountID, role string) error {
	return s.accounts.UpdateAccountRole(ctx, accountID, role)
}

// Deactivate marks an account inactive. The record is retained so closed
// sessions keep resolving their assigned admin.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	return s.accounts.DeactivateAccount(ctx, accountID)
}

// GetAccount returns an account by ID.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*store.AdminAccount, error) {
	return s.accounts.GetAccount(ctx, accountID)
}

// ListAccounts returns all admin accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]*store.AdminAccount, error) {
	return s.accounts.ListAccounts(ctx)
}

// Authorize reports whether the account may perform the action at all.
// Session-scoped checks (an agent acting on its own session) are layered on
// top by the chat service; this answers the role question only.
func Authorize(acct *store.AdminAccount, action Action) bool {
	if acct == nil || !acct.Active {
		return false
	}
	if acct.Role == store.RoleSuperAdmin {
		return true
	}

	// Agents may work sessions but not manage accounts or move other
	// admins' sessions around.
	switch action {
	case ActionClaim, ActionClose:
		return true
	default:
		return false
	}
}

// BootstrapResult reports what Bootstrap did.
type BootstrapResult struct {
	Created  bool
	Username string
}

// Bootstrap creates the default super_admin account if no accounts exist.
// It is idempotent: a second run is a no-op that reports already-exists
// instead of erroring.
func (s *Service) Bootstrap(ctx context.Context, username, email, rawPassword string) (*BootstrapResult, error) {
	count, err := s.accounts.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting accounts: %w", err)
	}
	if count > 0 {
		s.logger.Info("bootstrap skipped, admin account already exists")
		return &BootstrapResult{Created: false, Username: username}, nil
	}

	if _, err := s.CreateAccount(ctx, username, email, rawPassword, store.RoleSuperAdmin); err != nil {
		// Two bootstraps racing: the loser sees the winner's account
		if errors.Is(err, store.ErrDuplicateAccount) {
			return &BootstrapResult{Created: false, Username: username}, nil
		}
		return nil, err
	}

	return &BootstrapResult{Created: true, Username: username}, nil
}

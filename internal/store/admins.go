// ABOUTME: Admin account store methods for the SQLite store
// ABOUTME: Accounts are deactivated rather than deleted to keep assignment history

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAccount inserts a new admin account.
// Returns ErrDuplicateAccount if the username is already taken.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acct *AdminAccount) error {
	query := `
		INSERT INTO admin_accounts (id, username, email, password_hash, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	active := 0
	if acct.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		acct.ID,
		acct.Username,
		acct.Email,
		acct.PasswordHash,
		acct.Role,
		active,
		acct.CreatedAt.UTC().Format(time.RFC3339),
		acct.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("inserting admin account: %w", err)
	}

	s.logger.Info("created admin account", "id", acct.ID, "username", acct.Username, "role", acct.Role)
	return nil
}

// GetAccount retrieves an admin account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*AdminAccount, error) {
	return s.getAccount(ctx, "id = ?", id)
}

// GetAccountByUsername retrieves an admin account by username.
func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (*AdminAccount, error) {
	return s.getAccount(ctx, "username = ?", username)
}

func (s *SQLiteStore) getAccount(ctx context.Context, where string, arg any) (*AdminAccount, error) {
	query := `
		SELECT id, username, email, password_hash, role, active, created_at, updated_at
		FROM admin_accounts
		WHERE ` + where

	var acct AdminAccount
	var active int
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&acct.ID,
		&acct.Username,
		&acct.Email,
		&acct.PasswordHash,
		&acct.Role,
		&active,
		&createdAtStr,
		&updatedAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin account: %w", err)
	}

	acct.Active = active != 0
	acct.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	acct.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &acct, nil
}

// UpdateAccountPassword replaces the stored password hash.
func (s *SQLiteStore) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateAccount(ctx, id, "password_hash = ?", passwordHash)
}

// UpdateAccountRole changes an account's role.
func (s *SQLiteStore) UpdateAccountRole(ctx context.Context, id, role string) error {
	if role != RoleSuperAdmin && role != RoleAgent {
		return fmt.Errorf("invalid role %q", role)
	}
	return s.updateAccount(ctx, id, "role = ?", role)
}

// DeactivateAccount marks an account inactive. The row is kept so closed
// sessions still resolve their assigned admin.
func (s *SQLiteStore) DeactivateAccount(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id, "active = 0")
}

func (s *SQLiteStore) updateAccount(ctx context.Context, id, set string, args ...any) error {
	query := "UPDATE admin_accounts SET " + set + ", updated_at = ? WHERE id = ?"
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating admin account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	s.logger.Info("updated admin account", "id", id)
	return nil
}

// ListAccounts returns all admin accounts, oldest first.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*AdminAccount, error) {
	query := `
		SELECT id, username, email, password_hash, role, active, created_at, updated_at
		FROM admin_accounts
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying admin accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accts []*AdminAccount
	for rows.Next() {
		var acct AdminAccount
		var active int
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash, &acct.Role, &active, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning admin account: %w", err)
		}

		acct.Active = active != 0
		acct.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		acct.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		accts = append(accts, &acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin accounts: %w", err)
	}

	return accts, nil
}

// CountAccounts returns the number of admin accounts, active or not.
func (s *SQLiteStore) CountAccounts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_accounts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting admin accounts: %w", err)
	}
	return count, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/aiagenz/billing/internal/domain"
)

// UserRepository handles database operations for users.
type UserRepository struct {
	db querier
}

const userColumns = `id, email, name, phone, password, role, free_trial, entitlement_id, user_limit, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.Password, &u.Role,
		&u.FreeTrial, &u.EntitlementID, &u.UserLimit, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		u.ID, u.Email, u.Name, u.Phone, u.Password, u.Role,
		u.FreeTrial, u.EntitlementID, u.UserLimit, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return domain.ErrConflict("email already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID returns a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByIDForUpdate returns a user by ID and locks the row.
func (r *UserRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// Exists checks if a user with the given email already exists.
func (r *UserRepository) Exists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListAll returns all users ordered by creation date.
func (r *UserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateProfile sets the user's name and phone.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, phone string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET name = $2, phone = $3, updated_at = NOW() WHERE id = $1`,
		id, name, phone,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Delete removes a user by ID.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// Count returns the number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// DecrementFreeTrial is a compare-and-decrement; it never drives the counter below zero.
func (r *UserRepository) DecrementFreeTrial(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET free_trial = free_trial - 1, updated_at = NOW() WHERE id = $1 AND free_trial > 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement free trial: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DecrementUserLimit is a compare-and-decrement; it never drives the counter below zero.
func (r *UserRepository) DecrementUserLimit(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET user_limit = user_limit - 1, updated_at = NOW() WHERE id = $1 AND user_limit > 0`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement user limit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GrantEntitlement attaches an entitlement and tops up or resets the usage limit.
func (r *UserRepository) GrantEntitlement(ctx context.Context, id, entitlementID string, limit int, accumulate bool) error {
	query := `
		UPDATE users
		SET entitlement_id = $2,
		    user_limit = CASE WHEN $4 THEN user_limit + $3 ELSE $3 END,
		    free_trial = 0,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, entitlementID, limit, accumulate)
	if err != nil {
		return fmt.Errorf("failed to grant entitlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to grant entitlement: user %s not found", id)
	}
	return nil
}

// RevokeAccess detaches the user's entitlement and zeroes the usage limit.
func (r *UserRepository) RevokeAccess(ctx context.Context, id string, clearTrial bool) error {
	query := `
		UPDATE users
		SET entitlement_id = NULL,
		    user_limit = 0,
		    free_trial = CASE WHEN $2 THEN 0 ELSE free_trial END,
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, clearTrial); err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	return nil
}

package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilnstock/kilnstock/internal/shared"
)

// Repository describes persistence required by the users service.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	UpdateRestriction(ctx context.Context, id uuid.UUID, allowed string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository on Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectAccountSQL = `
SELECT user_id, username, email, user_role, allowed_transaction, created_at
FROM users`

// List returns every account ordered by username.
func (r *PGRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, selectAccountSQL+" ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Email, &a.Role, &a.AllowedTransaction, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return accounts, nil
}

// Get loads one account.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, selectAccountSQL+" WHERE user_id = $1", id).
		Scan(&a.ID, &a.Username, &a.Email, &a.Role, &a.AllowedTransaction, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, fmt.Errorf("get user: %w", err)
	}
	return a, nil
}

// UpdateRole changes an account's role.
func (r *PGRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET user_role = $2 WHERE user_id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateRestriction changes an account's transaction allow-list.
func (r *PGRepository) UpdateRestriction(ctx context.Context, id uuid.UUID, allowed string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET allowed_transaction = $2 WHERE user_id = $1`, id, allowed)
	if err != nil {
		return fmt.Errorf("update restriction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an account.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

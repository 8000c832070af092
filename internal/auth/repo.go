package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilnstock/kilnstock/internal/shared"
)

// Repository describes persistence required by the auth service.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// ErrDuplicateUser indicates the username or email is already taken.
var ErrDuplicateUser = errors.New("username or email already registered")

// PGRepository implements Repository on Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUserSQL = `
SELECT user_id, username, email, password_hash, user_role, allowed_transaction, created_at
FROM users`

func (r *PGRepository) scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.AllowedTransaction, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// FindByEmail loads a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUserSQL+" WHERE email = $1", email))
}

// FindByUsername loads a user by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUserSQL+" WHERE username = $1", username))
}

// FindByID loads a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUserSQL+" WHERE user_id = $1", id))
}

// CreateUser inserts a new account.
func (r *PGRepository) CreateUser(ctx context.Context, user *User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, email, password_hash, user_role, allowed_transaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.AllowedTransaction,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateUser
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE user_id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession records session metadata for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (session_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, userID, expiresAt, ip, ua,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

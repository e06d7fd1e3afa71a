package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/genclean-otp/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id         TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	phone           TEXT,
	password_hash   TEXT NOT NULL,
	role            TEXT NOT NULL,
	first_name      TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
)`

// UserRepo persists committed accounts in PostgreSQL.
type UserRepo struct {
	db *pgxpool.Pool
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{db: db}
}

// EnsureSchema creates the users table if it does not exist.
func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *UserRepo) Put(ctx context.Context, u *domain.User) error {
	const q = `
		INSERT INTO users (user_id, email, phone, password_hash, role, first_name, last_name,
		                   email_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, q, u.UserID, u.Email, u.Phone, u.PasswordHash, u.Role,
		u.FirstName, u.LastName, u.EmailConfirmed, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	return err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `
		SELECT user_id, email, phone, password_hash, role, first_name, last_name,
		       email_confirmed, created_at, updated_at
		FROM users
		WHERE email = $1`
	var u domain.User
	err := r.db.QueryRow(ctx, q, email).Scan(&u.UserID, &u.Email, &u.Phone, &u.PasswordHash, &u.Role,
		&u.FirstName, &u.LastName, &u.EmailConfirmed, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

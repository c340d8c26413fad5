package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cameronmore/nerdauth/sessions"
)

// PostgresDriverName is the database/sql driver registered by pgx.
const PostgresDriverName = "pgx"

const pgUniqueViolation = "23505"

type PostgresAuthStore struct {
	DB *sql.DB
}

// Returns a new Postgres user store. Run migrations.Up on db before using it.
func NewPostgresAuthStore(db *sql.DB) *PostgresAuthStore {
	return &PostgresAuthStore{DB: db}
}

// save a user with the Postgres store
func (pg *PostgresAuthStore) SaveUser(ctx context.Context, u sessions.User) error {
	newUserQuery := `
		INSERT INTO users (user_id, email, hashed_password, created_at)
		VALUES ($1, $2, $3, $4)
		`
	_, err := pg.DB.ExecContext(ctx, newUserQuery, u.UserId, u.Email, u.HashedPassword, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return sessions.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Load user by id in Postgres store
func (pg *PostgresAuthStore) LoadUserByUserId(ctx context.Context, id string) (sessions.User, error) {
	var u sessions.User
	err := pg.DB.QueryRowContext(ctx,
		"SELECT user_id, email, hashed_password, created_at FROM users WHERE user_id = $1", id,
	).Scan(&u.UserId, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.User{}, sessions.ErrUserNotFound
	} else if err != nil {
		return sessions.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// Load user by email in Postgres store
func (pg *PostgresAuthStore) LoadUserByEmail(ctx context.Context, email string) (sessions.User, error) {
	var u sessions.User
	err := pg.DB.QueryRowContext(ctx,
		"SELECT user_id, email, hashed_password, created_at FROM users WHERE email = $1", email,
	).Scan(&u.UserId, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.User{}, sessions.ErrUserNotFound
	} else if err != nil {
		return sessions.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

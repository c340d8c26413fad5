package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/cameronmore/nerdauth/sessions"
)

// SQLiteAuthStore is a sessions.UserStore on SQLite. The schema is applied by
// migrations.Up.
type SQLiteAuthStore struct {
	DB *sql.DB
}

// Returns a new SQLite user store. Run migrations.Up on db before using it.
func NewSQLiteStore(db *sql.DB) *SQLiteAuthStore {
	return &SQLiteAuthStore{DB: db}
}

func (s *SQLiteAuthStore) SaveUser(ctx context.Context, u sessions.User) error {
	newUserQuery := `
		INSERT INTO users (user_id, email, hashed_password, created_at)
		VALUES (?, ?, ?, ?)
		`
	_, err := s.DB.ExecContext(ctx, newUserQuery, u.UserId, u.Email, u.HashedPassword, u.CreatedAt)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return sessions.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteAuthStore) LoadUserByUserId(ctx context.Context, id string) (sessions.User, error) {
	return s.loadUser(ctx, "SELECT user_id, email, hashed_password, created_at FROM users WHERE user_id = ?", id)
}

func (s *SQLiteAuthStore) LoadUserByEmail(ctx context.Context, email string) (sessions.User, error) {
	return s.loadUser(ctx, "SELECT user_id, email, hashed_password, created_at FROM users WHERE email = ?", email)
}

func (s *SQLiteAuthStore) loadUser(ctx context.Context, query string, arg string) (sessions.User, error) {
	var u sessions.User
	err := s.DB.QueryRowContext(ctx, query, arg).Scan(&u.UserId, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sessions.User{}, sessions.ErrUserNotFound
	}
	if err != nil {
		return sessions.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

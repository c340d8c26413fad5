package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/cameronmore/nerdauth/sessions"
)

// Verifier checks an email and password against the user store.
type Verifier struct {
	users sessions.UserStore
	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewVerifier(users sessions.UserStore, cost int) (*Verifier, error) {
	pw := make([]byte, 32)
	if _, err := rand.Read(pw); err != nil {
		return nil, err
	}
	dummy, err := bcrypt.GenerateFromPassword(pw, cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Verifier{users: users, dummyHash: dummy}, nil
}

// Verify returns the user matching email and password. Unknown emails and
// wrong passwords both return ErrInvalidCredentials; store failures are
// returned wrapped.
func (v *Verifier) Verify(ctx context.Context, email string, password string) (sessions.User, error) {
	email = strings.TrimSpace(email)

	u, err := v.users.LoadUserByEmail(ctx, email)
	if errors.Is(err, sessions.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		return sessions.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return sessions.User{}, fmt.Errorf("load user: %w", err)
	}

	if !passwordIsEquivalent(password, u.HashedPassword) {
		return sessions.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func HashPassword(password string, cost int) (string, error) {
	bts, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bts), nil
}

func passwordIsEquivalent(password string, hashedPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

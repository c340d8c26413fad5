package sessions

import (
	"context"
	"net/http"
	"time"
)

// CookieName is the name of the cookie that carries the session.
const CookieName = "__session"

// RememberMaxAge is the lifetime of a "remember me" cookie.
const RememberMaxAge = 7 * 24 * time.Hour

// User is the stored account a session refers to. Sessions only ever carry
// the UserId.
type User struct {
	UserId         string
	Email          string
	HashedPassword string
	CreatedAt      time.Time
}

// UserStore is the user lookup the rest of the application depends on.
// Implementations return ErrUserNotFound when no user matches and
// ErrUserExists when saving an email that is already taken.
type UserStore interface {
	LoadUserByEmail(ctx context.Context, email string) (User, error)
	LoadUserByUserId(ctx context.Context, id string) (User, error)
	SaveUser(ctx context.Context, u User) error
}

// Store issues, reads and destroys sessions. Handlers only talk to this
// interface so the cookie mechanism can be swapped out.
type Store interface {
	// Create returns the cookie for a new session holding userId. When
	// remember is false the cookie lives for the browser session only.
	Create(ctx context.Context, userId string, remember bool) (*http.Cookie, error)

	// ReadUserId returns the user id of the request's session, or
	// ErrSessionInvalid when there is no usable session.
	ReadUserId(r *http.Request) (string, error)

	// Destroy ends the request's session and returns a cookie that expires
	// it on the client.
	Destroy(r *http.Request) (*http.Cookie, error)
}

// Options configure both Store implementations.
type Options struct {
	// Secrets sign (and for CookieStore, encrypt) sessions. The first one
	// is used for new sessions, all of them are accepted when reading.
	Secrets []string
	// Secure sets the Secure cookie attribute. Enable it in production.
	Secure bool
	// Lifetime is the server-side upper bound of a session.
	Lifetime time.Duration
}

func (o Options) lifetime() time.Duration {
	if o.Lifetime <= 0 {
		return RememberMaxAge
	}
	return o.Lifetime
}

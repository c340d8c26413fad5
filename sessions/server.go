package sessions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionKeyPrefix = "session:"

// KV is the key/value backend of a ServerStore. Get returns ErrKeyNotFound
// for missing or expired keys.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// ServerStore keeps sessions in a KV backend. The cookie only carries a
// signed random session id, so Destroy revokes the session everywhere.
type ServerStore struct {
	kv       KV
	secrets  []string
	secure   bool
	lifetime time.Duration
}

func NewServerStore(kv KV, opts Options) (*ServerStore, error) {
	if len(opts.Secrets) == 0 {
		return nil, ErrNoSecrets
	}
	for _, secret := range opts.Secrets {
		if secret == "" {
			return nil, ErrNoSecrets
		}
	}
	return &ServerStore{
		kv:       kv,
		secrets:  opts.Secrets,
		secure:   opts.Secure,
		lifetime: opts.lifetime(),
	}, nil
}

func newSessionId() string {
	return uuid.New().String()
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func signature(sessionId string, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionId))
	return mac.Sum(nil)
}

func signSessionId(sessionId string, secret string) string {
	return fmt.Sprintf("%s.%s", sessionId, base64.URLEncoding.EncodeToString(signature(sessionId, secret)))
}

func splitSignedSessionId(signedSessionId string) (string, string, error) {
	parts := strings.Split(signedSessionId, ".")
	if len(parts) != 2 {
		return "", "", ErrSignedSessionIdIncorrectLength
	}
	return parts[0], parts[1], nil
}

// VerifySessionId checks a signed session id against every secret and
// returns the bare id.
func VerifySessionId(signedSessionId string, secrets []string) (string, error) {
	sessionId, encodedSignature, err := splitSignedSessionId(signedSessionId)
	if err != nil {
		return "", err
	}
	decodedSignature, err := base64.URLEncoding.DecodeString(encodedSignature)
	if err != nil {
		return "", ErrInvalidSessionSignature
	}

	for _, secret := range secrets {
		if hmac.Equal(decodedSignature, signature(sessionId, secret)) {
			return sessionId, nil
		}
	}
	return "", ErrInvalidSessionSignature
}

func (s *ServerStore) Create(ctx context.Context, userId string, remember bool) (*http.Cookie, error) {
	sessionId := newSessionId()
	if err := s.kv.Set(ctx, sessionKey(sessionId), userId, s.lifetime); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return newCookie(signSessionId(sessionId, s.secrets[0]), remember, s.secure), nil
}

// ReadUserId returns ErrSessionInvalid for anything wrong with the cookie.
// Backend failures are returned wrapped.
func (s *ServerStore) ReadUserId(r *http.Request) (string, error) {
	sessionId, ok := s.verifiedSessionId(r)
	if !ok {
		return "", ErrSessionInvalid
	}

	userId, err := s.kv.Get(r.Context(), sessionKey(sessionId))
	if errors.Is(err, ErrKeyNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return userId, nil
}

func (s *ServerStore) Destroy(r *http.Request) (*http.Cookie, error) {
	if sessionId, ok := s.verifiedSessionId(r); ok {
		if err := s.kv.Del(r.Context(), sessionKey(sessionId)); err != nil {
			return nil, fmt.Errorf("delete session: %w", err)
		}
	}
	return expiredCookie(s.secure), nil
}

func (s *ServerStore) verifiedSessionId(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	sessionId, err := VerifySessionId(cookie.Value, s.secrets)
	if err != nil {
		return "", false
	}
	return sessionId, true
}

package sessions

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const keyDerivationInfo = "nerdauth session cookie v1"

// sessionData is the key-value mapping stored inside the encrypted cookie.
type sessionData struct {
	UserId    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// CookieStore keeps the whole session in an encrypted, signed cookie. Nothing
// is stored server-side.
type CookieStore struct {
	codecs   []securecookie.Codec
	secure   bool
	lifetime time.Duration
	now      func() time.Time
}

// NewCookieStore returns a CookieStore with one codec per secret.
func NewCookieStore(opts Options) (*CookieStore, error) {
	if len(opts.Secrets) == 0 {
		return nil, ErrNoSecrets
	}
	lifetime := opts.lifetime()

	codecs := make([]securecookie.Codec, 0, len(opts.Secrets))
	for _, secret := range opts.Secrets {
		if secret == "" {
			return nil, ErrNoSecrets
		}
		hashKey, blockKey, err := deriveKeys(secret)
		if err != nil {
			return nil, err
		}
		sc := securecookie.New(hashKey, blockKey).
			MaxAge(int(lifetime.Seconds())).
			SetSerializer(securecookie.JSONEncoder{})
		codecs = append(codecs, sc)
	}

	return &CookieStore{
		codecs:   codecs,
		secure:   opts.Secure,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// deriveKeys expands a secret into an HMAC key and an AES-256 key.
func deriveKeys(secret string) (hashKey []byte, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyDerivationInfo))
	keys := make([]byte, 64)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, nil, fmt.Errorf("derive session keys: %w", err)
	}
	return keys[:32], keys[32:], nil
}

func (s *CookieStore) Create(ctx context.Context, userId string, remember bool) (*http.Cookie, error) {
	data := sessionData{
		UserId:    userId,
		ExpiresAt: s.now().Add(s.lifetime).Unix(),
	}
	value, err := securecookie.EncodeMulti(CookieName, data, s.codecs...)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return newCookie(value, remember, s.secure), nil
}

func (s *CookieStore) ReadUserId(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrSessionInvalid
	}

	var data sessionData
	if err := securecookie.DecodeMulti(CookieName, cookie.Value, &data, s.codecs...); err != nil {
		return "", ErrSessionInvalid
	}
	if data.UserId == "" || s.now().Unix() >= data.ExpiresAt {
		return "", ErrSessionInvalid
	}
	return data.UserId, nil
}

// Destroy has nothing to remove server-side; expiring the cookie is enough.
func (s *CookieStore) Destroy(r *http.Request) (*http.Cookie, error) {
	return expiredCookie(s.secure), nil
}

package sessions

import (
	"net/http"
	"time"
)

// newCookie builds the session cookie. Without remember the cookie has no
// MaxAge and the browser drops it when it closes.
func newCookie(value string, remember bool, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if remember {
		c.MaxAge = int(RememberMaxAge.Seconds())
		c.Expires = time.Now().Add(RememberMaxAge)
	}
	return c
}

// expiredCookie clears the session cookie on the client.
func expiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

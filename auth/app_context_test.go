package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cameronmore/nerdauth/logging"
	"github.com/cameronmore/nerdauth/sessions"
)

type testApp struct {
	ac     *AuthContext
	users  *MemoryUserStore
	router http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store, err := sessions.NewCookieStore(sessions.Options{Secrets: []string{"test-secret"}})
	require.NoError(t, err)
	users := NewMemoryUserStore()
	ac, err := NewAuthContext(store, users, logging.Nop(), Settings{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return &testApp{ac: ac, users: users, router: NewRouter(ac)}
}

func (a *testApp) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func postForm(path string, form url.Values, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func get(path string, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", sessions.CookieName)
	return nil
}

func decodeFieldErrors(t *testing.T, w *httptest.ResponseRecorder) map[string]map[string]*string {
	t.Helper()
	var body map[string]map[string]*string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func loginForm(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func TestLogin_ValidationErrors(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name         string
		form         url.Values
		wantEmail    *string
		wantPassword *string
	}{
		{name: "invalid email", form: loginForm("nope", "password123"), wantEmail: ptr(MsgEmailInvalid)},
		{name: "missing password", form: loginForm("a@example.com", ""), wantPassword: ptr(MsgPasswordRequired)},
		{name: "short password", form: loginForm("a@example.com", "abc"), wantPassword: ptr(MsgPasswordTooShort)},
		{name: "unknown user", form: loginForm("ghost@example.com", "password123"), wantEmail: ptr(MsgInvalidCredentials)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, postForm("/login", tt.form))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Result().Cookies())
			body := decodeFieldErrors(t, w)
			require.Contains(t, body, "errors")
			assert.Contains(t, body["errors"], "email")
			assert.Contains(t, body["errors"], "password")
			assert.Equal(t, tt.wantEmail, body["errors"]["email"])
			assert.Equal(t, tt.wantPassword, body["errors"]["password"])
		})
	}
}

func TestLogin_WrongPasswordMatchesUnknownEmail(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	wrong := app.do(t, postForm("/login", loginForm("a@example.com", "wrong-password")))
	unknown := app.do(t, postForm("/login", loginForm("b@example.com", "wrong-password")))

	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestLogin_Success(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	form := loginForm("a@example.com", "correct-horse")
	form.Set("redirectTo", "/dashboard")
	w := app.do(t, postForm("/login", form))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	cookie := sessionCookie(t, w)
	assert.Zero(t, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)

	userId, err := app.ac.Sessions.ReadUserId(get("/", cookie))
	require.NoError(t, err)
	assert.Equal(t, "u1", userId)
}

func TestLogin_RememberMe(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	form := loginForm("a@example.com", "correct-horse")
	form.Set("remember", "on")
	w := app.do(t, postForm("/login", form))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, 604800, sessionCookie(t, w).MaxAge)
}

func TestLogin_UnsafeRedirectFallsBack(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	form := loginForm("a@example.com", "correct-horse")
	form.Set("redirectTo", "//evil.com")
	w := app.do(t, postForm("/login", form))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogin_ControlCharacterRedirectFallsBack(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	form := loginForm("a@example.com", "correct-horse")
	form.Set("redirectTo", "/\t/evil.com")
	w := app.do(t, postForm("/login", form))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLogin_MultipartForm(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("email", "a@example.com"))
	require.NoError(t, mw.WriteField("password", "correct-horse"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/login", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := app.do(t, r)

	assert.Equal(t, http.StatusFound, w.Code)
}

func TestSignup_CreatesUserAndSession(t *testing.T) {
	app := newTestApp(t)

	form := loginForm("new@example.com", "correct-horse")
	form.Set("remember", "on")
	w := app.do(t, postForm("/signup", form))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	u, err := app.users.LoadUserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Len(t, u.UserId, 26)
	assert.NotEqual(t, "correct-horse", u.HashedPassword)
	assert.False(t, u.CreatedAt.IsZero())

	cookie := sessionCookie(t, w)
	assert.Equal(t, 604800, cookie.MaxAge)
	userId, err := app.ac.Sessions.ReadUserId(get("/", cookie))
	require.NoError(t, err)
	assert.Equal(t, u.UserId, userId)

	// the new account can log in
	w = app.do(t, postForm("/login", loginForm("new@example.com", "correct-horse")))
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestSignup_Rejections(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "taken@example.com", "correct-horse")

	tests := []struct {
		name         string
		form         url.Values
		wantEmail    *string
		wantPassword *string
	}{
		{name: "invalid email", form: loginForm("bad", "password123"), wantEmail: ptr(MsgEmailInvalid)},
		{name: "short password", form: loginForm("x@example.com", "short"), wantPassword: ptr(MsgPasswordTooShort)},
		{name: "long password", form: loginForm("x@example.com", strings.Repeat("p", 73)), wantPassword: ptr(MsgPasswordTooLong)},
		{name: "duplicate email", form: loginForm("taken@example.com", "password123"), wantEmail: ptr(MsgUserExists)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, postForm("/signup", tt.form))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, w.Result().Cookies())
			body := decodeFieldErrors(t, w)
			assert.Equal(t, tt.wantEmail, body["errors"]["email"])
			assert.Equal(t, tt.wantPassword, body["errors"]["password"])
		})
	}
}

func TestLoginPage(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	t.Run("anonymous", func(t *testing.T) {
		w := app.do(t, get("/login?redirectTo=/account"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"redirectTo":"/account"}`, w.Body.String())
	})

	t.Run("unsafe redirect", func(t *testing.T) {
		w := app.do(t, get("/signup?redirectTo=https://evil.com"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"redirectTo":"/"}`, w.Body.String())
	})

	t.Run("already logged in", func(t *testing.T) {
		login := app.do(t, postForm("/login", loginForm("a@example.com", "correct-horse")))
		cookie := sessionCookie(t, login)

		for _, path := range []string{"/login", "/signup"} {
			w := app.do(t, get(path, cookie))
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/", w.Header().Get("Location"))
		}
	})
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")
	login := app.do(t, postForm("/login", loginForm("a@example.com", "correct-horse")))

	w := app.do(t, postForm("/logout", url.Values{}, sessionCookie(t, login)))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	cleared := sessionCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestIndex(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	w := app.do(t, get("/"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":null}`, w.Body.String())

	login := app.do(t, postForm("/login", loginForm("a@example.com", "correct-horse")))
	w = app.do(t, get("/", sessionCookie(t, login)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":{"id":"u1","email":"a@example.com"}}`, w.Body.String())
}

func TestRequireUser(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")

	t.Run("anonymous goes to login", func(t *testing.T) {
		w := app.do(t, get("/account"))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?redirectTo=%2Faccount", w.Header().Get("Location"))
	})

	t.Run("query string survives the login round trip", func(t *testing.T) {
		w := app.do(t, get("/account?tab=security"))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?redirectTo=%2Faccount%3Ftab%3Dsecurity", w.Header().Get("Location"))

		login := app.do(t, get("/login?redirectTo=%2Faccount%3Ftab%3Dsecurity"))
		assert.JSONEq(t, `{"redirectTo":"/account?tab=security"}`, login.Body.String())
	})

	t.Run("tampered cookie goes to login", func(t *testing.T) {
		w := app.do(t, get("/account", &http.Cookie{Name: sessions.CookieName, Value: "forged"}))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login"))
	})

	t.Run("logged in", func(t *testing.T) {
		login := app.do(t, postForm("/login", loginForm("a@example.com", "correct-horse")))
		w := app.do(t, get("/account", sessionCookie(t, login)))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user":{"id":"u1","email":"a@example.com"}}`, w.Body.String())
	})
}

func TestRequireUser_VanishedUserIsLoggedOut(t *testing.T) {
	app := newTestApp(t)
	seedUser(t, app.users, "u1", "a@example.com", "correct-horse")
	login := app.do(t, postForm("/login", loginForm("a@example.com", "correct-horse")))
	cookie := sessionCookie(t, login)

	app.users.DeleteUser(context.Background(), "u1")

	for _, path := range []string{"/account", "/"} {
		w := app.do(t, get(path, cookie))
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "/", w.Header().Get("Location"), path)
		assert.Less(t, sessionCookie(t, w).MaxAge, 0, path)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, get("/healthz"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestErrorBoundary(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "known error",
			err:        &AppError{Status: http.StatusBadRequest, Message: "Invalid form", Err: ErrInvalidForm},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"message":"Invalid form"}}`,
		},
		{
			name:       "unknown error in production",
			production: true,
			err:        errors.New("database is down"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":{"message":"Unknown Error"}}`,
		},
		{
			name:       "unknown error in development",
			err:        errors.New("database is down"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":{"message":"Unknown Error","detail":"database is down"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := &AuthContext{Logger: logging.Nop(), Production: tt.production}
			h := ac.handle(func(w http.ResponseWriter, r *http.Request) error { return tt.err })

			w := httptest.NewRecorder()
			h(w, get("/"))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestRecoverer(t *testing.T) {
	ac := &AuthContext{Logger: logging.Nop(), Production: true}
	h := ac.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(w, get("/")) })

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"message":"Unknown Error"}}`, w.Body.String())
}

func ptr(s string) *string {
	return &s
}

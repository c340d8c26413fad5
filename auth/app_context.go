package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cameronmore/nerdauth/logging"
	"github.com/cameronmore/nerdauth/sessions"
)

type contextKey int

const userContextKey contextKey = iota

// An authentication manager that serves the login, signup and logout forms and
// guards routes that need a user.
type AuthContext struct {
	Sessions   sessions.Store
	Users      sessions.UserStore
	Verifier   *Verifier
	Logger     logging.Logger
	Production bool
	BcryptCost int
}

// Settings are the AuthContext knobs that come from configuration.
type Settings struct {
	Production bool
	BcryptCost int
}

// Returns a new AuthContext given a session store, a user store and a logger.
func NewAuthContext(store sessions.Store, users sessions.UserStore, logger logging.Logger, settings Settings) (*AuthContext, error) {
	verifier, err := NewVerifier(users, settings.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthContext{
		Sessions:   store,
		Users:      users,
		Verifier:   verifier,
		Logger:     logger,
		Production: settings.Production,
		BcryptCost: settings.BcryptCost,
	}, nil
}

type userView struct {
	Id    string `json:"id"`
	Email string `json:"email"`
}

func viewOf(u sessions.User) *userView {
	return &userView{Id: u.UserId, Email: u.Email}
}

type formErrorsBody struct {
	Errors *FieldErrors `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFormErrors(w http.ResponseWriter, fe *FieldErrors) {
	writeJSON(w, http.StatusBadRequest, formErrorsBody{Errors: fe})
}

// UserFromContext returns the user RequireUser stored on the request.
func UserFromContext(ctx context.Context) (sessions.User, bool) {
	u, ok := ctx.Value(userContextKey).(sessions.User)
	return u, ok
}

// LoginPage reports where a successful login will land.
func (ac *AuthContext) LoginPage(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{
		"redirectTo": SafeRedirect(r.URL.Query().Get("redirectTo"), "/"),
	})
	return nil
}

// SignupPage mirrors LoginPage.
func (ac *AuthContext) SignupPage(w http.ResponseWriter, r *http.Request) error {
	return ac.LoginPage(w, r)
}

// Handles the login form. The expected body is a urlencoded or multipart form
// with the fields email, password, remember and redirectTo.
func (ac *AuthContext) Login(w http.ResponseWriter, r *http.Request) error {
	form, err := parseCredentialsForm(w, r)
	if err != nil {
		return err
	}
	if fe := validateCredentials(form); fe != nil {
		writeFormErrors(w, fe)
		return nil
	}

	u, err := ac.Verifier.Verify(r.Context(), form.Email, form.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		ac.Logger.Info(r.Context(), "login rejected", "email", form.Email)
		writeFormErrors(w, emailError(MsgInvalidCredentials))
		return nil
	}
	if err != nil {
		return err
	}

	ac.Logger.Info(r.Context(), "user logged in", "user_id", u.UserId)
	return ac.createUserSession(w, r, u.UserId, form.Remember, form.RedirectTo)
}

// Handles the signup form. It takes the same fields as Login and starts a
// session for the new user.
func (ac *AuthContext) Signup(w http.ResponseWriter, r *http.Request) error {
	form, err := parseCredentialsForm(w, r)
	if err != nil {
		return err
	}
	if fe := validateSignup(form); fe != nil {
		writeFormErrors(w, fe)
		return nil
	}

	_, err = ac.Users.LoadUserByEmail(r.Context(), form.Email)
	if err == nil {
		writeFormErrors(w, emailError(MsgUserExists))
		return nil
	}
	if !errors.Is(err, sessions.ErrUserNotFound) {
		return err
	}

	hashedPassword, err := HashPassword(form.Password, ac.BcryptCost)
	if err != nil {
		return err
	}
	newUser := sessions.User{
		UserId:         ulid.Make().String(),
		Email:          form.Email,
		HashedPassword: hashedPassword,
		CreatedAt:      time.Now().UTC(),
	}
	err = ac.Users.SaveUser(r.Context(), newUser)
	if errors.Is(err, sessions.ErrUserExists) {
		writeFormErrors(w, emailError(MsgUserExists))
		return nil
	}
	if err != nil {
		return err
	}

	ac.Logger.Info(r.Context(), "user signed up", "user_id", newUser.UserId)
	return ac.createUserSession(w, r, newUser.UserId, form.Remember, form.RedirectTo)
}

// Logs out a user by destroying the session and redirecting home.
func (ac *AuthContext) Logout(w http.ResponseWriter, r *http.Request) error {
	cookie, err := ac.Sessions.Destroy(r)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// Index returns the current user, or null for anonymous visitors.
func (ac *AuthContext) Index(w http.ResponseWriter, r *http.Request) error {
	u, ok, err := ac.optionalUser(r)
	if errors.Is(err, sessions.ErrUserNotFound) {
		return ac.Logout(w, r)
	}
	if err != nil {
		return err
	}

	var view *userView
	if ok {
		view = viewOf(u)
	}
	writeJSON(w, http.StatusOK, map[string]*userView{"user": view})
	return nil
}

// Account is only reachable through RequireUser.
func (ac *AuthContext) Account(w http.ResponseWriter, r *http.Request) error {
	u, ok := UserFromContext(r.Context())
	if !ok {
		return errors.New("account handler reached without a user")
	}
	writeJSON(w, http.StatusOK, map[string]*userView{"user": viewOf(u)})
	return nil
}

func (ac *AuthContext) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequireUser sends anonymous requests to the login page and logs out
// sessions whose user no longer exists.
func (ac *AuthContext) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok, err := ac.optionalUser(r)
		if errors.Is(err, sessions.ErrUserNotFound) {
			ac.Logger.Warn(r.Context(), "session refers to a missing user, logging out")
			if err := ac.Logout(w, r); err != nil {
				ac.renderError(w, r, err, "")
			}
			return
		}
		if err != nil {
			ac.renderError(w, r, err, "")
			return
		}
		if !ok {
			q := url.Values{"redirectTo": {r.URL.RequestURI()}}
			http.Redirect(w, r, "/login?"+q.Encode(), http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RedirectIfAuthenticated sends requests that already carry a session home.
func (ac *AuthContext) RedirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := ac.Sessions.ReadUserId(r)
		if err == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if !errors.Is(err, sessions.ErrSessionInvalid) {
			ac.renderError(w, r, err, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalUser resolves the session's user. ok is false when there is no
// valid session; ErrUserNotFound means the session outlived its user.
func (ac *AuthContext) optionalUser(r *http.Request) (sessions.User, bool, error) {
	userId, err := ac.Sessions.ReadUserId(r)
	if errors.Is(err, sessions.ErrSessionInvalid) {
		return sessions.User{}, false, nil
	}
	if err != nil {
		return sessions.User{}, false, err
	}

	u, err := ac.Users.LoadUserByUserId(r.Context(), userId)
	if err != nil {
		return sessions.User{}, false, err
	}
	return u, true, nil
}

func (ac *AuthContext) createUserSession(w http.ResponseWriter, r *http.Request, userId string, remember bool, redirectTo string) error {
	cookie, err := ac.Sessions.Create(r.Context(), userId, remember)
	if err != nil {
		return err
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, redirectTo, http.StatusFound)
	return nil
}

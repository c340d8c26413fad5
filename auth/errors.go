package auth

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// ErrInvalidCredentials is returned by Verify for an unknown email and for a
// wrong password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

var ErrInvalidForm = errors.New("the request body is not a valid form")

// AppError is a known application error. Its Message is safe to show to
// clients; anything else is rendered as "Unknown Error".
type AppError struct {
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error errorMessage `json:"error"`
}

type errorMessage struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// appHandler is an http handler that hands unhandled errors to the error
// boundary instead of writing them itself.
type appHandler func(w http.ResponseWriter, r *http.Request) error

func (ac *AuthContext) handle(h appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			ac.renderError(w, r, err, "")
		}
	}
}

// renderError is the error boundary. detail, when set, replaces err.Error()
// in the development-only detail field.
func (ac *AuthContext) renderError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		ac.Logger.Info(r.Context(), "request failed", "status", appErr.Status, "error", err)
		writeJSON(w, appErr.Status, errorBody{Error: errorMessage{Message: appErr.Message}})
		return
	}

	ac.Logger.Error(r.Context(), "unhandled error", "error", err)
	body := errorBody{Error: errorMessage{Message: "Unknown Error"}}
	if !ac.Production {
		body.Error.Detail = err.Error()
		if detail != "" {
			body.Error.Detail = detail
		}
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// Recoverer turns a panic into an error boundary response.
func (ac *AuthContext) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			ac.renderError(w, r, err, fmt.Sprintf("%v\n%s", rec, debug.Stack()))
		}()
		next.ServeHTTP(w, r)
	})
}

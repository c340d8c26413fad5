package auth

import (
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Field error messages returned to the form.
const (
	MsgEmailInvalid       = "Email is invalid"
	MsgPasswordRequired   = "Password is required"
	MsgPasswordTooShort   = "Password is too short"
	MsgPasswordTooLong    = "Password is too long"
	MsgInvalidCredentials = "Invalid email or password"
	MsgUserExists         = "A user already exists with this email"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes       = 72
	maxFormBytes           = 1 << 20
	maxMultipartFormMemory = 32 << 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldErrors is the per-field error payload of a rejected form. A nil field
// is rendered as JSON null.
type FieldErrors struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func emailError(msg string) *FieldErrors {
	return &FieldErrors{Email: &msg}
}

func passwordError(msg string) *FieldErrors {
	return &FieldErrors{Password: &msg}
}

type credentialsForm struct {
	Email      string
	Password   string
	Remember   bool
	RedirectTo string
}

// SafeRedirect returns to when it is a local path, otherwise fallback. This
// stops an attacker-supplied redirectTo from sending users off-site.
// Browsers drop tabs and newlines from URLs, so "/\t/evil.com" reads as
// "//evil.com"; any control character is rejected.
func SafeRedirect(to string, fallback string) string {
	if to == "" || !strings.HasPrefix(to, "/") {
		return fallback
	}
	if strings.ContainsFunc(to, unicode.IsControl) {
		return fallback
	}
	if strings.HasPrefix(to, "//") || strings.HasPrefix(to, "/\\") {
		return fallback
	}
	return to
}

func validEmail(email string) bool {
	if len(email) <= 3 || !strings.Contains(email, "@") {
		return false
	}
	return validate.Var(email, "required,email") == nil
}

// parseCredentialsForm accepts both urlencoded and multipart bodies.
func parseCredentialsForm(w http.ResponseWriter, r *http.Request) (credentialsForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxMultipartFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return credentialsForm{}, &AppError{Status: http.StatusBadRequest, Message: "Invalid form", Err: ErrInvalidForm}
	}
	return credentialsForm{
		Email:      strings.TrimSpace(r.PostFormValue("email")),
		Password:   r.PostFormValue("password"),
		Remember:   r.PostFormValue("remember") == "on",
		RedirectTo: SafeRedirect(r.PostFormValue("redirectTo"), "/"),
	}, nil
}

// validateCredentials applies the shared login/signup rules in order and
// reports only the first failure.
func validateCredentials(f credentialsForm) *FieldErrors {
	if !validEmail(f.Email) {
		return emailError(MsgEmailInvalid)
	}
	if f.Password == "" {
		return passwordError(MsgPasswordRequired)
	}
	if utf8.RuneCountInString(f.Password) < minPasswordLength {
		return passwordError(MsgPasswordTooShort)
	}
	return nil
}

func validateSignup(f credentialsForm) *FieldErrors {
	if fe := validateCredentials(f); fe != nil {
		return fe
	}
	if len(f.Password) > maxPasswordBytes {
		return passwordError(MsgPasswordTooLong)
	}
	return nil
}

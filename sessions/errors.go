package sessions

import "errors"

var ErrSignedSessionIdIncorrectLength = errors.New("the signed session id is not the correct length")

var ErrInvalidSessionSignature = errors.New("the signed session id had an invalid signature")

// ErrSessionInvalid covers a missing, tampered or expired session. Callers
// treat it as "not logged in".
var ErrSessionInvalid = errors.New("no valid session")

var ErrNoSecrets = errors.New("at least one session secret is required")

var ErrUserNotFound = errors.New("the user was not found with that email or id")

var ErrUserExists = errors.New("a user with that email already exists")

var ErrKeyNotFound = errors.New("key not found")

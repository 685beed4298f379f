package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("missing email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnavailable        = errors.New("auth service unavailable")
	ErrLoginFailed        = errors.New("login failed")

	// ErrNotConfigured is returned by login actions when no auth base URL is set
	ErrNotConfigured = errors.New("auth service address is not configured")
)

// NotConfiguredMessage is shown wherever a login or OAuth action is unavailable
const NotConfiguredMessage = "The auth service address is not configured (set AUTH_BASE_URL)."

var userMessages = map[error]string{
	ErrInvalidCredentials: "Invalid email or password.",
	ErrMissingFields:      "Enter your email and password.",
	ErrEmailTaken:         "This email is already registered.",
	ErrUserNotFound:       "User not found.",
	ErrUnauthorized:       "Authorization required.",
	ErrUnavailable:        "The authorization service is temporarily unavailable. Try again later.",
	ErrLoginFailed:        "Sign-in failed. Check your details and try again.",
}

// Structured reasons the auth service may send alongside its message
var reasonKinds = map[string]error{
	"INVALID_CREDENTIALS": ErrInvalidCredentials,
	"MISSING_FIELDS":      ErrMissingFields,
	"EMAIL_TAKEN":         ErrEmailTaken,
	"USER_NOT_FOUND":      ErrUserNotFound,
	"UNAUTHORIZED":        ErrUnauthorized,
}

// AuthError is a normalized login failure. Error returns the user-facing message.
type AuthError struct {
	Kind    error  // one of the Err* sentinels above
	Status  int    // HTTP status, 0 when the request never completed
	Code    string // body code, if any
	Message string // user-facing message
	Err     error  // underlying transport or decode error, if any
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Is(target error) bool {
	return target == e.Kind
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(kind error, status int, code string, cause error) *AuthError {
	return &AuthError{
		Kind:    kind,
		Status:  status,
		Code:    code,
		Message: UserMessage(kind),
		Err:     cause,
	}
}

// UserMessage returns the text shown to the user for kind
func UserMessage(kind error) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[ErrLoginFailed]
}

// classify maps a failed login response to an error kind. A structured reason
// wins; otherwise the service's free-text message is matched for backward
// compatibility, then the status code.
// TODO: drop the substring matching once UMS sends a reason on every failure.
func classify(reason, message, code string, status int) error {
	if kind, ok := reasonKinds[strings.ToUpper(strings.TrimSpace(reason))]; ok {
		return kind
	}

	normalized := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.Contains(normalized, "invalid credentials") || code == "401" || status == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case strings.Contains(normalized, "email and password"):
		return ErrMissingFields
	case strings.Contains(normalized, "email already registered"):
		return ErrEmailTaken
	case strings.Contains(normalized, "user not found"):
		return ErrUserNotFound
	case strings.Contains(normalized, "unauthorized"):
		return ErrUnauthorized
	case status >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return ErrLoginFailed
	}
}

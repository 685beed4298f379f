package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

// Role is a capability tag attached to a user
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSubscriber Role = "SUBSCRIBER"
	RoleProducer   Role = "PRODUCER"
)

// AllRoles lists the roles known to the front-end, in display order
var AllRoles = []Role{RoleAdmin, RoleProducer, RoleSubscriber}

// ErrMalformed is returned when a payload does not have the shape of a Session
var ErrMalformed = errors.New("malformed session payload")

// ErrExpired reports a session past its expiry
var ErrExpired = errors.New("session expired")

var validate = validator.New()

// User is the identity embedded in a Session
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Roles []Role `json:"roles"`
}

// Session is the authenticated identity record for one browser or terminal
type Session struct {
	Token     string `json:"token" validate:"required"`
	ExpiresAt int64  `json:"expiresAt" validate:"required"` // seconds since epoch
	User      *User  `json:"user" validate:"required"`
}

// Decode parses a JSON payload and checks that it has the shape of a Session.
// Expiry is not checked here.
func Decode(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// DecodeRedirectPayload decodes a base64url encoded JSON Session as issued by the
// OAuth success redirect. Padding is optional.
func DecodeRedirectPayload(encoded string) (Session, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(encoded), "=")
	if trimmed == "" {
		return Session{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		// Some issuers use the standard alphabet
		raw, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	return Decode(raw)
}

// EncodeRedirectPayload is the inverse of DecodeRedirectPayload
func EncodeRedirectPayload(s Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Expired reports whether the session is past its expiry at now.
// A zero expiry counts as expired.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt <= 0 {
		return true
	}
	return !time.Unix(s.ExpiresAt, 0).After(now)
}

// Valid reports whether the session is complete and unexpired
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && s.User != nil && !s.Expired(now)
}

// Clone returns a deep copy so callers cannot mutate the role set of a held session
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		u.Roles = slices.Clone(s.User.Roles)
		out.User = &u
	}
	return out
}

// Roles returns a copy of the user's roles
func (s Session) Roles() []Role {
	if s.User == nil {
		return nil
	}
	return slices.Clone(s.User.Roles)
}

// HasRole reports whether the user carries role
func (s Session) HasRole(role Role) bool {
	if s.User == nil {
		return false
	}
	return slices.Contains(s.User.Roles, role)
}

// TokenClaims returns the claims of the bearer token without verifying its
// signature. The front-end never trusts these for authorization; they are
// informational (issuer, subject, issued at).
func (s Session) TokenClaims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

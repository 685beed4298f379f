package fakebackend

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ziminpro/bird/internal/session"
)

var errInvalidToken = errors.New("invalid token")

// tokenClaims are the claims of an issued access token. Each user signs with
// their own secret, so rotating it revokes every token issued so far.
type tokenClaims struct {
	Email string         `json:"email"`
	Roles []session.Role `json:"roles"`
	jwt.RegisteredClaims
}

func newSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	return secret
}

// issueSessionLocked signs a token for acc and wraps it in a Session
func (b *Backend) issueSessionLocked(acc *account) (session.Session, error) {
	now := b.now()
	expires := now.Add(b.tokenTTL)

	claims := tokenClaims{
		Email: acc.user.Email,
		Roles: acc.user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ums",
			Subject:   acc.user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(acc.secret)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to sign token: %w", err)
	}

	user := acc.user
	user.Roles = append([]session.Role(nil), acc.user.Roles...)
	return session.Session{Token: token, ExpiresAt: expires.Unix(), User: &user}, nil
}

// IssueSession signs a fresh session for the user with id
func (b *Backend) IssueSession(id string) (session.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[id]
	if !ok {
		return session.Session{}, fmt.Errorf("unknown user %s", id)
	}
	return b.issueSessionLocked(acc)
}

// RevokeTokens rotates the signing secret of the user with id
func (b *Backend) RevokeTokens(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acc, ok := b.accounts[id]; ok {
		acc.secret = newSecret()
	}
}

// verify checks the bearer token and returns the account it was issued to
func (b *Backend) verify(header string) (*account, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, errInvalidToken
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var acc *account
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	_, err := parser.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		sub, err := token.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		found, ok := b.accounts[sub]
		if !ok {
			return nil, errInvalidToken
		}
		acc = found
		return found.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	return acc, nil
}

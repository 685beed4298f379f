package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/config"
	"github.com/ziminpro/bird/internal/session"
)

const maxResponseBytes = 4 << 20

// ErrUnauthorized is returned when a service rejected the bearer token. By the
// time the caller sees it the session has already been ended by the Fetcher.
var ErrUnauthorized = errors.New("not authenticated")

// APIError is a failed call to UMS or the messaging service
type APIError struct {
	Status  int    // HTTP status
	Code    string // envelope code, if any
	Message string // envelope message, or a generic description
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Code != fmt.Sprint(e.Status) {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// envelope is the {code, message, data} wrapper both services answer with
type envelope struct {
	Code    auth.ResponseCode `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
}

// SessionSource provides the session whose token is attached to each call
type SessionSource interface {
	Session() (session.Session, bool)
}

// Endpoints are the base URLs of the downstream services
type Endpoints struct {
	UMS     string
	Twitter string
}

// Client calls UMS and the messaging service on behalf of the signed-in user.
// All calls go through the given Doer, normally an *auth.Fetcher, so a 401
// anywhere ends the session.
type Client struct {
	endpoints Endpoints
	doer      auth.Doer
	sessions  SessionSource
	logger    zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger for failed calls
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new API client
func New(endpoints Endpoints, doer auth.Doer, sessions SessionSource, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints,
		doer:      doer,
		sessions:  sessions,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call sends one request and decodes the envelope. Any 2xx answer yields the
// envelope; its code is left to the caller because the services report many
// failures with HTTP 200.
func (c *Client) call(ctx context.Context, method, base, path string, body any) (*envelope, error) {
	endpoint := config.JoinURL(base, path)
	if endpoint == "" {
		return nil, fmt.Errorf("service address for %s is not configured", path)
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s, ok := c.sessions.Session(); ok {
		auth.SetBearer(req, s)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil {
			apiErr.Code = string(env.Code)
			if env.Message != "" {
				apiErr.Message = env.Message
			}
		}
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("Service call failed")
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &env, nil
}

// expect turns an envelope whose code is not one of codes into an *APIError
func expect(env *envelope, fallback string, codes ...string) error {
	if slices.Contains(codes, string(env.Code)) {
		return nil
	}
	msg := env.Message
	if msg == "" {
		msg = fallback
	}
	return &APIError{Status: http.StatusOK, Code: string(env.Code), Message: msg}
}

// decodeList decodes envelope data into a slice; anything that is not an
// array yields an empty list
func decodeList[T any](env *envelope) []T {
	var out []T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return []T{}
	}
	if out == nil {
		return []T{}
	}
	return out
}

func escape(id string) string {
	return url.PathEscape(id)
}

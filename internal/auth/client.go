package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/session"
)

// LoginPath is appended to the auth base URL for the credential exchange
const LoginPath = "/auth/login"

const maxResponseBytes = 1 << 20

// Credentials is what the login form collects. RememberMe only selects the
// local persistence tier and is never sent to the server.
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// loginRequest is the body sent to the login endpoint
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResponseCode is the envelope "code" field, sent as a string or a number
type ResponseCode string

func (c *ResponseCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ResponseCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code is neither string nor number: %w", err)
	}
	*c = ResponseCode(n.String())
	return nil
}

// Int returns the code as a number, or 0
func (c ResponseCode) Int() int {
	n, _ := strconv.Atoi(string(c))
	return n
}

// loginResponse is the UMS envelope; data is a Session on success and false otherwise
type loginResponse struct {
	Code    ResponseCode    `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

// Client performs the credential exchange with UMS
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClientLogger sets the logger for login attempts
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an auth client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login posts the credentials to endpointURL and returns the issued session.
// Every failure is an *AuthError carrying a user-facing message.
func (c *Client) Login(ctx context.Context, endpointURL string, creds Credentials) (session.Session, error) {
	jsonData, err := json.Marshal(loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(jsonData))
	if err != nil {
		return session.Session{}, newAuthError(ErrLoginFailed, 0, "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", endpointURL).Msg("Login request failed")
		return session.Session{}, newAuthError(ErrUnavailable, 0, "", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return session.Session{}, newAuthError(ErrUnavailable, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	var payload *loginResponse
	if len(body) > 0 {
		var parsed loginResponse
		if err := json.Unmarshal(body, &parsed); err == nil {
			payload = &parsed
		}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok && payload != nil {
		if sess, err := session.Decode(payload.Data); err == nil {
			c.logger.Info().Str("email", creds.Email).Str("user_id", sess.User.ID).Msg("User logged in")
			return sess, nil
		}
	}

	var reason, message, code string
	if payload != nil {
		reason, message, code = payload.Reason, payload.Message, string(payload.Code)
	}
	kind := classify(reason, message, code, resp.StatusCode)

	c.logger.Info().
		Str("email", creds.Email).
		Int("status", resp.StatusCode).
		Str("code", code).
		Str("message", message).
		Msg("Login rejected")

	return session.Session{}, newAuthError(kind, resp.StatusCode, code, nil)
}

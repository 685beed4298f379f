package auth

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/session"
)

// SignInPath is the login view
const SignInPath = "/login"

// SessionInvalidMessage is shown on the login view after a forced logout
const SessionInvalidMessage = "Your session is no longer valid. Please sign in again."

// NavState travels with a navigation to the login view
type NavState struct {
	From    string // path to return to after signing in
	Message string
}

// Navigator performs a client-side navigation
type Navigator interface {
	Navigate(target string, state NavState)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(target string, state NavState)

func (f NavigatorFunc) Navigate(target string, state NavState) { f(target, state) }

// Doer sends HTTP requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher is a drop-in replacement for an HTTP client that treats a 401 from any
// call as the end of the session: it logs out and navigates to the login view.
// Callers attach the bearer token themselves.
type Fetcher struct {
	doer     Doer
	session  *Context
	nav      Navigator
	location func() string
	logger   zerolog.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithDoer sets the underlying HTTP client
func WithDoer(doer Doer) FetcherOption {
	return func(f *Fetcher) {
		f.doer = doer
	}
}

// WithFetcherLogger sets the logger used to report forced logouts
func WithFetcherLogger(logger zerolog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher bound to a session context. location reports the
// path the user is on when a 401 arrives.
func NewFetcher(sc *Context, nav Navigator, location func() string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		doer:     http.DefaultClient,
		session:  sc,
		nav:      nav,
		location: location,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Do sends req unmodified and returns the response as is, including on 401.
// Other error statuses are left to the caller.
func (f *Fetcher) Do(req *http.Request) (*http.Response, error) {
	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		from := f.location()
		f.logger.Info().
			Str("url", req.URL.Redacted()).
			Str("from", from).
			Msg("Authentication rejected, ending session")

		f.session.Logout()
		f.nav.Navigate(SignInPath, NavState{From: from, Message: SessionInvalidMessage})
	}

	return resp, nil
}

// SetBearer attaches the session token to req
func SetBearer(req *http.Request, s session.Session) {
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
}

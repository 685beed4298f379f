package server

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	sessionKey      = "session"
)

// PageSession is the session state of one request: the context rebuilt from
// the browser's cookie tiers and the API client bound to it
type PageSession struct {
	Context *auth.Context
	API     *client.Client
	nav     *webNavigator
}

// webNavigator records a navigation requested while handling the request. The
// redirect is applied by the request goroutine, never by a fetch goroutine.
type webNavigator struct {
	mu      sync.Mutex
	pending bool
	target  string
	state   auth.NavState
}

func (n *webNavigator) Navigate(target string, state auth.NavState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending {
		return
	}
	n.pending = true
	n.target = target
	n.state = state
}

func (n *webNavigator) take() (string, auth.NavState, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.state, n.pending
}

func setSession(c *gin.Context, ps *PageSession) {
	c.Set(sessionKey, ps)
}

// GetSessionData returns the session state the session middleware attached
func GetSessionData(c *gin.Context) *PageSession {
	return c.MustGet(sessionKey).(*PageSession)
}

// requestIDMiddleware tags every request with a ULID, reusing a valid incoming one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := ulid.ParseStrict(id); err != nil {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// sessionMiddleware rebuilds the session context from the cookie tiers
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := s.requestLogger(c)
		secure := s.config.Web.CookieSecure

		store := session.NewStore(
			session.NewVisitCookies(c, secure),
			session.NewDurableCookies(c, secure),
			session.WithClock(s.now),
			session.WithLogger(log),
		)
		sc := auth.NewContext(store, s.authClient, auth.WithContextLogger(log))

		nav := &webNavigator{}
		fetcher := auth.NewFetcher(sc, nav, func() string { return currentLocation(c) },
			auth.WithDoer(s.httpClient),
			auth.WithFetcherLogger(log),
		)
		api := client.New(client.Endpoints{
			UMS:     s.config.Services.UMSBaseURL,
			Twitter: s.config.Services.TwitterBaseURL,
		}, fetcher, sc, client.WithLogger(log))

		setSession(c, &PageSession{Context: sc, API: api, nav: nav})
		c.Next()

		// A handler that ignored a rejected call still must not answer with content
		if !c.Writer.Written() {
			s.followNavigation(c)
		}
	}
}

// followNavigation applies a navigation recorded during the request: a 303 to
// the target with the message carried in the flash cookie. It reports whether
// the request was redirected.
func (s *Server) followNavigation(c *gin.Context) bool {
	ps := GetSessionData(c)
	target, state, ok := ps.nav.take()
	if !ok {
		return false
	}

	if state.Message != "" {
		setFlash(c, state.Message, s.config.Web.CookieSecure)
	}
	loc := target
	if state.From != "" {
		loc += "?" + url.Values{"from": {state.From}}.Encode()
	}
	c.Redirect(http.StatusSeeOther, loc)
	c.Abort()
	return true
}

// oauthBootstrapMiddleware installs a session carried by the OAuth return URL
// and redirects to the same URL without it
func (s *Server) oauthBootstrapMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ps := GetSessionData(c)
		cleaned, present := auth.ApplyRedirectSession(ps.Context, c.Request.URL)
		if !present {
			c.Next()
			return
		}

		s.requestLogger(c).Info().
			Bool("authenticated", ps.Context.IsAuthenticated()).
			Msg("Processed OAuth redirect")
		c.Redirect(http.StatusSeeOther, cleaned.RequestURI())
		c.Abort()
	}
}

// Guard applies a route guard decision before the handler runs
func Guard(decide func(auth.Snapshot, string) auth.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps := GetSessionData(c)
		d := decide(ps.Context.Snapshot(), c.Request.URL.RequestURI())
		if !d.Allow {
			c.Redirect(http.StatusSeeOther, d.Location())
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentLocation is the page the user is on. Form posts report the page
// they were submitted from.
func currentLocation(c *gin.Context) string {
	if c.Request.Method == http.MethodGet {
		return c.Request.URL.RequestURI()
	}
	if ref, err := url.Parse(c.Request.Referer()); err == nil && ref.Host == c.Request.Host {
		if p := ref.RequestURI(); auth.IsLocalPath(p) {
			return p
		}
	}
	return "/"
}

func (s *Server) requestLogger(c *gin.Context) zerolog.Logger {
	return s.logger.With().Str(requestIDKey, c.GetString(requestIDKey)).Logger()
}

func encodeFlash(message string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(message))
}

func decodeFlash(raw string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return ""
	}
	return string(decoded)
}

package auth

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/session"
)

// Phase is the session lifecycle state
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Snapshot is an immutable view of a Context at one instant
type Snapshot struct {
	Phase   Phase
	Session *session.Session // nil unless authenticated
}

// IsAuthenticated reports whether a valid session is installed and no login is in flight
func (s Snapshot) IsAuthenticated() bool {
	return s.Phase == PhaseAuthenticated && s.Session != nil
}

// Roles returns the roles of the current session
func (s Snapshot) Roles() []session.Role {
	if !s.IsAuthenticated() {
		return nil
	}
	return s.Session.Roles()
}

// HasRole reports whether the current session carries role
func (s Snapshot) HasRole(role session.Role) bool {
	return s.IsAuthenticated() && s.Session.HasRole(role)
}

// IsAdmin reports whether the current session carries the administrator role
func (s Snapshot) IsAdmin() bool {
	return s.HasRole(session.RoleAdmin)
}

// CanAccess reports whether the current session carries any of roles.
// It gates what is shown; the services enforce their own authorization.
func (s Snapshot) CanAccess(roles ...session.Role) bool {
	if !s.IsAuthenticated() {
		return false
	}
	return slices.ContainsFunc(roles, s.Session.HasRole)
}

// Authenticator exchanges credentials for a session
type Authenticator interface {
	Login(ctx context.Context, endpointURL string, creds Credentials) (session.Session, error)
}

// Context holds the current session for one page lifetime: one request in the
// web front-end, one process run in the CLI. It is created from the store and
// changes only through Login, Install and Logout.
type Context struct {
	mu        sync.RWMutex
	notifyMu  sync.Mutex // orders deliveries so the last one carries the latest state
	store     *session.Store
	client    Authenticator
	current   *session.Session
	inFlight  int
	listeners map[int]func(Snapshot)
	nextID    int
	logger    zerolog.Logger
}

// ContextOption configures a Context
type ContextOption func(*Context)

// WithContextLogger sets the logger for state transitions
func WithContextLogger(logger zerolog.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// NewContext creates a Context initialized from whatever the store holds
func NewContext(store *session.Store, client Authenticator, opts ...ContextOption) *Context {
	c := &Context{
		store:     store,
		client:    client,
		listeners: make(map[int]func(Snapshot)),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if s, ok := store.Load(); ok {
		c.current = &s
	}
	return c
}

// Snapshot returns the current state
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() Snapshot {
	if c.inFlight > 0 {
		return Snapshot{Phase: PhaseAuthenticating}
	}
	if c.current == nil || !c.current.Valid(c.store.Now()) {
		return Snapshot{Phase: PhaseUnauthenticated}
	}
	s := c.current.Clone()
	return Snapshot{Phase: PhaseAuthenticated, Session: &s}
}

// Phase returns the lifecycle state
func (c *Context) Phase() Phase { return c.Snapshot().Phase }

// Session returns a copy of the current session
func (c *Context) Session() (session.Session, bool) {
	snap := c.Snapshot()
	if !snap.IsAuthenticated() {
		return session.Session{}, false
	}
	return *snap.Session, true
}

func (c *Context) IsAuthenticated() bool                { return c.Snapshot().IsAuthenticated() }
func (c *Context) IsAdmin() bool                        { return c.Snapshot().IsAdmin() }
func (c *Context) HasRole(role session.Role) bool       { return c.Snapshot().HasRole(role) }
func (c *Context) CanAccess(roles ...session.Role) bool { return c.Snapshot().CanAccess(roles...) }
func (c *Context) Roles() []session.Role                { return c.Snapshot().Roles() }

// Login exchanges credentials at endpointURL. On success the session is
// persisted in the tier chosen by creds.RememberMe and installed. On failure the
// previous state is kept and the error is returned for display.
func (c *Context) Login(ctx context.Context, endpointURL string, creds Credentials) (session.Session, error) {
	if strings.TrimSpace(endpointURL) == "" {
		return session.Session{}, ErrNotConfigured
	}

	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	c.notify()

	s, err := c.client.Login(ctx, endpointURL, creds)
	if err == nil && !s.Valid(c.store.Now()) {
		// The client does not check expiry; a dead session is a failed login
		err = newAuthError(ErrLoginFailed, 0, "", session.ErrExpired)
	}

	c.mu.Lock()
	c.inFlight--
	if err == nil {
		c.store.Save(s, creds.RememberMe)
		installed := s.Clone()
		c.current = &installed
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return session.Session{}, err
	}
	c.logger.Debug().Str("user_id", s.User.ID).Bool("remember", creds.RememberMe).Msg("Session installed")
	return s.Clone(), nil
}

// Install adopts an externally issued session, such as one carried by the
// OAuth redirect. Invalid or expired sessions are ignored.
func (c *Context) Install(s session.Session, remember bool) bool {
	if !s.Valid(c.store.Now()) {
		return false
	}

	c.mu.Lock()
	c.store.Save(s, remember)
	installed := s.Clone()
	c.current = &installed
	c.mu.Unlock()
	c.notify()

	c.logger.Debug().Str("user_id", s.User.ID).Msg("External session installed")
	return true
}

// Logout clears every tier and drops the current session. Safe to call repeatedly.
func (c *Context) Logout() {
	c.mu.Lock()
	c.store.Clear()
	changed := c.current != nil
	c.current = nil
	c.mu.Unlock()

	if changed {
		c.logger.Debug().Msg("Session cleared")
		c.notify()
	}
}

// Subscribe registers fn to be called with the new state after each completed
// transition. The returned func unregisters it. Listeners must not start a
// transition themselves.
func (c *Context) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Context) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.RLock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

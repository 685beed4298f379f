package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/config"
	"github.com/ziminpro/bird/internal/session"
)

// Env carries what every command needs. Execute builds one backed by the OS
// keychain and the runtime directory; tests swap the tiers, the prompter and
// the output writer.
type Env struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Visit      session.Storage // per-visit tier, gone when the user logs out of the machine
	Durable    session.Storage // remembered tier
	HTTPClient *http.Client
	Prompter   Prompter
	Out        io.Writer
	Now        func() time.Time

	once  sync.Once
	state *cliSession
}

// cliSession is the session state of one CLI process
type cliSession struct {
	ctx *auth.Context
	api *client.Client
	nav *cliNavigator
}

// cliNavigator records that the session ended so the command can tell the user
// how to continue. There is no view to navigate to in a terminal.
type cliNavigator struct {
	mu      sync.Mutex
	pending bool
	state   auth.NavState
}

func (n *cliNavigator) Navigate(_ string, state auth.NavState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending {
		return
	}
	n.pending = true
	n.state = state
}

func (n *cliNavigator) ended() (auth.NavState, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state, n.pending
}

var errNotSignedIn = errors.New("not signed in. Run 'bird login' first")

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) session(location string) *cliSession {
	e.once.Do(func() {
		store := session.NewStore(e.Visit, e.Durable,
			session.WithClock(e.now),
			session.WithLogger(e.Logger),
		)
		authClient := auth.NewClient(
			auth.WithHTTPClient(e.HTTPClient),
			auth.WithClientLogger(e.Logger),
		)
		sc := auth.NewContext(store, authClient, auth.WithContextLogger(e.Logger))

		nav := &cliNavigator{}
		fetcher := auth.NewFetcher(sc, nav, func() string { return location },
			auth.WithDoer(e.HTTPClient),
			auth.WithFetcherLogger(e.Logger),
		)
		api := client.New(client.Endpoints{
			UMS:     e.Config.Services.UMSBaseURL,
			Twitter: e.Config.Services.TwitterBaseURL,
		}, fetcher, sc, client.WithLogger(e.Logger))

		e.state = &cliSession{ctx: sc, api: api, nav: nav}
	})
	return e.state
}

// authorize runs a route guard against the stored session and turns a
// redirect into an error the user can act on
func (e *Env) authorize(command string, decide func(auth.Snapshot, string) auth.Decision) (*cliSession, auth.Snapshot, error) {
	cs := e.session(command)
	snap := cs.ctx.Snapshot()

	d := decide(snap, command)
	switch {
	case d.Allow:
		return cs, snap, nil
	case d.Target == auth.ForbiddenPath:
		return nil, snap, fmt.Errorf("access denied: 'bird %s' requires the %s role", command, session.RoleAdmin)
	default:
		return nil, snap, errNotSignedIn
	}
}

// requireRole is authorize plus one of roles
func (e *Env) requireRole(command string, roles ...session.Role) (*cliSession, auth.Snapshot, error) {
	cs, snap, err := e.authorize(command, auth.RequireAuth)
	if err != nil {
		return nil, snap, err
	}
	if !snap.CanAccess(roles...) {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		return nil, snap, fmt.Errorf("access denied: 'bird %s' requires the %s role", command, strings.Join(names, " or "))
	}
	return cs, snap, nil
}

// finish maps a service error to what the user should see. A rejected token has
// already ended the session; the user is told to sign in again.
func (e *Env) finish(cs *cliSession, err error) error {
	if state, ended := cs.nav.ended(); ended {
		msg := state.Message
		if msg == "" {
			msg = auth.SessionInvalidMessage
		}
		if state.From != "" {
			return fmt.Errorf("%s\nRun 'bird login', then 'bird %s' again", msg, state.From)
		}
		return fmt.Errorf("%s\nRun 'bird login'", msg)
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return errNotSignedIn
	}
	return err
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}

func (e *Env) println(args ...any) {
	fmt.Fprintln(e.Out, args...)
}

// directoryNames maps user ids to display names. Errors leave the map empty so
// callers fall back to ids.
func directoryNames(ctx context.Context, api *client.Client) map[string]string {
	names := make(map[string]string)
	users, err := api.ListUsers(ctx)
	if err != nil {
		return names
	}
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	return names
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

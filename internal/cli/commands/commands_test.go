package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/config"
	"github.com/ziminpro/bird/internal/fakebackend"
	"github.com/ziminpro/bird/internal/session"
)

const password = "hunter22"

type stubPrompter struct {
	email, password string
	roles           []session.Role
	confirm         bool
	err             error

	asked []string
}

func (p *stubPrompter) Email() (string, error) {
	p.asked = append(p.asked, "email")
	return p.email, p.err
}

func (p *stubPrompter) Password() (string, error) {
	p.asked = append(p.asked, "password")
	return p.password, p.err
}

func (p *stubPrompter) Roles(string, []session.Role) ([]session.Role, error) {
	p.asked = append(p.asked, "roles")
	return p.roles, p.err
}

func (p *stubPrompter) Confirm(string) (bool, error) {
	p.asked = append(p.asked, "confirm")
	return p.confirm, p.err
}

type fixture struct {
	t        *testing.T
	backend  *fakebackend.Backend
	srv      *httptest.Server
	cfg      *config.Config
	visit    *session.MemoryStorage
	durable  *session.MemoryStorage
	prompter *stubPrompter

	admin, alice, bob string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("BIRD_EMAIL", "")
	t.Setenv("BIRD_PASSWORD", "")

	f := &fixture{
		t:        t,
		backend:  fakebackend.New(),
		visit:    session.NewMemoryStorage(),
		durable:  session.NewMemoryStorage(),
		prompter: &stubPrompter{},
	}
	f.admin = f.backend.AddUser("Ada Admin", "admin@bird.dev", password, session.RoleAdmin)
	f.alice = f.backend.AddUser("Alice Reader", "alice@bird.dev", password, session.RoleSubscriber)
	f.bob = f.backend.AddUser("Bob Writer", "bob@bird.dev", password, session.RoleProducer)

	f.srv = httptest.NewServer(f.backend.Handler())
	t.Cleanup(f.srv.Close)

	f.cfg = &config.Config{
		Env: "test",
		Services: config.ServicesConfig{
			AuthBaseURL:    f.srv.URL + fakebackend.UMSPrefix,
			UMSBaseURL:     f.srv.URL + fakebackend.UMSPrefix,
			TwitterBaseURL: f.srv.URL + fakebackend.TwitterPrefix,
			HTTPTimeout:    5 * time.Second,
		},
	}
	return f
}

// run executes one CLI invocation. Each invocation is a fresh process sharing
// only the session tiers.
func (f *fixture) run(args ...string) (string, error) {
	f.t.Helper()

	var out bytes.Buffer
	env := &Env{
		Config:     f.cfg,
		Logger:     zerolog.Nop(),
		Visit:      f.visit,
		Durable:    f.durable,
		HTTPClient: f.srv.Client(),
		Prompter:   f.prompter,
		Out:        &out,
	}

	root := &cobra.Command{Use: "bird", SilenceUsage: true, SilenceErrors: true}
	root.SetOut(&out)
	root.SetErr(&out)
	root.AddCommand(
		NewLoginCmd(env),
		NewLogoutCmd(env),
		NewWhoamiCmd(env),
		NewFeedCmd(env),
		NewPostCmd(env),
		NewSubscriptionsCmd(env),
		NewSubscribersCmd(env),
		NewUsersCmd(env),
	)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) login(email string) {
	f.t.Helper()
	_, err := f.run("login", "--email", email, "--password", password)
	require.NoError(f.t, err)
}

func TestLogin_RememberedGoesToKeychainTier(t *testing.T) {
	f := newFixture(t)

	out, err := f.run("login", "--email", "alice@bird.dev", "--password", password)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Signed in")
	assert.Contains(t, out, "Alice Reader (alice@bird.dev)")
	assert.Contains(t, out, "Roles: SUBSCRIBER")

	assert.Equal(t, 1, f.durable.Len())
	assert.Zero(t, f.visit.Len())
	assert.Empty(t, f.prompter.asked)
}

func TestLogin_PerVisit(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("login", "--email", "alice@bird.dev", "--password", password, "--remember=false")
	require.NoError(t, err)
	assert.Equal(t, 1, f.visit.Len())
	assert.Zero(t, f.durable.Len())
}

func TestLogin_PromptsForMissingInput(t *testing.T) {
	f := newFixture(t)
	f.prompter.email = "bob@bird.dev"
	f.prompter.password = password

	out, err := f.run("login")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "password"}, f.prompter.asked)
	assert.Contains(t, out, "Bob Writer")
}

func TestLogin_EnvironmentCredentials(t *testing.T) {
	f := newFixture(t)
	t.Setenv("BIRD_EMAIL", "bob@bird.dev")
	t.Setenv("BIRD_PASSWORD", password)

	_, err := f.run("login")
	require.NoError(t, err)
	assert.Empty(t, f.prompter.asked)
}

func TestLogin_NonInteractive(t *testing.T) {
	f := newFixture(t)
	f.prompter.err = ErrNotInteractive

	_, err := f.run("login", "--email", "bob@bird.dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required in non-interactive mode")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("login", "--email", "alice@bird.dev", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password.", err.Error())
	assert.Zero(t, f.durable.Len())
	assert.Zero(t, f.visit.Len())
}

func TestLogin_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.Services.AuthBaseURL = ""

	_, err := f.run("login", "--email", "alice@bird.dev", "--password", password)
	require.Error(t, err)
	assert.Equal(t, auth.NotConfiguredMessage, err.Error())
	assert.Empty(t, f.prompter.asked)
}

func TestLogin_RedirectURL(t *testing.T) {
	f := newFixture(t)

	sess, err := f.backend.IssueSession(f.bob)
	require.NoError(t, err)
	payload, err := session.EncodeRedirectPayload(sess)
	require.NoError(t, err)

	out, err := f.run("login", "--redirect-url", "http://localhost:3000/?auth="+payload)
	require.NoError(t, err)
	assert.Contains(t, out, "Bob Writer")
	assert.Equal(t, 1, f.durable.Len())

	_, err = f.run("login", "--redirect-url", "http://localhost:3000/console")
	assert.Error(t, err)

	_, err = f.run("login", "--redirect-url", "http://localhost:3000/?auth=garbage")
	assert.Error(t, err)
}

func TestWhoamiAndLogout(t *testing.T) {
	f := newFixture(t)

	out, err := f.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")

	f.login("admin@bird.dev")
	out, err = f.run("whoami", "--claims")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Admin <admin@bird.dev>")
	assert.Contains(t, out, "Roles:   ADMIN")
	assert.Contains(t, out, "sub: "+f.admin)

	out, err = f.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	assert.Zero(t, f.durable.Len())

	// Logging out twice is harmless
	_, err = f.run("logout")
	assert.NoError(t, err)
}

func TestFeed(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("feed")
	assert.ErrorIs(t, err, errNotSignedIn)

	f.backend.Follow(f.alice, f.bob)
	f.backend.AddMessage(f.bob, "first\npost")

	f.login("alice@bird.dev")
	out, err := f.run("feed")
	require.NoError(t, err)
	assert.Contains(t, out, "Bob Writer")
	assert.Contains(t, out, "first post")

	_, err = f.run("feed", "--mine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the PRODUCER role")
}

func TestPost(t *testing.T) {
	f := newFixture(t)

	f.login("alice@bird.dev")
	_, err := f.run("post", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	f.login("bob@bird.dev")
	out, err := f.run("post", "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Posted")

	msgs := f.backend.MessagesBy(f.bob)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello world", msgs[0].Content)

	out, err = f.run("feed", "--mine")
	require.NoError(t, err)
	assert.Contains(t, out, "hello world")
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)
	f.login("alice@bird.dev")

	out, err := f.run("subscriptions")
	require.NoError(t, err)
	assert.Contains(t, out, "You are not following anyone yet.")

	out, err = f.run("subscriptions", "add", f.bob, f.bob)
	require.NoError(t, err)
	assert.Contains(t, out, "Following 1 producer(s)")
	assert.Equal(t, []string{f.bob}, f.backend.SubscriptionsOf(f.alice))

	out, err = f.run("subs")
	require.NoError(t, err)
	assert.Contains(t, out, "Bob Writer")

	_, err = f.run("subscriptions", "remove", f.bob)
	require.NoError(t, err)
	assert.Empty(t, f.backend.SubscriptionsOf(f.alice))
}

func TestSubscribers(t *testing.T) {
	f := newFixture(t)
	f.backend.Follow(f.alice, f.bob)

	f.login("bob@bird.dev")
	out, err := f.run("subscribers")
	require.NoError(t, err)
	assert.Contains(t, out, f.alice)
	assert.Contains(t, out, "Alice Reader")
}

func TestRevokedTokenEndsSession(t *testing.T) {
	f := newFixture(t)
	f.login("alice@bird.dev")

	f.backend.RevokeTokens(f.alice)

	_, err := f.run("feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), auth.SessionInvalidMessage)
	assert.Contains(t, err.Error(), "'bird feed'")
	assert.Zero(t, f.durable.Len())

	_, err = f.run("feed")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestUsers_AdminOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.run("users")
	assert.ErrorIs(t, err, errNotSignedIn)

	f.login("alice@bird.dev")
	_, err = f.run("users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the ADMIN role")

	f.login("admin@bird.dev")
	out, err := f.run("users")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@bird.dev")
	assert.Contains(t, out, "PRODUCER")
}

func TestUsers_Roles(t *testing.T) {
	f := newFixture(t)
	f.login("admin@bird.dev")

	out, err := f.run("users", "roles", f.alice, "--role", "subscriber", "--role", "PRODUCER")
	require.NoError(t, err)
	assert.Contains(t, out, "SUBSCRIBER, PRODUCER")
	alice, _ := f.backend.User(f.alice)
	assert.Equal(t, []session.Role{session.RoleSubscriber, session.RoleProducer}, alice.Roles)

	_, err = f.run("users", "roles", f.alice, "--role", "OWNER")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")

	f.prompter.roles = []session.Role{session.RoleProducer}
	_, err = f.run("users", "roles", f.bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles"}, f.prompter.asked)
	bob, _ := f.backend.User(f.bob)
	assert.Equal(t, []session.Role{session.RoleProducer}, bob.Roles)

	_, err = f.run("users", "roles", "missing-user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUsers_DeleteAndRotate(t *testing.T) {
	f := newFixture(t)
	f.login("admin@bird.dev")

	out, err := f.run("users", "delete", f.bob)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
	_, ok := f.backend.User(f.bob)
	assert.True(t, ok)

	_, err = f.run("users", "delete", f.bob, "--yes")
	require.NoError(t, err)
	_, ok = f.backend.User(f.bob)
	assert.False(t, ok)

	out, err = f.run("users", "rotate-secret", f.alice)
	require.NoError(t, err)
	assert.Contains(t, out, "rotated")

	// Rotating your own secret ends your session
	_, err = f.run("users", "rotate-secret", f.admin)
	require.NoError(t, err)
	_, err = f.run("users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), auth.SessionInvalidMessage)
}

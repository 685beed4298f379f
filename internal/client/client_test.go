package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/fakebackend"
	"github.com/ziminpro/bird/internal/session"
)

type fixture struct {
	backend  *fakebackend.Backend
	server   *httptest.Server
	sc       *auth.Context
	client   *Client
	navCount atomic.Int32
	adminID  string
	alice    string
	bob      string
}

// newFixture signs in as email against a fake backend and returns a client
// routed through a real Fetcher
func newFixture(t *testing.T, email string) *fixture {
	t.Helper()

	f := &fixture{backend: fakebackend.New()}
	f.adminID = f.backend.AddUser("Admin", "admin@bird.dev", "secret", session.RoleAdmin)
	f.alice = f.backend.AddUser("Alice", "alice@bird.dev", "secret", session.RoleSubscriber, session.RoleProducer)
	f.bob = f.backend.AddUser("Bob", "bob@bird.dev", "secret", session.RoleProducer)

	f.server = httptest.NewServer(f.backend.Handler())
	t.Cleanup(f.server.Close)

	store := session.NewStore(session.NewMemoryStorage(), session.NewMemoryStorage())
	f.sc = auth.NewContext(store, auth.NewClient())
	_, err := f.sc.Login(context.Background(), f.server.URL+fakebackend.UMSPrefix+auth.LoginPath, auth.Credentials{
		Email: email, Password: "secret",
	})
	require.NoError(t, err)

	nav := auth.NavigatorFunc(func(string, auth.NavState) { f.navCount.Add(1) })
	fetcher := auth.NewFetcher(f.sc, nav, func() string { return "/test" })
	f.client = New(Endpoints{
		UMS:     f.server.URL + fakebackend.UMSPrefix,
		Twitter: f.server.URL + fakebackend.TwitterPrefix,
	}, fetcher, f.sc)
	return f
}

func TestClient_UserDirectory(t *testing.T) {
	f := newFixture(t, "admin@bird.dev")
	ctx := context.Background()

	users, err := f.client.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "admin@bird.dev", users[0].Email)
	assert.True(t, users[1].HasRole(session.RoleProducer))

	roles, err := f.client.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 3)
}

func TestClient_AdminOperations(t *testing.T) {
	f := newFixture(t, "admin@bird.dev")
	ctx := context.Background()

	require.NoError(t, f.client.UpdateUserRoles(ctx, f.bob, []session.Role{session.RoleSubscriber}))
	bob, ok := f.backend.User(f.bob)
	require.True(t, ok)
	assert.Equal(t, []session.Role{session.RoleSubscriber}, bob.Roles)

	err := f.client.UpdateUserRoles(ctx, f.bob, []session.Role{"WIZARD"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "400", apiErr.Code)

	require.NoError(t, f.client.RotateSecret(ctx, f.alice))
	require.NoError(t, f.client.DeleteUser(ctx, f.bob))
	_, ok = f.backend.User(f.bob)
	assert.False(t, ok)

	assert.Error(t, f.client.DeleteUser(ctx, f.bob))
	assert.True(t, f.sc.IsAuthenticated())
}

func TestClient_ForbiddenIsNotLogout(t *testing.T) {
	f := newFixture(t, "alice@bird.dev")

	err := f.client.DeleteUser(context.Background(), f.bob)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.True(t, f.sc.IsAuthenticated())
	assert.Zero(t, f.navCount.Load())
}

func TestClient_MessagesAndSubscriptions(t *testing.T) {
	f := newFixture(t, "alice@bird.dev")
	ctx := context.Background()

	f.backend.AddMessage(f.bob, "hello from bob")

	following, err := f.client.SetSubscriptions(ctx, f.alice, []string{f.bob, " ", f.bob})
	require.NoError(t, err)
	assert.Equal(t, []string{f.bob}, following)
	assert.Equal(t, []string{f.bob}, f.backend.SubscriptionsOf(f.alice))

	subs, err := f.client.Subscriptions(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []string{f.bob}, subs)

	followers, err := f.client.Subscribers(ctx, f.bob)
	require.NoError(t, err)
	assert.Equal(t, []string{f.alice}, followers)

	feed, err := f.client.SubscriberFeed(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "hello from bob", feed[0].Content)

	require.NoError(t, f.client.PostMessage(ctx, f.alice, "  first post  "))
	mine, err := f.client.ProducerMessages(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "first post", mine[0].Content)

	var apiErr *APIError
	require.True(t, errors.As(f.client.PostMessage(ctx, f.alice, "   "), &apiErr))
	assert.Equal(t, "400", apiErr.Code)
}

func TestClient_RevokedTokenEndsSession(t *testing.T) {
	f := newFixture(t, "alice@bird.dev")
	f.backend.RevokeTokens(f.alice)

	_, err := f.client.SubscriberFeed(context.Background(), f.alice)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, f.sc.IsAuthenticated())
	assert.EqualValues(t, 1, f.navCount.Load())
}

func TestClient_NotConfigured(t *testing.T) {
	store := session.NewStore(session.NewMemoryStorage(), session.NewMemoryStorage())
	sc := auth.NewContext(store, auth.NewClient())
	c := New(Endpoints{}, http.DefaultClient, sc)

	_, err := c.ListUsers(context.Background())
	assert.ErrorContains(t, err, "not configured")
}

func TestRoleList_AcceptsNamesAndObjects(t *testing.T) {
	var roles RoleList
	require.NoError(t, roles.UnmarshalJSON([]byte(`["ADMIN", {"roleId":"2","role":"PRODUCER"}]`)))
	assert.Equal(t, []session.Role{session.RoleAdmin, session.RoleProducer}, roles.Names())
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{" a", "b", "a ", "", "b"}))
	assert.Empty(t, Dedupe(nil))
}

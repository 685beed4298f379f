package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziminpro/bird/internal/session"
)

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") != "" && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestLogin(t *testing.T) {
	b := New()
	id := b.AddUser("Alice", "Alice@Bird.dev", "pw", session.RoleSubscriber)
	h := b.Handler()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"success ignores email case", `{"email":"alice@bird.dev","password":"pw"}`, "200"},
		{"wrong password", `{"email":"alice@bird.dev","password":"nope"}`, "401"},
		{"unknown user", `{"email":"who@bird.dev","password":"pw"}`, "401"},
		{"missing password", `{"email":"alice@bird.dev"}`, "400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := call(t, h, http.MethodPost, UMSPrefix+"/auth/login", "", tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.code, env.Code)
		})
	}

	_, env := call(t, h, http.MethodPost, UMSPrefix+"/auth/login", "", `{"email":"alice@bird.dev","password":"pw"}`)
	sess, err := session.Decode(env.Data)
	require.NoError(t, err)
	assert.Equal(t, id, sess.User.ID)
	assert.Equal(t, []session.Role{session.RoleSubscriber}, sess.User.Roles)
}

func TestTokens(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	b := New(WithClock(func() time.Time { return now }), WithTokenTTL(time.Hour))
	admin := b.AddUser("Ada", "admin@bird.dev", "pw", session.RoleAdmin)
	reader := b.AddUser("Rex", "rex@bird.dev", "pw", session.RoleSubscriber)
	h := b.Handler()

	adminSess, err := b.IssueSession(admin)
	require.NoError(t, err)
	readerSess, err := b.IssueSession(reader)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), adminSess.ExpiresAt)

	rec, _ := call(t, h, http.MethodGet, UMSPrefix+"/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := call(t, h, http.MethodGet, UMSPrefix+"/users", readerSess.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", env.Code)

	rec, _ = call(t, h, http.MethodDelete, UMSPrefix+"/users/user/"+admin, readerSess.Token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A rotated secret revokes outstanding tokens
	rec, _ = call(t, h, http.MethodPost, UMSPrefix+"/auth/rotate-secret/"+reader, adminSess.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, h, http.MethodGet, UMSPrefix+"/users", readerSess.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	now = now.Add(2 * time.Hour)
	rec, _ = call(t, h, http.MethodGet, UMSPrefix+"/users", adminSess.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGitHubAuthorize(t *testing.T) {
	b := New(WithGitHubUser("gh@bird.dev", "http://localhost:3000/console?tab=1"))
	id := b.AddUser("Octo", "gh@bird.dev", "pw", session.RoleProducer)

	rec, _ := call(t, b.Handler(), http.MethodGet, UMSPrefix+"/oauth2/authorization/github", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/console", target.Path)
	assert.Equal(t, "1", target.Query().Get("tab"))

	sess, err := session.DecodeRedirectPayload(target.Query().Get("auth"))
	require.NoError(t, err)
	assert.Equal(t, id, sess.User.ID)

	rec, _ = call(t, New().Handler(), http.MethodGet, UMSPrefix+"/oauth2/authorization/github", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesAndSubscriptions(t *testing.T) {
	b := New()
	reader := b.AddUser("Rex", "rex@bird.dev", "pw", session.RoleSubscriber)
	writer := b.AddUser("Wen", "wen@bird.dev", "pw", session.RoleProducer)
	h := b.Handler()

	sess, err := b.IssueSession(reader)
	require.NoError(t, err)

	_, env := call(t, h, http.MethodPut, TwitterPrefix+"/subscriptions", sess.Token,
		`{"subscriber":"`+reader+`","producers":["`+writer+`"]}`)
	assert.Equal(t, "200", env.Code)
	assert.Equal(t, []string{writer}, b.SubscriptionsOf(reader))

	b.AddMessage(writer, "one")
	b.AddMessage(writer, "two")

	_, env = call(t, h, http.MethodGet, TwitterPrefix+"/messages/subscriber/"+reader, sess.Token, "")
	var feed []Message
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	require.Len(t, feed, 2)
	assert.Equal(t, "two", feed[0].Content)

	_, env = call(t, h, http.MethodGet, TwitterPrefix+"/subscriptions/producer/"+writer, sess.Token, "")
	var subs struct {
		Subscribers []string `json:"subscribers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &subs))
	assert.Equal(t, []string{reader}, subs.Subscribers)
}

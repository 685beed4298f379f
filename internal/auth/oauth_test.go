package auth

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziminpro/bird/internal/session"
)

func TestApplyRedirectSession_InstallsAndStrips(t *testing.T) {
	env := newTestEnv()
	sc := NewContext(env.store, &stubAuthenticator{})

	payload, err := session.EncodeRedirectPayload(newSession("u1", session.RoleProducer))
	require.NoError(t, err)

	u, err := url.Parse("https://bird.example/console?tab=feed&auth=" + payload)
	require.NoError(t, err)

	cleaned, present := ApplyRedirectSession(sc, u)
	require.True(t, present)
	assert.Equal(t, "https://bird.example/console?tab=feed", cleaned.String())

	assert.True(t, sc.IsAuthenticated())
	assert.True(t, sc.HasRole(session.RoleProducer))
	_, inDurable := env.durable.Get(session.StorageKey)
	assert.True(t, inDurable)
}

func TestApplyRedirectSession_MalformedIsDropped(t *testing.T) {
	expired := newSession("u1")
	expired.ExpiresAt = testNow.Add(-time.Hour).Unix()
	expiredPayload, err := session.EncodeRedirectPayload(expired)
	require.NoError(t, err)

	for _, payload := range []string{"garbage", "", expiredPayload} {
		env := newTestEnv()
		sc := NewContext(env.store, &stubAuthenticator{})

		u := &url.URL{Path: "/", RawQuery: url.Values{RedirectParam: {payload}}.Encode()}
		cleaned, present := ApplyRedirectSession(sc, u)

		assert.True(t, present)
		assert.Empty(t, cleaned.RawQuery)
		assert.False(t, sc.IsAuthenticated())
		assert.Equal(t, 0, env.durable.Len()+env.visit.Len())
	}
}

func TestApplyRedirectSession_NoParam(t *testing.T) {
	sc := NewContext(newTestEnv().store, &stubAuthenticator{})
	u := &url.URL{Path: "/console", RawQuery: "x=1"}

	cleaned, present := ApplyRedirectSession(sc, u)
	assert.False(t, present)
	assert.Same(t, u, cleaned)
}

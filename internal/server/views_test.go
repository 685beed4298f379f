package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Alice Reader", "AR"},
		{"ada lovelace byron", "AL"},
		{"bob", "B"},
		{"  ", "U"},
		{"élodie durand", "ÉD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, initials(tt.name))
		})
	}
}

func TestShortIDAndFormatTime(t *testing.T) {
	assert.Equal(t, "01jabcde...", shortID("01jabcdefghjkmnpqrstvwxyz0"))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "ñandú-ñu...", shortID("ñandú-ñu-überlong"))
	assert.Equal(t, "ñandúñuü", shortID("ñandúñuü"))

	assert.Equal(t, "-", formatTime(time.Time{}))
	ts := time.Date(2026, 10, 16, 9, 5, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2026-10-16 07:05 UTC", formatTime(ts))
}

func TestFlashRoundTrip(t *testing.T) {
	msg := "Your session is no longer valid. Please sign in again."
	assert.Equal(t, msg, decodeFlash(encodeFlash(msg)))
	assert.Empty(t, decodeFlash("%%%"))
}

func TestCurrentLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		method  string
		target  string
		referer string
		want    string
	}{
		{"get uses request uri", http.MethodGet, "/subscriptions?tab=1", "", "/subscriptions?tab=1"},
		{"post uses same-host referer", http.MethodPost, "/compose", "http://bird.test/messages?page=2", "/messages?page=2"},
		{"post ignores foreign referer", http.MethodPost, "/compose", "https://evil.example/admin", "/"},
		{"post without referer", http.MethodPost, "/compose", "", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			req := httptest.NewRequest(tt.method, "http://bird.test"+tt.target, nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			c.Request = req
			assert.Equal(t, tt.want, currentLocation(c))
		})
	}
}

func TestTemplatesParse(t *testing.T) {
	tmpl, err := loadTemplates()
	require.NoError(t, err)
	for _, page := range []string{
		"login.html", "dashboard.html", "messages.html", "subscriptions.html",
		"subscribers.html", "console.html", "admin.html", "forbidden.html",
	} {
		assert.NotNil(t, tmpl.Lookup(page), page)
	}
}

package session

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// DurableCookieMaxAge matches a remember-me lifetime
	DurableCookieMaxAge = 30 * 24 * time.Hour

	visitCookieSuffix   = ".visit"
	durableCookieSuffix = ".durable"
)

// CookieStorage is a tier backed by the browser's cookies for the duration of one
// request. The per-visit tier uses session cookies (no Max-Age), the durable tier
// uses persistent cookies. Values are base64url encoded.
type CookieStorage struct {
	c       *gin.Context
	suffix  string
	maxAge  int
	secure  bool
	written map[string]*string
}

// NewVisitCookies returns the per-visit tier for the request in c
func NewVisitCookies(c *gin.Context, secure bool) *CookieStorage {
	return newCookieStorage(c, visitCookieSuffix, 0, secure)
}

// NewDurableCookies returns the durable tier for the request in c
func NewDurableCookies(c *gin.Context, secure bool) *CookieStorage {
	return newCookieStorage(c, durableCookieSuffix, int(DurableCookieMaxAge.Seconds()), secure)
}

func newCookieStorage(c *gin.Context, suffix string, maxAge int, secure bool) *CookieStorage {
	return &CookieStorage{
		c:       c,
		suffix:  suffix,
		maxAge:  maxAge,
		secure:  secure,
		written: make(map[string]*string),
	}
}

// CookieName returns the cookie that holds key in this tier
func (s *CookieStorage) CookieName(key string) string {
	return key + s.suffix
}

func (s *CookieStorage) Get(key string) (string, bool) {
	// Writes made earlier in this request win over what the browser sent
	if v, ok := s.written[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	raw, err := s.c.Cookie(s.CookieName(key))
	if err != nil || raw == "" {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		// Let the caller discard it as malformed
		return raw, true
	}
	return string(decoded), true
}

func (s *CookieStorage) Set(key, value string) {
	s.written[key] = &value
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(s.CookieName(key), base64.RawURLEncoding.EncodeToString([]byte(value)), s.maxAge, "/", "", s.secure, true)
}

func (s *CookieStorage) Remove(key string) {
	prev, wrote := s.written[key]
	s.written[key] = nil
	if _, err := s.c.Cookie(s.CookieName(key)); err != nil && (!wrote || prev == nil) {
		// Nothing to expire in the browser
		return
	}
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(s.CookieName(key), "", -1, "/", "", s.secure, true)
}

package server

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
	"github.com/ziminpro/bird/web"
)

const flashCookie = "bird.flash"

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"initials":   initials,
		"shortID":    shortID,
		"formatTime": formatTime,
		"hasRole": func(u client.DirectoryUser, role string) bool {
			return u.HasRole(session.Role(role))
		},
	}
}

func loadTemplates() (*template.Template, error) {
	return web.ParseTemplates(templateFuncs())
}

func initials(name string) string {
	var out []rune
	for _, part := range strings.Fields(name) {
		out = append(out, []rune(strings.ToUpper(part))[0])
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "U"
	}
	return string(out)
}

func shortID(id string) string {
	if r := []rune(id); len(r) > 8 {
		return string(r[:8]) + "..."
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// render writes a page with the fields every layout needs merged into data
func (s *Server) render(c *gin.Context, status int, page, title string, data gin.H) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()

	view := gin.H{
		"Title":        title,
		"Flash":        takeFlash(c, s.config.Web.CookieSecure),
		"CanSubscribe": snap.CanAccess(session.RoleSubscriber),
		"CanPublish":   snap.CanAccess(session.RoleProducer),
		"IsAdmin":      snap.IsAdmin(),
	}
	if snap.IsAuthenticated() {
		view["User"] = snap.Session.User
	}
	for k, v := range data {
		view[k] = v
	}

	c.HTML(status, page, view)
}

// setFlash stores a one-shot message shown on the next rendered page
func setFlash(c *gin.Context, message string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, encodeFlash(message), 60, "/", "", secure, true)
}

// takeFlash reads and clears the one-shot message
func takeFlash(c *gin.Context, secure bool) string {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, "", -1, "/", "", secure, true)
	return decodeFlash(raw)
}

// directoryNames maps user ids to display names, falling back to a short id
func directoryNames(users []client.DirectoryUser, ids ...[]string) map[string]string {
	names := make(map[string]string)
	for _, group := range ids {
		for _, id := range group {
			names[id] = shortID(id)
		}
	}
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	return names
}

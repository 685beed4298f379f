package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ziminpro/bird/internal/session"
)

// SessionResponse is the JSON view of the current session
type SessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Phase         string         `json:"phase"`
	User          *session.User  `json:"user,omitempty"`
	Roles         []session.Role `json:"roles"`
	IsAdmin       bool           `json:"isAdmin"`
	ExpiresAt     int64          `json:"expiresAt,omitempty"`
}

// getSession reports who is signed in. The token itself is never exposed.
func (s *Server) getSession(c *gin.Context) {
	snap := GetSessionData(c).Context.Snapshot()

	resp := SessionResponse{
		Authenticated: snap.IsAuthenticated(),
		Phase:         snap.Phase.String(),
		Roles:         snap.Roles(),
		IsAdmin:       snap.IsAdmin(),
	}
	if resp.Roles == nil {
		resp.Roles = []session.Role{}
	}
	if snap.IsAuthenticated() {
		resp.User = snap.Session.User
		resp.ExpiresAt = snap.Session.ExpiresAt
	}

	c.JSON(http.StatusOK, resp)
}

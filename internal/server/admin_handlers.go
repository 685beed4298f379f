package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
)

func (s *Server) consolePage(c *gin.Context) {
	snap := GetSessionData(c).Context.Snapshot()

	claims, err := snap.Session.TokenClaims()
	if err != nil {
		s.requestLogger(c).Debug().Err(err).Msg("Token is not a JWT")
	}

	s.render(c, http.StatusOK, "console.html", "Console", gin.H{
		"ExpiresAt": time.Unix(snap.Session.ExpiresAt, 0),
		"Claims":    claims,
	})
}

func (s *Server) adminPage(c *gin.Context) {
	ps := GetSessionData(c)

	var (
		users   []client.DirectoryUser
		catalog []client.RoleInfo
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		users, err = ps.API.ListUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		catalog, err = ps.API.ListRoles(gctx)
		return err
	})

	var errMsg string
	if err := g.Wait(); err != nil {
		msg, ok := s.serviceError(c, err)
		if !ok {
			return
		}
		errMsg = msg
	}

	// Fall back to the roles users already carry when the catalog is empty
	if len(catalog) == 0 {
		seen := make(map[string]bool)
		for _, u := range users {
			for _, r := range u.Roles {
				if !seen[r.Role] {
					seen[r.Role] = true
					catalog = append(catalog, client.RoleInfo{Role: r.Role})
				}
			}
		}
	}

	s.render(c, http.StatusOK, "admin.html", "Administration", gin.H{
		"Users":   users,
		"Catalog": catalog,
		"Error":   errMsg,
	})
}

// adminAction runs one user management call and returns to the directory with
// the outcome in the flash banner
func (s *Server) adminAction(c *gin.Context, done string, call func(*client.Client, string) error) {
	ps := GetSessionData(c)
	id := c.Param("id")

	msg := done
	if err := call(ps.API, id); err != nil {
		errMsg, ok := s.serviceError(c, err)
		if !ok {
			return
		}
		msg = errMsg
	} else {
		s.requestLogger(c).Info().Str("target_user_id", id).Msg(done)
	}
	setFlash(c, msg, s.config.Web.CookieSecure)
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (s *Server) updateUserRoles(c *gin.Context) {
	var roles []session.Role
	for _, r := range c.PostFormArray("roles") {
		roles = append(roles, session.Role(r))
	}

	s.adminAction(c, "Roles updated.", func(api *client.Client, id string) error {
		return api.UpdateUserRoles(c.Request.Context(), id, roles)
	})
}

func (s *Server) deleteUser(c *gin.Context) {
	s.adminAction(c, "User deleted.", func(api *client.Client, id string) error {
		return api.DeleteUser(c.Request.Context(), id)
	})
}

func (s *Server) rotateUserSecret(c *gin.Context) {
	s.adminAction(c, "Secret rotated. Existing tokens of this user are revoked.", func(api *client.Client, id string) error {
		return api.RotateSecret(c.Request.Context(), id)
	})
}

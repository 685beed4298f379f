package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ziminpro/bird/internal/auth"
)

// LoginForm is the sign-in form. Remember defaults to on.
type LoginForm struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
	Remember bool   `form:"remember"`
	From     string `form:"from"`
}

func (s *Server) loginView(c *gin.Context, status int, form LoginForm, errMsg string) {
	data := gin.H{
		"From":      form.From,
		"Email":     form.Email,
		"Remember":  form.Remember,
		"Error":     errMsg,
		"GitHubURL": s.config.AuthURL(auth.GitHubAuthorizationPath),
	}
	if s.config.Services.AuthBaseURL == "" {
		data["ConfigError"] = auth.NotConfiguredMessage
	}
	s.render(c, status, "login.html", "Sign in", data)
}

func (s *Server) loginPage(c *gin.Context) {
	ps := GetSessionData(c)
	from := c.Query("from")

	// Signed-in visitors have nothing to do here
	if snap := ps.Context.Snapshot(); snap.IsAuthenticated() {
		c.Redirect(http.StatusSeeOther, auth.ReturnPath(from, snap))
		return
	}

	s.loginView(c, http.StatusOK, LoginForm{From: from, Remember: true}, "")
}

func (s *Server) login(c *gin.Context) {
	ps := GetSessionData(c)

	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		form.Password = ""
		s.loginView(c, http.StatusBadRequest, form, auth.UserMessage(auth.ErrMissingFields))
		return
	}
	form.Email = strings.TrimSpace(form.Email)

	sess, err := ps.Context.Login(c.Request.Context(), s.config.AuthURL(auth.LoginPath), auth.Credentials{
		Email:      form.Email,
		Password:   form.Password,
		RememberMe: form.Remember,
	})
	if err != nil {
		form.Password = ""
		if errors.Is(err, auth.ErrNotConfigured) {
			s.loginView(c, http.StatusServiceUnavailable, form, "")
			return
		}

		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUnavailable) {
			status = http.StatusBadGateway
		}
		s.loginView(c, status, form, err.Error())
		return
	}

	s.requestLogger(c).Info().
		Str("user_id", sess.User.ID).
		Bool("remember", form.Remember).
		Msg("Signed in")
	c.Redirect(http.StatusSeeOther, auth.ReturnPath(form.From, ps.Context.Snapshot()))
}

func (s *Server) logout(c *gin.Context) {
	GetSessionData(c).Context.Logout()
	c.Redirect(http.StatusSeeOther, auth.SignInPath)
}

// githubLogin starts the OAuth flow on UMS, which returns to this site with
// the session in the auth query parameter
func (s *Server) githubLogin(c *gin.Context) {
	target := s.config.AuthURL(auth.GitHubAuthorizationPath)
	if target == "" {
		s.loginView(c, http.StatusServiceUnavailable, LoginForm{Remember: true}, "")
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) forbiddenPage(c *gin.Context) {
	s.render(c, http.StatusForbidden, "forbidden.html", "Access denied", nil)
}

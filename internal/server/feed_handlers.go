package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ziminpro/bird/internal/client"
	"github.com/ziminpro/bird/internal/session"
)

// serviceError turns a failed call into the banner text. It reports false when
// the call was rejected for authentication and the request is being redirected.
func (s *Server) serviceError(c *gin.Context, err error) (string, bool) {
	if s.followNavigation(c) || errors.Is(err, client.ErrUnauthorized) {
		return "", false
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, true
	}
	s.requestLogger(c).Error().Err(err).Msg("Service call failed")
	return "The service is temporarily unavailable. Try again later.", true
}

func (s *Server) dashboardPage(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()
	userID := snap.Session.User.ID
	ctx := c.Request.Context()

	var (
		feed      []client.Message
		following []string
		posts     []client.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	if snap.CanAccess(session.RoleSubscriber) {
		g.Go(func() (err error) {
			feed, err = ps.API.SubscriberFeed(gctx, userID)
			return err
		})
		g.Go(func() (err error) {
			following, err = ps.API.Subscriptions(gctx, userID)
			return err
		})
	}
	if snap.CanAccess(session.RoleProducer) {
		g.Go(func() (err error) {
			posts, err = ps.API.ProducerMessages(gctx, userID)
			return err
		})
	}

	var errMsg string
	if err := g.Wait(); err != nil {
		msg, ok := s.serviceError(c, err)
		if !ok {
			return
		}
		errMsg = msg
	}

	s.render(c, http.StatusOK, "dashboard.html", "Home", gin.H{
		"Feed":           feed,
		"FollowingCount": len(following),
		"PostCount":      len(posts),
		"Error":          errMsg,
	})
}

func (s *Server) compose(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()

	if !snap.CanAccess(session.RoleProducer) {
		c.Redirect(http.StatusSeeOther, "/forbidden")
		return
	}

	content := strings.TrimSpace(c.PostForm("content"))
	if content == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if err := ps.API.PostMessage(c.Request.Context(), snap.Session.User.ID, content); err != nil {
		msg, ok := s.serviceError(c, err)
		if !ok {
			return
		}
		setFlash(c, msg, s.config.Web.CookieSecure)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) messagesPage(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()
	if !snap.CanAccess(session.RoleSubscriber) {
		c.Redirect(http.StatusSeeOther, "/forbidden")
		return
	}

	var (
		feed  []client.Message
		users []client.DirectoryUser
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		feed, err = ps.API.SubscriberFeed(gctx, snap.Session.User.ID)
		return err
	})
	g.Go(func() (err error) {
		users, err = ps.API.ListUsers(gctx)
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

	authors := make([]string, 0, len(feed))
	for _, m := range feed {
		authors = append(authors, m.Author)
	}

	s.render(c, http.StatusOK, "messages.html", "Messages", gin.H{
		"Feed":    feed,
		"Authors": directoryNames(users, authors),
		"Error":   errMsg,
	})
}

func (s *Server) subscriptionsPage(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()
	if !snap.CanAccess(session.RoleSubscriber) {
		c.Redirect(http.StatusSeeOther, "/forbidden")
		return
	}
	userID := snap.Session.User.ID

	var (
		following []string
		users     []client.DirectoryUser
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		following, err = ps.API.Subscriptions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		users, err = ps.API.ListUsers(gctx)
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

	var suggested []client.DirectoryUser
	for _, u := range users {
		if u.ID != userID && u.HasRole(session.RoleProducer) && !slices.Contains(following, u.ID) {
			suggested = append(suggested, u)
		}
	}

	s.render(c, http.StatusOK, "subscriptions.html", "Subscriptions", gin.H{
		"Following": following,
		"Suggested": suggested,
		"Authors":   directoryNames(users, following),
		"Error":     errMsg,
	})
}

// updateSubscriptions follows or unfollows one producer
func (s *Server) updateSubscriptions(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()
	if !snap.CanAccess(session.RoleSubscriber) {
		c.Redirect(http.StatusSeeOther, "/forbidden")
		return
	}
	userID := snap.Session.User.ID
	ctx := c.Request.Context()

	producer := strings.TrimSpace(c.PostForm("producer"))
	action := c.PostForm("action")
	if producer == "" || (action != "add" && action != "remove") {
		c.Redirect(http.StatusSeeOther, "/subscriptions")
		return
	}

	current, err := ps.API.Subscriptions(ctx, userID)
	if err == nil {
		next := current
		switch {
		case action == "add" && !slices.Contains(current, producer):
			next = append(slices.Clone(current), producer)
		case action == "remove":
			next = slices.DeleteFunc(slices.Clone(current), func(id string) bool { return id == producer })
		}
		_, err = ps.API.SetSubscriptions(ctx, userID, next)
	}
	if err != nil {
		msg, ok := s.serviceError(c, err)
		if !ok {
			return
		}
		setFlash(c, msg, s.config.Web.CookieSecure)
	}
	c.Redirect(http.StatusSeeOther, "/subscriptions")
}

func (s *Server) subscribersPage(c *gin.Context) {
	ps := GetSessionData(c)
	snap := ps.Context.Snapshot()
	if !snap.CanAccess(session.RoleProducer) {
		c.Redirect(http.StatusSeeOther, "/forbidden")
		return
	}

	var (
		subscribers []string
		users       []client.DirectoryUser
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) {
		subscribers, err = ps.API.Subscribers(gctx, snap.Session.User.ID)
		return err
	})
	g.Go(func() (err error) {
		users, err = ps.API.ListUsers(gctx)
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

	s.render(c, http.StatusOK, "subscribers.html", "Subscribers", gin.H{
		"Subscribers": subscribers,
		"Authors":     directoryNames(users, subscribers),
		"Error":       errMsg,
	})
}

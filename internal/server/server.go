// Package server is the web front-end: it renders the Bird pages and calls UMS
// and the messaging service on the browser's behalf. The browser's session
// lives in two cookie tiers and is rebuilt on every request.
package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ziminpro/bird/internal/auth"
	"github.com/ziminpro/bird/internal/config"
	"github.com/ziminpro/bird/web"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     zerolog.Logger
	authClient auth.Authenticator
	httpClient *http.Client
	templates  *template.Template
	now        func() time.Time
	version    string
}

// Option configures a Server
type Option func(*Server)

// WithHTTPClient sets the client used for every call to the services
func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *Server) {
		s.httpClient = httpClient
	}
}

// WithClock sets the time source for session expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string, opts ...Option) (*Server, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		config:     cfg,
		logger:     zlog,
		httpClient: &http.Client{Timeout: cfg.Services.HTTPTimeout},
		templates:  templates,
		now:        time.Now,
		version:    version,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.authClient = auth.NewClient(
		auth.WithHTTPClient(s.httpClient),
		auth.WithClientLogger(zlog.With().Str("component", "auth").Logger()),
	)

	if cfg.Services.AuthBaseURL == "" {
		zlog.Warn().Msg(auth.NotConfiguredMessage)
	}

	s.setupRouter()
	return s, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	if s.config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.SetHTMLTemplate(s.templates)

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Health check and assets (no session)
	s.router.GET("/health", s.healthCheck)
	s.router.StaticFS("/static", http.FS(web.GetStaticFS()))

	pages := s.router.Group("", s.sessionMiddleware(), s.oauthBootstrapMiddleware())
	{
		pages.GET("/login", s.loginPage)
		pages.POST("/login", s.login)
		pages.POST("/logout", s.logout)
		pages.GET("/oauth/github", s.githubLogin)
		pages.GET("/forbidden", s.forbiddenPage)

		member := pages.Group("", Guard(auth.RequireAuth))
		member.GET("/", s.dashboardPage)
		member.POST("/compose", s.compose)
		member.GET("/messages", s.messagesPage)
		member.GET("/subscriptions", s.subscriptionsPage)
		member.POST("/subscriptions", s.updateSubscriptions)
		member.GET("/subscribers", s.subscribersPage)
		member.GET("/console", s.consolePage)

		admin := pages.Group("/admin", Guard(auth.RequireAdmin))
		admin.GET("", s.adminPage)
		admin.POST("/users/:id/roles", s.updateUserRoles)
		admin.POST("/users/:id/delete", s.deleteUser)
		admin.POST("/users/:id/rotate-secret", s.rotateUserSecret)
	}

	// JSON view of the session for scripts on other origins
	api := s.router.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Web.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	api.Use(s.sessionMiddleware())
	{
		api.GET("/session", s.getSession)
	}

	// Unknown routes go home; the guard there sends visitors to the login view
	s.router.NoRoute(func(c *gin.Context) {
		c.Redirect(http.StatusSeeOther, "/")
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str(requestIDKey, c.GetString(requestIDKey)).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "online",
		"timestamp":      time.Now().UTC(),
		"service":        "bird-web",
		"version":        s.version,
		"authConfigured": s.config.Services.AuthBaseURL != "",
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.config.Web.ListenAddr

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2*s.config.Services.HTTPTimeout + 10*time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-sigChan:
	}
	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

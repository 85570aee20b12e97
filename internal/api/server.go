package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/podjdr/internal/api/auth"
	"github.com/podjdr/internal/config"
	"github.com/podjdr/internal/logging"
)

// Server represents the API server
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	svc      *Services
	authH    *auth.AuthHandlers
	shutdown time.Duration
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, svc *Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(logging.RequestLogger(log.Logger))
	e.Use(cors(cfg.Server.CORSOrigins))

	authH := auth.NewAuthHandlers(svc.Tokens, svc.Registry, cfg.Auth.CookieName)
	authH.SecureCookies(cfg.Auth.SecureCookie)

	server := &Server{
		echo:     e,
		cfg:      cfg,
		svc:      svc,
		authH:    authH,
		shutdown: cfg.Server.ShutdownTimeout,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// cors lets cookies cross origins only for the configured origins. Without
// a list any origin may call the API, but never with credentials.
func cors(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		return middleware.CORS()
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,
	})
}

// perMinute builds a rate limiter allowing n requests per minute per key
func perMinute(n int, key func(c echo.Context) (string, error)) echo.MiddlewareFunc {
	if n <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(n) / 60),
			Burst:     n,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: key,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			log.Warn().Str("identifier", identifier).Str("path", c.Path()).Msg("Rate limit exceeded")
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
}

func byIP(c echo.Context) (string, error) { return c.RealIP(), nil }

func bySession(c echo.Context) (string, error) {
	if s := auth.GetSession(c); s != nil {
		return s.Ref().String(), nil
	}
	return c.RealIP(), nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	v1.POST("/register", s.authH.Register, perMinute(s.cfg.RateLimit.LoginPerMinute, byIP))
	v1.POST("/login", s.authH.Login, perMinute(s.cfg.RateLimit.LoginPerMinute, byIP))
	v1.POST("/logout", s.authH.Logout)

	authed := v1.Group("", auth.RequireAuth(s.svc.Tokens, s.cfg.Auth.CookieName))
	authed.GET("/me", s.authH.Me)

	// Contacts endpoints
	authed.GET("/contacts", s.listContacts)
	authed.POST("/contacts", s.requestContact)
	authed.DELETE("/contacts", s.removeContact)
	authed.POST("/contacts/accept", s.acceptContact)
	authed.GET("/contact-requests", s.listIncomingRequests)
	authed.GET("/pending-requests", s.listOutgoingRequests)

	// Messages endpoints
	authed.GET("/messages", s.fetchThread)
	authed.POST("/messages", s.sendMessage)

	// Dice endpoints
	authed.GET("/dice", s.recentRolls)
	authed.POST("/dice", s.rollDice)
	authed.GET("/stats", s.diceStats)

	// Covert channel endpoints
	authed.GET("/shadow/access", s.openShadow)
	authed.GET("/shadow/messages", s.listShadowMessages)
	authed.POST("/shadow/messages", s.sendShadowMessage, perMinute(s.cfg.RateLimit.ShadowSendPerMinute, bySession))

	// Admin endpoints
	authed.POST("/admin/stop-impersonating", s.authH.StopImpersonating)
	admin := authed.Group("/admin", auth.RequireAdmin(s.svc.Registry))
	admin.GET("/bots", s.listBots)
	admin.POST("/bots", s.createBot)
	admin.PUT("/bots/:id", s.updateBot)
	admin.DELETE("/bots/:id", s.deleteBot)
	admin.POST("/bots/:id/impersonate", s.authH.Impersonate)
	admin.GET("/shadow-access", s.listShadowAccess)
	admin.POST("/shadow-access", s.grantShadowAccess)
	admin.DELETE("/shadow-access", s.revokeShadowAccess)

	if dir := s.cfg.Server.StaticDir; dir != "" {
		s.echo.Use(middleware.StaticWithConfig(middleware.StaticConfig{
			Root:  dir,
			HTML5: false,
		}))
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	errCh := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	timeout := s.shutdown
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

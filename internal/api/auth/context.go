package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/podjdr/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	SessionContextKey ContextKey = "session"
)

// GetSession returns the session placed by RequireAuth, or nil
func GetSession(c echo.Context) *models.Session {
	s, _ := c.Get(string(SessionContextKey)).(*models.Session)
	return s
}

// SetSession attaches a verified session to the request
func SetSession(c echo.Context, s *models.Session) {
	c.Set(string(SessionContextKey), s)
}

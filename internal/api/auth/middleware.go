package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

// tokenFromRequest reads a Bearer token, falling back to the session cookie
func tokenFromRequest(c echo.Context, cookieName string) (string, error) {
	if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
		}
		return tokenParts[1], nil
	}
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
}

// RequireAuth verifies the session token and places the session in the
// echo context
func RequireAuth(tokenService *TokenService, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := tokenFromRequest(c, cookieName)
			if err != nil {
				return err
			}
			session, err := tokenService.Validate(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}
			SetSession(c, session)
			return next(c)
		}
	}
}

// RequireAdmin allows human administrators only. The admin flag is read
// from the registry so a demotion applies to tokens already issued.
func RequireAdmin(registry *identity.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			if session.Kind != models.KindHuman {
				return echo.NewHTTPError(http.StatusForbidden, ErrNotAdmin.Error())
			}
			cur, err := registry.Lookup(c.Request().Context(), session.Ref())
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Account no longer exists")
				}
				log.Error().Err(err).Int64("user_id", session.ID).Msg("Failed to load admin flag")
				return echo.NewHTTPError(apperr.HTTPStatus(err), "Failed to verify permissions")
			}
			if !cur.IsAdmin {
				return echo.NewHTTPError(http.StatusForbidden, ErrNotAdmin.Error())
			}
			return next(c)
		}
	}
}

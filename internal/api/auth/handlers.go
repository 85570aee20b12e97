package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/identity"
	"github.com/podjdr/pkg/models"
)

// AuthHandlers contains the authentication handler methods
type AuthHandlers struct {
	tokenService *TokenService
	registry     *identity.Registry
	cookieName   string
	secureCookie bool
}

// NewAuthHandlers creates a new authentication handlers instance
func NewAuthHandlers(tokenService *TokenService, registry *identity.Registry, cookieName string) *AuthHandlers {
	return &AuthHandlers{
		tokenService: tokenService,
		registry:     registry,
		cookieName:   cookieName,
	}
}

// SecureCookies marks the session cookie Secure, for deployments behind TLS
func (h *AuthHandlers) SecureCookies(secure bool) { h.secureCookie = secure }

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned whenever a session token is issued
type SessionResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresAt time.Time       `json:"expires_at"`
	Session   *models.Session `json:"session"`
}

// Register creates a human account
func (h *AuthHandlers) Register(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Username must be between 1 and " + strconv.Itoa(MaxUsernameLength) + " characters",
		})
	}
	if len(req.Password) < MinPasswordLength {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Password must be at least " + strconv.Itoa(MinPasswordLength) + " characters",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to hash password",
		})
	}
	user, err := h.registry.Store().CreateUser(c.Request().Context(), username, string(hash), false)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "Username already taken",
			})
		}
		log.Error().Err(err).Str("username", username).Msg("Failed to create user")
		return c.JSON(apperr.HTTPStatus(err), map[string]string{
			"error": "Failed to create user",
		})
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	return c.JSON(http.StatusCreated, user)
}

// Login checks credentials and issues a session token, also set as cookie
func (h *AuthHandlers) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	user, err := h.registry.Store().UserByName(c.Request().Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.Error().Err(err).Msg("Failed to load user for login")
		return c.JSON(apperr.HTTPStatus(err), map[string]string{
			"error": "Database error",
		})
	}
	// Names match exactly at login
	if err != nil || user.Username != strings.TrimSpace(req.Username) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": ErrInvalidCredentials.Error(),
		})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": ErrInvalidCredentials.Error(),
		})
	}

	return h.issue(c, &models.Session{
		Kind:    models.KindHuman,
		ID:      user.ID,
		Name:    user.Username,
		IsAdmin: user.IsAdmin,
	})
}

// Me returns the current session
func (h *AuthHandlers) Me(c echo.Context) error {
	session := GetSession(c)
	if session == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Authentication required",
		})
	}
	return c.JSON(http.StatusOK, session)
}

// Logout clears the session cookie. Tokens are stateless and simply expire.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}

// Impersonate re-issues the admin's session as the bot, keeping the admin
// as impersonator so the session can be restored
func (h *AuthHandlers) Impersonate(c echo.Context) error {
	admin := GetSession(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid bot id",
		})
	}
	bot, err := h.registry.Store().BotByID(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			log.Error().Err(err).Int64("bot_id", id).Msg("Failed to load bot")
		}
		return c.JSON(apperr.HTTPStatus(err), map[string]string{
			"error": "Bot not found",
		})
	}

	log.Info().Int64("admin_id", admin.ID).Int64("bot_id", bot.ID).Msg("Admin impersonating bot")
	return h.issue(c, &models.Session{
		Kind:             models.KindBot,
		ID:               bot.ID,
		Name:             bot.Name,
		ImpersonatorID:   admin.ID,
		ImpersonatorName: admin.Name,
	})
}

// StopImpersonating restores the administrator's own session
func (h *AuthHandlers) StopImpersonating(c echo.Context) error {
	session := GetSession(c)
	if session == nil || !session.IsImpersonating() {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": ErrNotImpersonating.Error(),
		})
	}
	admin, err := h.registry.Store().UserByID(c.Request().Context(), session.ImpersonatorID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			log.Error().Err(err).Int64("user_id", session.ImpersonatorID).Msg("Failed to load impersonator")
		}
		return c.JSON(apperr.HTTPStatus(err), map[string]string{
			"error": "Administrator account not found",
		})
	}
	if !admin.IsAdmin {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": ErrNotAdmin.Error(),
		})
	}
	return h.issue(c, &models.Session{
		Kind:    models.KindHuman,
		ID:      admin.ID,
		Name:    admin.Username,
		IsAdmin: true,
	})
}

func (h *AuthHandlers) issue(c echo.Context, session *models.Session) error {
	token, expiresAt, err := h.tokenService.Issue(session)
	if err != nil {
		log.Error().Err(err).Str("identity", session.Ref().String()).Msg("Failed to issue session token")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create session",
		})
	}
	c.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, SessionResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Session:   session,
	})
}

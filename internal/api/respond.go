package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/api/auth"
	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/pkg/models"
)

// respondError maps a service error to its status. Server side failures are
// logged and answered with fallback instead of the internal message.
func respondError(c echo.Context, err error, fallback string) error {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg(fallback)
		return c.JSON(status, map[string]string{
			"error": fallback,
		})
	}
	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// PeerRequest names the other end of a contact edge or thread
type PeerRequest struct {
	ID   int64  `json:"id" query:"id"`
	Kind string `json:"kind" query:"kind"`
}

func (p PeerRequest) ref() (models.Ref, error) {
	kind, err := models.ParseKind(p.Kind)
	if err != nil {
		return models.Ref{}, apperr.Invalid("%v", err)
	}
	if p.ID <= 0 {
		return models.Ref{}, apperr.Invalid("id is required")
	}
	return models.Ref{Kind: kind, ID: p.ID}, nil
}

// self returns the identity the request acts as
func self(c echo.Context) models.Ref {
	return auth.GetSession(c).Ref()
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/shadow"
	"github.com/podjdr/pkg/models"
)

// BotRequest is the body of bot create and update
type BotRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AccessRequest names an identity for grant and revoke
type AccessRequest struct {
	Kind       string `json:"kind" query:"kind"`
	Identifier string `json:"identifier" query:"identifier"`
}

// AccessListResponse is the covert channel access list split by kind
type AccessListResponse struct {
	Humans []shadow.AccessEntry `json:"humans"`
	Bots   []shadow.AccessEntry `json:"bots"`
}

func (s *Server) listBots(c echo.Context) error {
	bots, err := s.svc.Registry.Store().ListBots(c.Request().Context())
	if err != nil {
		return respondError(c, err, "Failed to list bots")
	}
	return c.JSON(http.StatusOK, bots)
}

func (s *Server) createBot(c echo.Context) error {
	var req BotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	bot, err := s.svc.Registry.Store().CreateBot(c.Request().Context(), name, strings.TrimSpace(req.Description))
	if err != nil {
		return respondError(c, err, "Failed to create bot")
	}
	log.Info().Int64("bot_id", bot.ID).Str("name", bot.Name).Msg("Bot created")
	return c.JSON(http.StatusCreated, bot)
}

func (s *Server) updateBot(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid bot id")
	}
	var req BotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	bot, err := s.svc.Registry.Store().UpdateBot(c.Request().Context(), id, name, strings.TrimSpace(req.Description))
	if err != nil {
		return respondError(c, err, "Failed to update bot")
	}
	return c.JSON(http.StatusOK, bot)
}

// deleteBot removes the bot, releases its shadow code and drops its covert
// messages
func (s *Server) deleteBot(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid bot id")
	}
	ctx := c.Request().Context()
	if err := s.svc.Registry.Store().DeleteBot(ctx, id); err != nil {
		return respondError(c, err, "Failed to delete bot")
	}
	if err := s.svc.Codes.Forget(ctx, models.Bot(id)); err != nil {
		log.Warn().Err(err).Int64("bot_id", id).Msg("Failed to release shadow code of deleted bot")
	}
	if n := s.svc.Channel.Forget(models.Bot(id)); n > 0 {
		log.Info().Int64("bot_id", id).Int("messages", n).Msg("Dropped covert messages of deleted bot")
	}
	log.Info().Int64("bot_id", id).Msg("Bot deleted")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listShadowAccess(c echo.Context) error {
	entries, err := s.svc.Policy.List(c.Request().Context())
	if err != nil {
		return respondError(c, err, "Failed to list shadow access")
	}
	resp := AccessListResponse{Humans: []shadow.AccessEntry{}, Bots: []shadow.AccessEntry{}}
	for _, e := range entries {
		if e.Kind == models.KindBot {
			resp.Bots = append(resp.Bots, e)
		} else {
			resp.Humans = append(resp.Humans, e)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func bindAccess(c echo.Context) (models.Kind, string, error) {
	var req AccessRequest
	if err := c.Bind(&req); err != nil {
		return "", "", apperr.Invalid("invalid request")
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return "", "", apperr.Invalid("%v", err)
	}
	name := strings.TrimSpace(req.Identifier)
	if name == "" {
		return "", "", apperr.Invalid("identifier is required")
	}
	return kind, name, nil
}

func (s *Server) grantShadowAccess(c echo.Context) error {
	kind, name, err := bindAccess(c)
	if err != nil {
		return respondError(c, err, "")
	}
	target, err := s.svc.Policy.Grant(c.Request().Context(), kind, name)
	if err != nil {
		return respondError(c, err, "Failed to grant shadow access")
	}
	return c.JSON(http.StatusOK, shadow.AccessEntry{
		Kind:   target.Ref.Kind,
		ID:     target.Ref.ID,
		Name:   target.Label,
		Source: shadow.SourceGranted,
	})
}

func (s *Server) revokeShadowAccess(c echo.Context) error {
	kind, name, err := bindAccess(c)
	if err != nil {
		return respondError(c, err, "")
	}
	if _, err := s.svc.Policy.Revoke(c.Request().Context(), kind, name); err != nil {
		return respondError(c, err, "Failed to revoke shadow access")
	}
	return c.NoContent(http.StatusNoContent)
}

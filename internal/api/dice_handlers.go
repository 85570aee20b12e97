package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/podjdr/internal/api/auth"
	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/dice"
	"github.com/podjdr/pkg/models"
)

// RollRequest carries one or more dice groups
type RollRequest struct {
	Dice []dice.Request `json:"dice"`
}

func (s *Server) rollDice(c echo.Context) error {
	session := auth.GetSession(c)
	if session.Kind != models.KindHuman {
		return respondError(c, apperr.Forbidden("only players can roll dice"), "")
	}
	var req RollRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	rolls, err := s.svc.Dice.Roll(c.Request().Context(), session.ID, session.Name, req.Dice)
	if err != nil {
		return respondError(c, err, "Failed to roll dice")
	}
	return c.JSON(http.StatusCreated, rolls)
}

func (s *Server) recentRolls(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Dice.Recent())
}

func (s *Server) diceStats(c echo.Context) error {
	var callerID int64
	if session := auth.GetSession(c); session.Kind == models.KindHuman {
		callerID = session.ID
	}
	stats, err := s.svc.Dice.Stats(c.Request().Context(), callerID)
	if err != nil {
		return respondError(c, err, "Failed to compute statistics")
	}
	return c.JSON(http.StatusOK, stats)
}

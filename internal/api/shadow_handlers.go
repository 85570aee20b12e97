package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/podjdr/internal/apperr"
	"github.com/podjdr/internal/shadow"
)

// ShadowSendRequest is the body of POST /shadow/messages
type ShadowSendRequest struct {
	ContactCode string `json:"contact_code"`
	Content     string `json:"content"`
}

// openShadow returns the caller's own code and label
func (s *Server) openShadow(c echo.Context) error {
	party, err := s.svc.Channel.Open(c.Request().Context(), self(c))
	if err != nil {
		return respondError(c, err, "Failed to open covert channel")
	}
	return c.JSON(http.StatusOK, party)
}

func (s *Server) listShadowMessages(c echo.Context) error {
	threads, err := s.svc.Channel.ListThreads(c.Request().Context(), self(c))
	if err != nil {
		return respondError(c, err, "Failed to list covert messages")
	}
	return c.JSON(http.StatusOK, threads)
}

// sendShadowMessage answers an unknown code and a recipient without access
// identically, so codes cannot be probed
func (s *Server) sendShadowMessage(c echo.Context) error {
	var req ShadowSendRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	msg, err := s.svc.Channel.Send(c.Request().Context(), self(c), req.ContactCode, req.Content)
	if err != nil {
		if errors.Is(err, shadow.ErrRecipientUnreachable) || errors.Is(err, apperr.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "No recipient for this code",
			})
		}
		return respondError(c, err, "Failed to send covert message")
	}
	return c.JSON(http.StatusCreated, msg)
}

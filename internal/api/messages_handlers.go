package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/podjdr/internal/apperr"
)

// SendMessageRequest is the body of POST /messages
type SendMessageRequest struct {
	ReceiverID   int64  `json:"receiver_id"`
	ReceiverKind string `json:"receiver_kind"`
	Content      string `json:"content"`
}

// fetchThread returns the conversation with the peer named in the query,
// marking what the peer sent to the caller as read
func (s *Server) fetchThread(c echo.Context) error {
	var req PeerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid query")
	}
	peer, err := req.ref()
	if err != nil {
		return respondError(c, err, "")
	}
	thread, err := s.svc.Messages.FetchThread(c.Request().Context(), self(c), peer)
	if err != nil {
		return respondError(c, err, "Failed to fetch messages")
	}
	return c.JSON(http.StatusOK, thread)
}

func (s *Server) sendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	receiver, err := PeerRequest{ID: req.ReceiverID, Kind: req.ReceiverKind}.ref()
	if err != nil {
		return respondError(c, err, "")
	}

	ctx := c.Request().Context()
	sender := self(c)
	ok, err := s.svc.Contacts.IsAccepted(ctx, sender, receiver)
	if err != nil {
		return respondError(c, err, "Failed to check contact")
	}
	if !ok {
		return respondError(c, apperr.Forbidden("%s is not an accepted contact", receiver), "")
	}

	msg, err := s.svc.Messages.Send(ctx, sender, receiver, req.Content)
	if err != nil {
		return respondError(c, err, "Failed to send message")
	}
	return c.JSON(http.StatusCreated, msg)
}

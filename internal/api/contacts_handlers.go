package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContactRequestBody asks for a contact by display name
type ContactRequestBody struct {
	Username string `json:"username"`
}

func (s *Server) listContacts(c echo.Context) error {
	entries, err := s.svc.Contacts.ListAccepted(c.Request().Context(), self(c))
	if err != nil {
		return respondError(c, err, "Failed to list contacts")
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) requestContact(c echo.Context) error {
	var req ContactRequestBody
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == "" {
		return badRequest(c, "username is required")
	}
	edge, err := s.svc.Contacts.Request(c.Request().Context(), self(c), req.Username)
	if err != nil {
		return respondError(c, err, "Failed to send contact request")
	}
	return c.JSON(http.StatusCreated, edge)
}

// acceptContact approves the request the peer in the body addressed to the caller
func (s *Server) acceptContact(c echo.Context) error {
	var req PeerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	requester, err := req.ref()
	if err != nil {
		return respondError(c, err, "")
	}
	if err := s.svc.Contacts.Accept(c.Request().Context(), self(c), requester); err != nil {
		return respondError(c, err, "Failed to accept contact request")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Contact request accepted",
	})
}

func (s *Server) removeContact(c echo.Context) error {
	var req PeerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}
	peer, err := req.ref()
	if err != nil {
		return respondError(c, err, "")
	}
	if err := s.svc.Contacts.Remove(c.Request().Context(), self(c), peer); err != nil {
		return respondError(c, err, "Failed to remove contact")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listIncomingRequests(c echo.Context) error {
	requests, err := s.svc.Contacts.ListIncoming(c.Request().Context(), self(c))
	if err != nil {
		return respondError(c, err, "Failed to list contact requests")
	}
	return c.JSON(http.StatusOK, requests)
}

func (s *Server) listOutgoingRequests(c echo.Context) error {
	requests, err := s.svc.Contacts.ListOutgoing(c.Request().Context(), self(c))
	if err != nil {
		return respondError(c, err, "Failed to list pending requests")
	}
	return c.JSON(http.StatusOK, requests)
}

package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/livedesk/internal/domain"
)

// SendMessage runs the send pipeline for one agent-authored message. The
// optimistic entry is already in the transcript when this returns; delivery
// resolves in the background, so the response is 202 with the local id.
// POST /v1/sessions/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	sessionID := c.Param("session_id")

	var req struct {
		Body       string            `json:"body"`
		Visibility domain.Visibility `json:"visibility"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Visibility == "" {
		req.Visibility = domain.VisibilityPublic
	}
	if req.Visibility != domain.VisibilityPublic && req.Visibility != domain.VisibilityInternalNote {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid visibility"})
	}

	msg, err := h.engine.Send(sessionID, req.Body, req.Visibility)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyBody) || errors.Is(err, domain.ErrNoActiveSession) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"local_id": msg.LocalID,
		"message":  msg,
	})
}

// RetryMessage re-drives a failed entry as a new pending message.
// POST /v1/messages/:local_id/retry
func (h *Handler) RetryMessage(c echo.Context) error {
	localID := c.Param("local_id")
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = h.engine.ActiveSession()
	}

	msg, err := h.engine.Retry(sessionID, localID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownLocalID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"local_id": msg.LocalID,
		"message":  msg,
	})
}

// DismissMessage removes a failed entry from the transcript.
// DELETE /v1/messages/:local_id
func (h *Handler) DismissMessage(c echo.Context) error {
	localID := c.Param("local_id")
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = h.engine.ActiveSession()
	}

	if err := h.engine.Dismiss(sessionID, localID); err != nil {
		if errors.Is(err, domain.ErrUnknownLocalID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

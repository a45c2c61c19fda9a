package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListSessions returns the last fetched session list.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": h.engine.Sessions(),
	})
}

// SelectSession makes a session the active one and kicks an immediate
// out-of-band transcript fetch so switching feels responsive.
// POST /v1/sessions/:session_id/select
func (h *Handler) SelectSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing session_id"})
	}

	h.engine.SelectSession(sessionID)
	h.sched.Kick()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"transcript": h.engine.Transcript(sessionID),
	})
}

// CloseSession tears down a session view, clearing its buffered entries.
// DELETE /v1/sessions/:session_id
func (h *Handler) CloseSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing session_id"})
	}
	h.engine.CloseSession(sessionID)
	return c.NoContent(http.StatusNoContent)
}

// GetTranscript returns the current reconciled transcript for a session.
// GET /v1/sessions/:session_id/transcript
func (h *Handler) GetTranscript(c echo.Context) error {
	sessionID := c.Param("session_id")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"transcript": h.engine.Transcript(sessionID),
	})
}

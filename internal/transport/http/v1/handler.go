// Package v1 provides the HTTP and WebSocket API consumed by the console.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/livedesk/internal/engine"
	"github.com/xiaot623/livedesk/internal/hub"
	"github.com/xiaot623/livedesk/internal/scheduler"
)

// Handler handles console HTTP requests.
type Handler struct {
	engine *engine.Engine
	sched  *scheduler.Scheduler
	hub    *hub.Hub
}

// NewHandler creates a new handler.
func NewHandler(engine *engine.Engine, sched *scheduler.Scheduler, h *hub.Hub) *Handler {
	return &Handler{
		engine: engine,
		sched:  sched,
		hub:    h,
	}
}

// RegisterRoutes registers console routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/sessions", h.ListSessions)
	e.POST("/v1/sessions/:session_id/select", h.SelectSession)
	e.DELETE("/v1/sessions/:session_id", h.CloseSession)
	e.GET("/v1/sessions/:session_id/transcript", h.GetTranscript)
	e.POST("/v1/sessions/:session_id/messages", h.SendMessage)
	e.POST("/v1/messages/:local_id/retry", h.RetryMessage)
	e.DELETE("/v1/messages/:local_id", h.DismissMessage)

	e.GET("/v1/ws", h.HandleWebSocket)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/livedesk/internal/adapter/backend"
	"github.com/xiaot623/livedesk/internal/buffer"
	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/engine"
	"github.com/xiaot623/livedesk/internal/hub"
	"github.com/xiaot623/livedesk/internal/reconcile"
	"github.com/xiaot623/livedesk/internal/scheduler"
	v1 "github.com/xiaot623/livedesk/internal/transport/http/v1"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log.Printf("Starting livedesk gateway...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Backend: %s", cfg.BackendURL)
	log.Printf("Transcript poll: %s, session list poll: %s, match window: %s",
		cfg.TranscriptPollEvery, cfg.SessionListPollEvery, cfg.MatchWindow)

	// Upstream client
	client := backend.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.SendTimeout, cfg.BackendRPS, cfg.BackendBurst)

	// Push boundary
	h := hub.New()
	go h.Run()

	// Sync engine core
	buf := buffer.New()
	rec := reconcile.New(buf, cfg.MatchWindow)
	gen := domain.NewLocalIDGenerator("support")
	eng := engine.New(client, buf, rec, gen, h, cfg.SendTimeout)

	// Poll scheduler, bound to process lifetime
	sched := scheduler.New(eng, cfg.TranscriptPollEvery, cfg.SessionListPollEvery)
	sched.Start(context.Background())

	// Console HTTP server
	server := echo.New()
	server.HideBanner = true
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	handler := v1.NewHandler(eng, sched, h)
	handler.RegisterRoutes(server)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Console API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	// Stop polling before the server so no fetch mutates state mid-shutdown.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Gateway stopped")
}

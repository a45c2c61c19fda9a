// Package scheduler drives the periodic transcript and session-list fetches,
// independent of user actions, and stops cleanly with the owning view.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/xiaot623/livedesk/internal/metrics"
)

// Refresher is the engine surface the scheduler drives.
type Refresher interface {
	RefreshActiveTranscript(ctx context.Context) error
	RefreshSessions(ctx context.Context) error
}

// Scheduler runs two independent timers: a fine-cadence transcript refresh
// for the active session and a coarse-cadence session-list refresh. A fetch
// failure is logged and counted; the cadence never adapts to it.
type Scheduler struct {
	refresher       Refresher
	transcriptEvery time.Duration
	sessionsEvery   time.Duration

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler with the given cadences.
func New(r Refresher, transcriptEvery, sessionsEvery time.Duration) *Scheduler {
	return &Scheduler{
		refresher:       r,
		transcriptEvery: transcriptEvery,
		sessionsEvery:   sessionsEvery,
		kick:            make(chan struct{}, 1),
	}
}

// Start launches both timer loops. They stop when ctx is cancelled or Stop
// is called; no timer outlives the view it feeds.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.runTranscript(ctx)
	go s.runSessions(ctx)
}

// Stop cancels both loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Kick triggers one out-of-band transcript fetch, so selecting a session
// refreshes immediately instead of waiting out the current tick.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runTranscript(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.transcriptEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}
		s.tick(ctx, "transcript", s.refresher.RefreshActiveTranscript)
	}
}

func (s *Scheduler) runSessions(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sessionsEvery)
	defer ticker.Stop()

	// Prime the sidebar without waiting a full interval.
	s.tick(ctx, "session_list", s.refresher.RefreshSessions)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.tick(ctx, "session_list", s.refresher.RefreshSessions)
	}
}

func (s *Scheduler) tick(ctx context.Context, kind string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	metrics.PollTicks.WithLabelValues(kind).Inc()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		metrics.PollFailures.WithLabelValues(kind).Inc()
		log.Printf("WARN: %s poll failed: %v", kind, err)
	}
}

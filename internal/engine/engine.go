// Package engine owns the per-view chat state: the optimistic buffer, the
// reconciled transcripts, the active session, and the send pipeline. It is
// the single writer of rendered transcripts; transports on either side plug
// in through the Backend and Publisher ports.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/livedesk/internal/buffer"
	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/metrics"
	"github.com/xiaot623/livedesk/internal/reconcile"
)

// Backend is the upstream support API the engine polls and sends through.
type Backend interface {
	FetchTranscript(ctx context.Context, sessionID string, filter domain.VisibilityFilter) ([]domain.ServerRecord, error)
	SendMessage(ctx context.Context, sessionID, body string, visibility domain.Visibility) (domain.ServerRecord, error)
	FetchSessionList(ctx context.Context) ([]domain.SessionSummary, error)
}

// Publisher receives every new rendered transcript and session list. The
// WebSocket hub implements it; tests use a recording fake.
type Publisher interface {
	PublishTranscript(sessionID string, transcript []domain.Message)
	PublishSessions(sessions []domain.SessionSummary)
}

// Engine coordinates buffer, reconciler and backend for one agent console.
//
// All view state is guarded by one mutex: reconcile passes run entirely
// under it and do no I/O, so passes are strictly ordered by the completion
// of their triggering event. Network calls happen outside the lock.
type Engine struct {
	backend Backend
	buf     *buffer.Buffer
	rec     *reconcile.Reconciler
	pub     Publisher
	gen     *domain.LocalIDGenerator

	sendTimeout time.Duration

	mu          sync.Mutex
	active      string
	epoch       uint64
	lastServer  map[string][]domain.Message
	transcripts map[string][]domain.Message
	sessions    []domain.SessionSummary
}

// New creates an engine. pub may be nil when no push boundary is attached.
func New(backend Backend, buf *buffer.Buffer, rec *reconcile.Reconciler, gen *domain.LocalIDGenerator, pub Publisher, sendTimeout time.Duration) *Engine {
	return &Engine{
		backend:     backend,
		buf:         buf,
		rec:         rec,
		pub:         pub,
		gen:         gen,
		sendTimeout: sendTimeout,
		lastServer:  make(map[string][]domain.Message),
		transcripts: make(map[string][]domain.Message),
	}
}

// SelectSession makes sessionID the active one. The cached snapshot and any
// buffered entries render immediately; the caller kicks the scheduler for
// the out-of-band fetch. Bumping the epoch invalidates every transcript
// fetch still in flight, including one for this same session.
func (e *Engine) SelectSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = sessionID
	e.epoch++
	e.reconcileLocked(sessionID)
}

// Deselect clears the active session without touching buffered entries.
func (e *Engine) Deselect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = ""
	e.epoch++
}

// CloseSession tears down a session view: its buffered entries and cached
// transcripts are dropped. An active session is deselected first.
func (e *Engine) CloseSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == sessionID {
		e.active = ""
		e.epoch++
	}
	e.buf.ClearSession(sessionID)
	delete(e.lastServer, sessionID)
	delete(e.transcripts, sessionID)
}

// ActiveSession returns the currently selected session id, or "".
func (e *Engine) ActiveSession() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Transcript returns the last rendered transcript for a session.
func (e *Engine) Transcript(sessionID string) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Message, len(e.transcripts[sessionID]))
	copy(out, e.transcripts[sessionID])
	return out
}

// Sessions returns the last fetched session list.
func (e *Engine) Sessions() []domain.SessionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SessionSummary, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// RefreshActiveTranscript fetches the authoritative transcript for the
// active session and reconciles it. A response that lands after the active
// session (or epoch) has moved on is discarded: a stale fetch must never be
// reconciled into the now-active view.
func (e *Engine) RefreshActiveTranscript(ctx context.Context) error {
	e.mu.Lock()
	sessionID, epoch := e.active, e.epoch
	e.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	records, err := e.backend.FetchTranscript(ctx, sessionID, domain.FilterAll)
	if err != nil {
		return fmt.Errorf("fetch transcript for %s: %w", sessionID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != sessionID || e.epoch != epoch {
		metrics.StaleFetchesDropped.Inc()
		return nil
	}
	snapshot := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		snapshot = append(snapshot, domain.FromServerRecord(rec))
	}
	e.lastServer[sessionID] = snapshot
	e.reconcileLocked(sessionID)
	return nil
}

// RefreshSessions fetches the session list for the sidebar. The list is not
// reconciled against the buffer.
func (e *Engine) RefreshSessions(ctx context.Context) error {
	sessions, err := e.backend.FetchSessionList(ctx)
	if err != nil {
		return fmt.Errorf("fetch session list: %w", err)
	}

	e.mu.Lock()
	e.sessions = sessions
	e.mu.Unlock()
	if e.pub != nil {
		e.pub.PublishSessions(sessions)
	}
	return nil
}

// reconcileLocked runs one reconciliation pass and publishes the result.
// Callers hold e.mu.
func (e *Engine) reconcileLocked(sessionID string) {
	merged := e.rec.Merge(sessionID, e.lastServer[sessionID], domain.FilterAll)
	e.transcripts[sessionID] = merged
	metrics.ReconcilePasses.Inc()
	if e.pub != nil {
		e.pub.PublishTranscript(sessionID, merged)
	}
}

package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/metrics"
)

// Send runs the send pipeline for an agent-authored message: validate,
// insert a pending entry, reconcile so the console shows it immediately,
// then deliver in the background. The returned message carries the local id
// the caller uses for retry/dismiss.
//
// Delivery failures never surface as errors here; they become a failed
// transcript entry.
func (e *Engine) Send(sessionID, body string, visibility domain.Visibility) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, domain.ErrEmptyBody
	}
	if sessionID == "" {
		return domain.Message{}, domain.ErrNoActiveSession
	}

	msg := domain.NewOptimistic(e.gen, sessionID, domain.RoleAgent, body, visibility)

	e.mu.Lock()
	if err := e.buf.Insert(msg); err != nil {
		e.mu.Unlock()
		return domain.Message{}, err
	}
	e.reconcileLocked(sessionID)
	e.mu.Unlock()

	go e.deliver(msg)
	return msg, nil
}

// Retry re-drives a failed entry as a brand-new pending message with a fresh
// local id; the failed entry is removed. A local id is never reused in place.
func (e *Engine) Retry(sessionID, localID string) (domain.Message, error) {
	prev, ok := e.buf.Get(sessionID, localID)
	if !ok {
		return domain.Message{}, domain.ErrUnknownLocalID
	}
	if prev.State != domain.MessageStateFailed {
		return domain.Message{}, fmt.Errorf("cannot retry %s entry %s", prev.State, localID)
	}

	msg := domain.NewOptimistic(e.gen, sessionID, prev.AuthorRole, prev.Body, prev.Visibility)

	e.mu.Lock()
	if err := e.buf.Dismiss(sessionID, localID); err != nil {
		e.mu.Unlock()
		return domain.Message{}, err
	}
	if err := e.buf.Insert(msg); err != nil {
		e.mu.Unlock()
		return domain.Message{}, err
	}
	e.reconcileLocked(sessionID)
	e.mu.Unlock()

	go e.deliver(msg)
	return msg, nil
}

// Dismiss removes a failed entry from the transcript at the user's request.
func (e *Engine) Dismiss(sessionID, localID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.buf.Dismiss(sessionID, localID); err != nil {
		return err
	}
	e.reconcileLocked(sessionID)
	return nil
}

// deliver issues the transport call for one optimistic entry. It is called
// exactly once per entry; only an explicit retry sends the same body again.
// The call runs on its own timeout, not the originating request context,
// because the console has already been answered.
func (e *Engine) deliver(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
	defer cancel()

	rec, err := e.backend.SendMessage(ctx, msg.SessionID, msg.Body, msg.Visibility)
	if err != nil {
		log.Printf("send failed for %s: %v", msg.LocalID, err)
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		e.buf.MarkFailed(msg.SessionID, msg.LocalID, err.Error())
	} else {
		metrics.SendsTotal.WithLabelValues("confirmed").Inc()
		e.buf.MarkConfirmed(msg.SessionID, msg.LocalID, rec.ID, rec.CreatedAt)
	}

	e.mu.Lock()
	e.reconcileLocked(msg.SessionID)
	e.mu.Unlock()
}

// Package reconcile merges server-fetched transcripts with the optimistic
// buffer into the single ordered list the console renders.
package reconcile

import (
	"sort"
	"time"

	"github.com/xiaot623/livedesk/internal/buffer"
	"github.com/xiaot623/livedesk/internal/domain"
)

// Reconciler is the only component that decides final message identity and
// order. It performs no I/O.
type Reconciler struct {
	buf *buffer.Buffer

	// window bounds how far a server timestamp may drift from the local
	// creation time and still count as the same message.
	window time.Duration
}

// New creates a reconciler over the given buffer with the given match window.
func New(buf *buffer.Buffer, window time.Duration) *Reconciler {
	return &Reconciler{buf: buf, window: window}
}

// Merge produces the rendered transcript for a session from the latest
// server snapshot and the session's buffered entries. Buffer entries the
// snapshot now covers are retired; everything else is appended in insertion
// order and the whole list is stably sorted by effective timestamp.
//
// filter is the visibility filter the snapshot was fetched with; entries
// outside it are never content-matched against the snapshot.
func (r *Reconciler) Merge(sessionID string, server []domain.Message, filter domain.VisibilityFilter) []domain.Message {
	confirmed := make([]domain.Message, 0, len(server))
	seen := make(map[string]bool, len(server))
	for _, m := range server {
		if m.ServerID == "" || seen[m.ServerID] {
			continue
		}
		seen[m.ServerID] = true
		confirmed = append(confirmed, m)
	}
	// Server entries already claimed by a content match this pass.
	claimed := make([]bool, len(confirmed))

	var local []domain.Message
	for _, e := range r.buf.Entries(sessionID) {
		switch e.State {
		case domain.MessageStateConfirmed:
			// Confirmed by the send response. Once the snapshot carries the
			// record the buffer copy is redundant; until then it stands in
			// for the record so the message never disappears from view.
			if seen[e.ServerID] {
				r.buf.Retire(sessionID, e.LocalID)
				continue
			}
			seen[e.ServerID] = true
			local = append(local, e)

		case domain.MessageStatePending:
			if i, ok := r.match(e, confirmed, claimed, filter); ok {
				claimed[i] = true
				r.buf.Retire(sessionID, e.LocalID)
				continue
			}
			local = append(local, e)

		case domain.MessageStateFailed:
			// Failed entries are never auto-matched or auto-retired; they
			// leave only via explicit dismissal or retry.
			local = append(local, e)
		}
	}

	result := append(confirmed, local...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EffectiveTime().Before(result[j].EffectiveTime())
	})
	return result
}

// match looks for an unclaimed server entry observably equivalent to the
// local one. Locals are offered in insertion order, so when two pendings
// could claim the same record the oldest wins.
func (r *Reconciler) match(local domain.Message, server []domain.Message, claimed []bool, filter domain.VisibilityFilter) (int, bool) {
	if !filter.Includes(local.Visibility) {
		return 0, false
	}
	for i := range server {
		if claimed[i] {
			continue
		}
		if server[i].AuthorRole != local.AuthorRole ||
			server[i].Visibility != local.Visibility ||
			server[i].Body != local.Body {
			continue
		}
		if absDelta(server[i].CreatedAt, local.CreatedAt) <= r.window {
			return i, true
		}
	}
	return 0, false
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

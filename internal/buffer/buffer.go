// Package buffer holds locally originated messages awaiting server
// confirmation, keyed by session and local id.
package buffer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/livedesk/internal/domain"
)

type entry struct {
	msg domain.Message
	seq uint64
}

// Buffer tracks optimistic messages per session. Entries are added and
// mutated by the send pipeline and retired by the reconciler; nothing else
// writes to it.
type Buffer struct {
	mu       sync.Mutex
	sessions map[string]map[string]*entry
	nextSeq  uint64
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{
		sessions: make(map[string]map[string]*entry),
	}
}

// Insert adds a pending message. A duplicate local id means the generator
// contract is broken and is reported as domain.ErrDuplicateLocalID.
func (b *Buffer) Insert(msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.sessions[msg.SessionID]
	if byID == nil {
		byID = make(map[string]*entry)
		b.sessions[msg.SessionID] = byID
	}
	if _, ok := byID[msg.LocalID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateLocalID, msg.LocalID)
	}
	b.nextSeq++
	byID[msg.LocalID] = &entry{msg: msg, seq: b.nextSeq}
	return nil
}

// MarkConfirmed transitions an entry to confirmed, stamping the server
// identity and timestamp. It is a no-op when the local id is absent: the
// entry may already have been reconciled away by a poll that included it.
func (b *Buffer) MarkConfirmed(sessionID, localID, serverID string, serverTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.sessions[sessionID][localID]
	if !ok {
		return
	}
	e.msg.State = domain.MessageStateConfirmed
	e.msg.ServerID = serverID
	e.msg.CreatedAt = serverTime
}

// MarkFailed transitions an entry to failed. The entry stays visible until
// explicitly dismissed or retried.
func (b *Buffer) MarkFailed(sessionID, localID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.sessions[sessionID][localID]
	if !ok {
		return
	}
	e.msg.State = domain.MessageStateFailed
	e.msg.FailReason = reason
}

// Get returns a copy of the entry for the given local id.
func (b *Buffer) Get(sessionID, localID string) (domain.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.sessions[sessionID][localID]
	if !ok {
		return domain.Message{}, false
	}
	return e.msg, true
}

// Entries returns every message for the session not yet superseded by a
// server record, in insertion order. This is the only read the reconciler
// uses.
func (b *Buffer) Entries(sessionID string) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.sessions[sessionID]
	out := make([]*entry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	// Map iteration is unordered; restore insertion order.
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	msgs := make([]domain.Message, len(out))
	for i, e := range out {
		msgs[i] = e.msg
	}
	return msgs
}

// Retire removes an entry once the reconciler has matched it to an
// equivalent server record.
func (b *Buffer) Retire(sessionID, localID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sessionID, localID)
}

// Dismiss removes a failed entry at the user's request. Pending and
// confirmed entries are not dismissable.
func (b *Buffer) Dismiss(sessionID, localID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.sessions[sessionID][localID]
	if !ok {
		return domain.ErrUnknownLocalID
	}
	if e.msg.State != domain.MessageStateFailed {
		return fmt.Errorf("cannot dismiss %s entry %s", e.msg.State, localID)
	}
	b.remove(sessionID, localID)
	return nil
}

// ClearSession drops all entries for a session. Called when the session view
// is closed for good, not on a mere switch.
func (b *Buffer) ClearSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

// Len returns the number of buffered entries for a session.
func (b *Buffer) Len(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[sessionID])
}

func (b *Buffer) remove(sessionID, localID string) {
	byID := b.sessions[sessionID]
	if byID == nil {
		return
	}
	delete(byID, localID)
	if len(byID) == 0 {
		delete(b.sessions, sessionID)
	}
}

// Package domain defines the core domain models for the live-chat sync engine.
package domain

import "time"

// MessageState represents the lifecycle state of a message.
type MessageState string

const (
	MessageStatePending   MessageState = "pending"
	MessageStateConfirmed MessageState = "confirmed"
	MessageStateFailed    MessageState = "failed"
)

// AuthorRole identifies which side of the conversation authored a message.
type AuthorRole string

const (
	RoleCustomer AuthorRole = "customer"
	RoleAgent    AuthorRole = "agent"
	RoleSystem   AuthorRole = "system"
)

// Visibility controls who may see a message.
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityInternalNote Visibility = "internal_note"
)

// VisibilityFilter selects which visibilities a transcript fetch covers.
type VisibilityFilter string

const (
	// FilterAll covers public messages and internal notes (agent-facing view).
	FilterAll VisibilityFilter = "all"
	// FilterPublic covers public messages only (customer-facing view).
	FilterPublic VisibilityFilter = "public"
)

// Includes reports whether the filter covers the given visibility.
func (f VisibilityFilter) Includes(v Visibility) bool {
	return f == FilterAll || v == VisibilityPublic
}

// Message is one chat entry in a session transcript.
//
// Locally originated messages carry a LocalID until the backend assigns a
// ServerID; the two ids never overlap in meaning and LocalID is never sent
// upstream as the message's real id.
type Message struct {
	LocalID    string       `json:"local_id,omitempty"`
	ServerID   string       `json:"server_id,omitempty"`
	SessionID  string       `json:"session_id"`
	AuthorRole AuthorRole   `json:"author_role"`
	Body       string       `json:"body"`
	Visibility Visibility   `json:"visibility"`
	CreatedAt  time.Time    `json:"created_at"`
	State      MessageState `json:"state"`

	// FailReason is a human-readable reason when State is failed.
	FailReason string `json:"fail_reason,omitempty"`
}

// ServerRecord is the wire shape of a persisted message as returned by the
// support backend.
type ServerRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	AuthorRole AuthorRole `json:"author_role"`
	Body       string     `json:"body"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SessionSummary is the sidebar view of a chat session. The engine only reads
// it; session state itself is owned by the backend.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	CustomerID  string    `json:"customer_id,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewOptimistic constructs a pending, locally originated message with a fresh
// local id and a client-side creation timestamp.
func NewOptimistic(gen *LocalIDGenerator, sessionID string, role AuthorRole, body string, visibility Visibility) Message {
	return Message{
		LocalID:    gen.Next(),
		SessionID:  sessionID,
		AuthorRole: role,
		Body:       body,
		Visibility: visibility,
		CreatedAt:  time.Now(),
		State:      MessageStatePending,
	}
}

// FromServerRecord converts a backend record into a confirmed message.
func FromServerRecord(rec ServerRecord) Message {
	return Message{
		ServerID:   rec.ID,
		SessionID:  rec.SessionID,
		AuthorRole: rec.AuthorRole,
		Body:       rec.Body,
		Visibility: rec.Visibility,
		CreatedAt:  rec.CreatedAt,
		State:      MessageStateConfirmed,
	}
}

// EffectiveTime is the timestamp a message sorts by: the server timestamp once
// confirmed, the local creation time while pending or failed.
func (m Message) EffectiveTime() time.Time {
	return m.CreatedAt
}

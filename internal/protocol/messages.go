// Package protocol defines the WebSocket message envelopes between console
// clients and the gateway.
package protocol

import "github.com/xiaot623/livedesk/internal/domain"

// Message types from console to gateway
const (
	TypeHello         = "hello"
	TypeSelectSession = "select_session"
	TypeCloseSession  = "close_session"
)

// Message types from gateway to console
const (
	TypeHelloAck    = "hello_ack"
	TypeTranscript  = "transcript"
	TypeSessionList = "session_list"
	TypeError       = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage is sent by the console to establish the connection.
type HelloMessage struct {
	BaseMessage
	AgentID string `json:"agent_id,omitempty"`
}

// HelloAckMessage is sent by the gateway after a successful hello.
type HelloAckMessage struct {
	BaseMessage
}

// SelectSessionMessage binds the connection to the session it is viewing
// and makes that session active.
type SelectSessionMessage struct {
	BaseMessage
}

// TranscriptMessage carries the full reconciled transcript for a session.
// Per-entry state lets the console style pending and failed entries.
type TranscriptMessage struct {
	BaseMessage
	Transcript []domain.Message `json:"transcript"`
}

// SessionListMessage carries the sidebar session summaries.
type SessionListMessage struct {
	BaseMessage
	Sessions []domain.SessionSummary `json:"sessions"`
}

// ErrorMessage reports a command failure on the socket.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Package hub provides connection management for console WebSocket clients
// and is the push side of the render boundary.
package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/livedesk/internal/domain"
	"github.com/xiaot623/livedesk/internal/protocol"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single console WebSocket connection. A connection
// is bound to at most one session: the one its console is viewing.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// Hub manages console connections and routes snapshots to them.
type Hub struct {
	connections map[string]*Connection
	sessions    map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *sessionMessage

	mu sync.RWMutex
}

type sessionMessage struct {
	// SessionID routes the payload; empty means every connection.
	SessionID string
	Data      []byte
}

// New creates a hub.
func New() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *sessionMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			log.Printf("console connected: %s", conn.ID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("console disconnected: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if msg.SessionID == "" {
				for _, conn := range h.connections {
					h.push(conn, msg.Data)
				}
			} else if connIDs, ok := h.sessions[msg.SessionID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						h.push(conn, msg.Data)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) push(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Buffer full, drop the connection; the console reconnects and
		// receives a fresh snapshot.
		log.Printf("connection %s buffer full, closing", conn.ID)
		go h.Unregister(conn)
	}
}

// NewConnection creates a connection for a raw websocket.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   uuid.New().String(),
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BindSession binds a connection to the session its console is viewing.
// Snapshots for other sessions will not reach it.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(conn)
	conn.SessionID = sessionID
	if sessionID == "" {
		return
	}
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.SessionID == "" {
		return
	}
	if set := h.sessions[conn.SessionID]; set != nil {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(h.sessions, conn.SessionID)
		}
	}
	conn.SessionID = ""
}

// PublishTranscript pushes a reconciled transcript to the consoles viewing
// that session. Implements the engine's Publisher port.
func (h *Hub) PublishTranscript(sessionID string, transcript []domain.Message) {
	msg := protocol.TranscriptMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeTranscript,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
		},
		Transcript: transcript,
	}
	h.send(sessionID, msg)
}

// PublishSessions pushes the session list to every connected console.
func (h *Hub) PublishSessions(sessions []domain.SessionSummary) {
	msg := protocol.SessionListMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeSessionList,
			Ts:   time.Now().UnixMilli(),
		},
		Sessions: sessions,
	}
	h.send("", msg)
}

func (h *Hub) send(sessionID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("marshal push message: %v", err)
		return
	}
	h.broadcast <- &sessionMessage{SessionID: sessionID, Data: data}
}

// SendJSONToConnection sends one message to a single connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes to the underlying socket with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

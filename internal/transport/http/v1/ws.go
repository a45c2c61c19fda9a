package v1

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/livedesk/internal/hub"
	"github.com/xiaot623/livedesk/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The gateway fronts a same-origin console; CORS is handled by
		// middleware for the REST surface.
		return true
	},
}

// HandleWebSocket upgrades the connection and runs its read/write pumps.
// GET /v1/ws
func (h *Handler) HandleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return err
	}

	conn := h.hub.NewConnection(ws)
	h.hub.Register(conn)

	go h.writePump(conn)
	go h.readPump(conn)

	return nil
}

func (h *Handler) readPump(conn *hub.Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadLimit(wsMaxMessage)
	conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
		h.handleSocketMessage(conn, message)
	}
}

func (h *Handler) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// Hub closed the channel.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("websocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSocketMessage dispatches one console command received on the socket.
func (h *Handler) handleSocketMessage(conn *hub.Connection, data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		h.socketError(conn, "bad_message", "invalid json")
		return
	}

	switch base.Type {
	case protocol.TypeHello:
		h.hub.SendJSONToConnection(conn, protocol.HelloAckMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeHelloAck, Ts: time.Now().UnixMilli()},
		})
		h.hub.SendJSONToConnection(conn, protocol.SessionListMessage{
			BaseMessage: protocol.BaseMessage{Type: protocol.TypeSessionList, Ts: time.Now().UnixMilli()},
			Sessions:    h.engine.Sessions(),
		})

	case protocol.TypeSelectSession:
		if base.SessionID == "" {
			h.socketError(conn, "bad_message", "select_session requires session_id")
			return
		}
		h.hub.BindSession(conn, base.SessionID)
		h.engine.SelectSession(base.SessionID)
		h.sched.Kick()
		// The select already published a snapshot from cache; the kicked
		// fetch follows with the authoritative one.
		h.hub.SendJSONToConnection(conn, protocol.TranscriptMessage{
			BaseMessage: protocol.BaseMessage{
				Type:      protocol.TypeTranscript,
				Ts:        time.Now().UnixMilli(),
				SessionID: base.SessionID,
			},
			Transcript: h.engine.Transcript(base.SessionID),
		})

	case protocol.TypeCloseSession:
		if base.SessionID == "" {
			h.socketError(conn, "bad_message", "close_session requires session_id")
			return
		}
		h.hub.BindSession(conn, "")
		h.engine.CloseSession(base.SessionID)

	default:
		h.socketError(conn, "unknown_type", "unknown message type: "+base.Type)
	}
}

func (h *Handler) socketError(conn *hub.Connection, code, msg string) {
	h.hub.SendJSONToConnection(conn, protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeError, Ts: time.Now().UnixMilli()},
		Code:        code,
		Message:     msg,
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gamesmith/internal/logging"
	"gamesmith/internal/session"
	"gamesmith/internal/store"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	// maxReportBytes caps inbound report frames. Anything bigger than this
	// is not an error message, it is someone probing the endpoint.
	maxReportBytes = 16 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The preview iframe posts from a null origin.
	},
}

// wsEvent is the outbound frame shape.
type wsEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// inboundReport is what the preview page relays from the instrumentation
// script inside the iframe.
type inboundReport struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Hub fans session events out to WebSocket clients, one room per session.
// Inbound frames are runtime reports from the running game; they are filed
// on the session so the next cycle fixes them first.
type Hub struct {
	store store.SessionStore

	mu    sync.RWMutex
	rooms map[string]map[*wsClient]bool
}

type wsClient struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

func NewHub(st store.SessionStore) *Hub {
	return &Hub{
		store: st,
		rooms: make(map[string]map[*wsClient]bool),
	}
}

// ServeWS upgrades the connection and joins the session's room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.APIWarn("websocket upgrade failed for session %s: %v", sessionID, err)
		return
	}

	c := &wsClient{
		hub:       h,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[*wsClient]bool)
	}
	h.rooms[sessionID][c] = true
	h.mu.Unlock()

	logging.APIDebug("websocket client joined session %s", sessionID)

	go c.writePump()
	go c.readPump()
}

// Broadcast sends an event to every client in the session's room.
func (h *Hub) Broadcast(sessionID, eventType string, payload interface{}) {
	data, err := json.Marshal(wsEvent{Type: eventType, SessionID: sessionID, Payload: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[sessionID] {
		select {
		case c.send <- data:
		default:
			// Client buffer full, skip.
		}
	}
}

// ClientCount reports the room size, for tests and the status endpoint.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	if room, ok := h.rooms[c.sessionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.sessionID)
		}
	}
	h.mu.Unlock()
	close(c.send)
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReportBytes)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.APIDebug("websocket read error on session %s: %v", c.sessionID, err)
			}
			return
		}
		c.hub.handleReport(c.sessionID, message)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleReport files an inbound runtime report on the session and echoes it
// to the room so open consoles see it too.
func (h *Hub) handleReport(sessionID string, raw []byte) {
	var report inboundReport
	if err := json.Unmarshal(raw, &report); err != nil {
		logging.APIDebug("discarding malformed report on session %s: %v", sessionID, err)
		return
	}
	if report.Kind != "runtime_error" && report.Kind != "structural_warning" {
		logging.APIDebug("discarding report with unknown kind %q on session %s", report.Kind, sessionID)
		return
	}
	if report.Message == "" {
		return
	}

	err := h.store.SetErrorReport(sessionID, &session.ErrorReport{
		Kind:    report.Kind,
		Message: report.Message,
	})
	if err != nil {
		logging.APIWarn("failed to file %s for session %s: %v", report.Kind, sessionID, err)
		return
	}

	logging.AuditRuntimeReport(sessionID, report.Message)
	logging.API("filed %s for session %s: %s", report.Kind, sessionID, report.Message)
	h.Broadcast(sessionID, "error_report", report)
}

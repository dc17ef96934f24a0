package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

type WSConfig struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
}

// wsConn is a websocket subscriber. Frames queue in send and a single
// writer goroutine drains them.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f.Payload:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WSHandler upgrades /ws requests and serves the room channel protocol.
type WSHandler struct {
	hub      *Hub
	cfg      WSConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, cfg WSConfig) *WSHandler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	h := &WSHandler{hub: hub, cfg: cfg}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{
		id:   newConnID(),
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	log.Info().Str("conn_id", c.id).Str("remote", r.RemoteAddr).Msg("websocket connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *WSHandler) readLoop(c *wsConn) {
	defer func() {
		h.hub.UnsubscribeAll(c.id)
		c.Close()
		_ = c.ws.Close()
		metricConnectionsActive.Add(-1)
		log.Info().Str("conn_id", c.id).Msg("websocket disconnected")
	}()

	pongWait := h.cfg.PingInterval * 2
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		roomID := strings.TrimSpace(msg.RoomID)
		if roomID == "" {
			continue
		}
		switch msg.Type {
		case MsgJoinRoomChannel:
			_ = h.hub.Subscribe(context.Background(), c, roomID)
		case MsgLeaveRoomChannel:
			h.hub.Unsubscribe(c.id, roomID)
		}
	}
}

func (h *WSHandler) writeLoop(c *wsConn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

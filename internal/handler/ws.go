package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/statxchange/statxchange/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains active websocket connections and fans market events out
// to them. Clients subscribe to symbols; a client with no subscriptions
// receives every event.
type Hub struct {
	logger *slog.Logger

	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run drains the event source and manages client registration until ctx
// is cancelled.
func (h *Hub) Run(ctx context.Context, src <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "client_id", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "client_id", client.id, "total", total)

		case evt, ok := <-src:
			if !ok {
				return
			}
			h.broadcast(evt)
		}
	}
}

func (h *Hub) broadcast(evt events.Event) {
	message, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err, "type", evt.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.wants(evt.Symbol) {
			continue
		}
		select {
		case client.send <- message:
		default:
			// Slow consumer, disconnect rather than block the fan-out.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsClient is a single websocket connection.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

// wsSubscribeRequest is the inbound control message for managing symbol
// subscriptions.
type wsSubscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

func (c *wsClient) wants(symbol string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[symbol]
}

func (c *wsClient) subscribe(symbols []string) {
	c.subsMu.Lock()
	for _, s := range symbols {
		c.subscriptions[s] = true
	}
	c.subsMu.Unlock()
}

func (c *wsClient) unsubscribe(symbols []string) {
	c.subsMu.Lock()
	for _, s := range symbols {
		delete(c.subscriptions, s)
	}
	c.subsMu.Unlock()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "client_id", c.id, "error", err)
			}
			break
		}

		var req wsSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Op {
		case "subscribe":
			c.subscribe(req.Symbols)
		case "unsubscribe":
			c.unsubscribe(req.Symbols)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush anything already queued in the same frame batch.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades requests on GET /ws and wires clients into the
// hub.
type WSHandler struct {
	hub *Hub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:           h.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            uuid.NewString(),
		subscriptions: make(map[string]bool),
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

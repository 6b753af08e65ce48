// Package ws pushes recomputed tables to websocket clients, grouped by user.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tartampluch/go-haid/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served on loopback by default; CORS belongs to the proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	User  string `json:"user"`
	Data  any    `json:"data"`
}

// SnapshotFunc returns the current payload for user, sent right after connect.
type SnapshotFunc func(ctx context.Context, user string) (any, error)

// Hub tracks connected clients per user and fans out published tables.
type Hub struct {
	snapshot SnapshotFunc

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that greets each client with snapshot (may be nil).
func New(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot: snapshot,
		clients:  make(map[string]map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Serve upgrades the request and streams user's tables to the client. It
// blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug(config.ErrWSUpgrade,
			config.LogKeyComponent, config.CompWS,
			config.LogKeyError, err,
		)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, config.WSSendBufSize),
	}
	h.register(user, c)
	defer h.unregister(user, c)

	if h.snapshot != nil {
		if data, err := h.snapshot(r.Context(), user); err == nil {
			if msg, err := encode(user, data); err == nil {
				h.mu.RLock()
				if _, ok := h.clients[user][c]; ok {
					select {
					case c.send <- msg:
					default:
					}
				}
				h.mu.RUnlock()
			}
		}
	}

	go c.writePump()
	c.readPump()
}

// Publish sends data to every client of user. Clients whose buffer is full
// are disconnected.
func (h *Hub) Publish(user string, data any) {
	msg, err := encode(user, data)
	if err != nil {
		return
	}

	// Sends happen under the read lock: send channels are only closed while
	// holding the write lock, so a registered client's channel is open here.
	var slow []*client
	h.mu.RLock()
	for c := range h.clients[user] {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn(config.MsgWSClientDropped,
			config.LogKeyComponent, config.CompWS,
			config.LogKeyUser, user,
		)
		h.unregister(user, c)
	}
}

// Count returns the number of clients connected for user.
func (h *Hub) Count(user string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[user])
}

func encode(user string, data any) ([]byte, error) {
	return json.Marshal(Message{Event: config.WSEventTable, User: user, Data: data})
}

func (h *Hub) register(user string, c *client) {
	h.mu.Lock()
	if h.clients[user] == nil {
		h.clients[user] = make(map[*client]struct{})
	}
	h.clients[user][c] = struct{}{}
	n := len(h.clients[user])
	h.mu.Unlock()

	slog.Debug(config.MsgWSClientJoined,
		config.LogKeyComponent, config.CompWS,
		config.LogKeyUser, user,
		config.LogKeyClients, n,
	)
}

func (h *Hub) unregister(user string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[user][c]; ok {
		delete(h.clients[user], c)
		close(c.send)
		if len(h.clients[user]) == 0 {
			delete(h.clients, user)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, user)
	}
}

// writePump forwards queued messages and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles control frames and detects disconnects.
func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Package websocket serves a read-only live feed of installer status to
// local front-ends.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("websocket")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// SnapshotFunc returns the message sent to a client right after it
// connects.
type SnapshotFunc func() any

// Hub broadcasts JSON messages to every connected client. Slow clients
// lose messages rather than blocking the broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot SnapshotFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a Hub. snapshot may be nil.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrigin,
		},
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
}

// SetSnapshot replaces the greeting sent to new clients.
func (h *Hub) SetSnapshot(snapshot SnapshotFunc) {
	h.mu.Lock()
	h.snapshot = snapshot
	h.mu.Unlock()
}

// sameHostOrigin accepts non-browser clients and browsers on the feed's
// own host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	req, err := http.NewRequest(http.MethodGet, origin, nil)
	if err != nil {
		return false
	}
	return req.URL.Host == r.Host
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	snapshot := h.snapshot
	h.mu.Unlock()
	log.Info("feed client connected", zap.String("remote", r.RemoteAddr))

	if snapshot != nil {
		if data, err := json.Marshal(snapshot()); err == nil {
			c.send <- data
		}
	}

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast sends v as JSON to every client.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to marshal feed message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Debug("feed client too slow, dropping message")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("feed read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("feed write error", zap.Error(err))
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Server exposes a Hub over HTTP on a listener capped at a fixed number of
// concurrent connections.
type Server struct {
	hub      *Hub
	listener net.Listener
	srv      *http.Server
}

// Listen binds addr and serves hub at /feed. maxClients caps concurrent
// connections.
func Listen(addr string, hub *Hub, maxClients int) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if maxClients < 1 {
		maxClients = 1
	}
	ln = netutil.LimitListener(ln, maxClients)

	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	s := &Server{
		hub:      hub,
		listener: ln,
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("feed server stopped", zap.Error(err))
		}
	}()
	log.Info("feed listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown closes clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

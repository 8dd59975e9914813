// Package devsync pushes theme change notifications to connected theme
// editors over WebSocket. Each connection subscribes to one store; an event
// for a store reaches only that store's subscribers.
package devsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/storefront/internal/logging"
)

const (
	sendBuffer    = 16
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
	readLimit     = 4096
	queueCapacity = 64
)

// ErrClosed is returned by Publish after Shutdown.
var ErrClosed = errors.New("devsync hub closed")

// Event tells editors that files of a store's theme changed.
type Event struct {
	Type    string    `json:"type"`
	StoreID string    `json:"store_id"`
	Paths   []string  `json:"paths,omitempty"`
	At      time.Time `json:"at"`
}

// EventThemeChanged is the type of events produced by file changes.
const EventThemeChanged = "theme_changed"

type client struct {
	conn    *websocket.Conn
	storeID string
	send    chan []byte
}

type message struct {
	storeID string
	data    []byte
}

// Hub tracks editor connections and fans events out to them.
type Hub struct {
	logger  logging.Logger
	origins []string

	mu      sync.RWMutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan message

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithOrigins sets the origin patterns accepted on upgrade. Without it only
// same-host origins connect.
func WithOrigins(patterns ...string) Option {
	return func(h *Hub) { h.origins = append(h.origins, patterns...) }
}

// WithLogger sets the hub logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) { h.logger = l.WithComponent("devsync") }
}

// NewHub creates a hub and starts its loop.
func NewHub(opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:     logging.NewNop(),
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, queueCapacity),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.run()
	return h
}

// Clients returns the number of connected editors.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for the subscribers of ev.StoreID. Events are
// dropped when the queue is full.
func (h *Hub) Publish(ev Event) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message{storeID: ev.StoreID, data: data}:
	case <-h.ctx.Done():
		return ErrClosed
	default:
		h.logger.Warn(h.ctx, nil, "event queue full, dropping event", "store_id", ev.StoreID)
	}
	return nil
}

// ServeHTTP upgrades the request and subscribes the connection to the
// store named by the "store" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store")
	if storeID == "" {
		http.Error(w, "missing store parameter", http.StatusBadRequest)
		return
	}
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed",
			"remote_addr", logging.SanitizeForLog(r.RemoteAddr))
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{conn: conn, storeID: storeID, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "editor connected", "store_id", c.storeID, "clients", n)

		case c := <-h.unregister:
			h.remove(c)

		case m := <-h.broadcast:
			h.deliver(m)

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug(h.ctx, "editor disconnected", "store_id", c.storeID, "clients", n)
	}
}

// deliver runs on the hub loop. Slow clients are dropped rather than
// stalling the others.
func (h *Hub) deliver(m message) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.storeID != m.storeID {
			continue
		}
		select {
		case c.send <- m.data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusGoingAway, "")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Shutdown disconnects every editor and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crossfund/internal/metrics"
	"crossfund/internal/model"
)

const (
	writeWait        = 5 * time.Second
	clientBufferSize = 64
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster pushes ledger events to connected websocket clients. Each client
// has its own queue and writer, so a slow peer never blocks the ledger.
type Broadcaster struct {
	clients  map[*wsClient]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
	}
}

// Subscriber returns a ledger callback that broadcasts every event.
func (b *Broadcaster) Subscriber() func(event string, rec model.Contribution) {
	return func(event string, rec model.Contribution) {
		b.Broadcast(Event{Event: event, Contribution: rec})
	}
}

// Broadcast queues v as JSON for every client. Clients whose queue is full
// are disconnected.
func (b *Broadcaster) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn("marshal websocket event failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			b.logger.Warn("websocket client too slow, disconnecting", zap.String("remote_addr", c.conn.RemoteAddr().String()))
			metrics.EventsPublished.WithLabelValues("websocket", "dropped").Inc()
			b.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Handler accepts websocket connections.
func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := &wsClient{conn: conn, send: make(chan []byte, clientBufferSize)}
		b.mu.Lock()
		b.clients[c] = struct{}{}
		b.mu.Unlock()

		go b.writeLoop(c)
		go b.readLoop(c)
	}
}

func (b *Broadcaster) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Debug("websocket write failed", zap.String("remote_addr", c.conn.RemoteAddr().String()), zap.Error(err))
			metrics.EventsPublished.WithLabelValues("websocket", "failed").Inc()
			b.remove(c)
			return
		}
		metrics.EventsPublished.WithLabelValues("websocket", "ok").Inc()
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop discards client frames and notices disconnects.
func (b *Broadcaster) readLoop(c *wsClient) {
	defer b.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) remove(c *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

// removeLocked closes the client's queue once; its writer then closes the conn.
func (b *Broadcaster) removeLocked(c *wsClient) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
}

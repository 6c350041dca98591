package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ledger/internal/pipeline"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	tailWriteTimeout = 10 * time.Second
	tailPingPeriod   = 30 * time.Second
	tailSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tailClient is one connected support-console socket.
type tailClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Tail broadcasts every published ChangeEvent to connected websocket
// clients: a register/unregister/broadcast channel hub narrowed to a
// single outbound message type with no inbound state requests.
type Tail struct {
	mu         sync.RWMutex
	clients    map[*tailClient]bool
	register   chan *tailClient
	unregister chan *tailClient
	broadcast  chan []byte
	logger     zerolog.Logger
}

func NewTail(logger zerolog.Logger) *Tail {
	return &Tail{
		clients:    make(map[*tailClient]bool),
		register:   make(chan *tailClient),
		unregister: make(chan *tailClient),
		broadcast:  make(chan []byte, tailSendBuffer),
		logger:     logger,
	}
}

// Run drives the hub's loop until ctx is cancelled by the caller
// closing done.
func (t *Tail) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			t.mu.Lock()
			for c := range t.clients {
				close(c.send)
			}
			t.clients = map[*tailClient]bool{}
			t.mu.Unlock()
			return
		case c := <-t.register:
			t.mu.Lock()
			t.clients[c] = true
			t.mu.Unlock()
		case c := <-t.unregister:
			t.mu.Lock()
			if _, ok := t.clients[c]; ok {
				delete(t.clients, c)
				close(c.send)
			}
			t.mu.Unlock()
		case data := <-t.broadcast:
			t.mu.RLock()
			for c := range t.clients {
				select {
				case c.send <- data:
				default:
					t.logger.Warn().Msg("audit: tail client too slow, dropping")
				}
			}
			t.mu.RUnlock()
		}
	}
}

// Publish implements pipeline.AuditSink so Tail can be composed with
// the Pub/Sub Publisher via a fan-out sink.
func (t *Tail) Publish(_ context.Context, event pipeline.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		t.logger.Error().Err(err).Msg("audit: failed to encode tailed change event")
		return
	}
	select {
	case t.broadcast <- data:
	default:
		t.logger.Warn().Msg("audit: tail broadcast channel full, dropping event")
	}
}

// ServeHTTP upgrades the request to a websocket and streams change
// events to it until the client disconnects.
func (t *Tail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error().Err(err).Msg("audit: websocket upgrade failed")
		return
	}

	client := &tailClient{conn: conn, send: make(chan []byte, tailSendBuffer)}
	t.register <- client

	go t.readPump(client)
	go t.writePump(client)
}

func (t *Tail) readPump(c *tailClient) {
	defer func() {
		t.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(tailPingPeriod * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(tailPingPeriod * 2))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (t *Tail) writePump(c *tailClient) {
	ticker := time.NewTicker(tailPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(tailWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(tailWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ pipeline.AuditSink = (*Tail)(nil)

// Package wsbroadcast exposes the Event Bus over a websocket so external
// dashboards (and the `loopctl watch` command) can observe a running
// session without sharing the engine's process.
package wsbroadcast

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loopctl/loopctl/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server fans out every event published on Bus to connected websocket
// clients. One Server can back many concurrent connections.
type Server struct {
	Bus    events.Publisher
	Logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan events.Event
}

// New creates a Server over bus.
func New(bus events.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Bus: bus, Logger: logger, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request to a websocket and streams every event
// published on the bus until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("wsbroadcast: upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan events.Event, sendBuffer)}
	s.register(c)
	defer s.unregister(c)

	go c.writePump()
	c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Run subscribes to the bus and fans out every event to all connected
// clients until bus is closed or stop is signaled.
func (s *Server) Run(stop <-chan struct{}) {
	sub := s.Bus.Subscribe(events.TopicAll)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(ev)
		case <-stop:
			s.Bus.Unsubscribe(events.TopicAll, sub)
			return
		}
	}
}

func (s *Server) broadcast(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			// slow client, drop rather than block the broadcaster
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards incoming frames; this connection is send-only from the
// engine's perspective, but we still need to read to notice disconnects and
// keep the pong deadline serviced.
func (c *client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Package stream fans consultation events out to websocket subscribers.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"consult-transcript-service/internal/observability/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Envelope types.
const (
	TypeTranscriptPartial = "transcript.partial"
	TypeTranscriptFinal   = "transcript.final"
	TypeAnalysisCompleted = "analysis.completed"
	TypeAnalysisFailed    = "analysis.failed"
	TypeCaptureError      = "capture.error"
)

// Envelope is the JSON frame sent to subscribers.
type Envelope struct {
	Type           string `json:"type"`
	ConsultationID string `json:"consultationId"`
	Data           any    `json:"data,omitempty"`
}

type client struct {
	conn           *websocket.Conn
	consultationID string
	send           chan Envelope
}

// Hub manages websocket subscribers keyed by consultation id.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*client]bool
	broadcast  chan Envelope
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		broadcast:  make(chan Envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
	}
}

// Run delivers broadcasts until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*client]bool)
			h.mu.Unlock()
			h.metrics.WebsocketClients.Set(0)
			close(h.done)
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.consultationID]
			if !ok {
				set = make(map[*client]bool)
				h.clients[c.consultationID] = set
			}
			set[c] = true
			h.mu.Unlock()
			h.metrics.WebsocketClients.Inc()
			log.Debug().Str("consultation_id", c.consultationID).Msg("Websocket client connected")

		case c := <-h.unregister:
			h.remove(c)

		case env := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients[env.ConsultationID] {
				select {
				case c.send <- env:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				log.Warn().Str("consultation_id", c.consultationID).Msg("Dropping slow websocket client")
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.consultationID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.consultationID)
	}
	close(c.send)
	h.metrics.WebsocketClients.Dec()
	log.Debug().Str("consultation_id", c.consultationID).Msg("Websocket client disconnected")
}

// Broadcast queues env for the consultation's subscribers. It never blocks;
// when the queue is full the event is dropped.
func (h *Hub) Broadcast(env Envelope) {
	select {
	case h.broadcast <- env:
	default:
		log.Warn().Str("type", env.Type).Str("consultation_id", env.ConsultationID).Msg("Broadcast queue full, dropping event")
	}
}

// Clients returns the number of subscribers of a consultation.
func (h *Hub) Clients(consultationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[consultationID])
}

// ServeWS upgrades the request and subscribes it to consultationID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, consultationID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{conn: conn, consultationID: consultationID, send: make(chan Envelope, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Msg("Websocket write failed")
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

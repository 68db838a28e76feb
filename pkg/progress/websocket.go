// Package progress provides a default implementation of the render
// driver's progress-reporting collaborator: a websocket broadcaster that
// pushes tile- and pass-completion events to connected clients.
package progress

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tanager-render/sa-bdpt/pkg/core"
)

// TileEvent is broadcast whenever the render driver finishes a tile.
type TileEvent struct {
	Pass      int           `json:"pass"`
	TileIndex int           `json:"tileIndex"`
	Bounds    core.Bounds2i `json:"bounds"`
	Elapsed   time.Duration `json:"elapsedNs"`
}

// PassEvent is broadcast whenever a full render pass (prepass or main)
// completes.
type PassEvent struct {
	Pass            int           `json:"pass"`
	SamplesPerPixel int           `json:"samplesPerPixel"`
	Elapsed         time.Duration `json:"elapsedNs"`
}

// connection wraps one subscriber's websocket with a bounded outbound
// queue, matching the send-queue-plus-ping-goroutine shape used to keep a
// slow client from blocking the broadcaster.
type connection struct {
	conn      *websocket.Conn
	sendQueue chan []byte
}

// WebSocketReporter implements the render driver's ProgressReporter
// interface by fanning TileDone/PassDone calls out to every connected
// websocket client.
type WebSocketReporter struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*connection
	nextID      int

	pingInterval time.Duration
}

// NewWebSocketReporter creates a reporter. Register its Handler on an
// HTTP mux to accept subscriber connections.
func NewWebSocketReporter() *WebSocketReporter {
	return &WebSocketReporter{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connections:  make(map[string]*connection),
		pingInterval: 30 * time.Second,
	}
}

// Handler upgrades incoming HTTP requests to websocket subscribers.
func (r *WebSocketReporter) Handler(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.nextID++
	id := strconv.Itoa(r.nextID)
	c := &connection{conn: conn, sendQueue: make(chan []byte, 100)}
	r.connections[id] = c
	r.mu.Unlock()

	go r.sender(id, c)
}

func (r *WebSocketReporter) sender(id string, c *connection) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()
	defer func() {
		r.mu.Lock()
		delete(r.connections, id)
		r.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.sendQueue:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (r *WebSocketReporter) broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.connections {
		select {
		case c.sendQueue <- data:
		default:
			// Slow subscriber: drop rather than block the render driver.
		}
	}
}

// TileDone implements render.ProgressReporter.
func (r *WebSocketReporter) TileDone(pass, tileIndex int, bounds core.Bounds2i, elapsed time.Duration) {
	r.broadcast(TileEvent{Pass: pass, TileIndex: tileIndex, Bounds: bounds, Elapsed: elapsed})
}

// PassDone implements render.ProgressReporter.
func (r *WebSocketReporter) PassDone(pass, samplesPerPixel int, elapsed time.Duration) {
	r.broadcast(PassEvent{Pass: pass, SamplesPerPixel: samplesPerPixel, Elapsed: elapsed})
}

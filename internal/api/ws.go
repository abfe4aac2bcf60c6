package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/event"
	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/model"
	"github.com/snarg/f12mqtt/internal/pipeline"
	"github.com/snarg/f12mqtt/internal/playback"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPingInterval   = 30 * time.Second
	wsSendBufferSize = 64
)

// wsEnvelope frames every outbound WebSocket message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans pipeline updates and playback transitions out to WebSocket
// clients. A slow client's buffer fills and its newest messages are dropped;
// it never backpressures the pipeline.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log.With().Str("component", "ws-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and pumps messages until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	client := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WSClients.Set(float64(count))
	h.log.Debug().Int("clients", count).Msg("ws client connected")

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(4096)
	for {
		// Inbound messages are ignored; control goes through the REST surface.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.drop(c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()
	metrics.WSClients.Set(float64(count))
	h.log.Debug().Int("clients", count).Msg("ws client disconnected")
}

// Broadcast marshals one envelope and queues it on every client, dropping
// the message for clients whose buffer is full.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(wsEnvelope{Type: msgType, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("ws payload marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client; skip this message rather than block the pipeline.
		}
	}
}

// ── playback.Listener ────────────────────────────────────────────────

func (h *Hub) OnLoaded(st playback.State) {
	h.Broadcast("loaded", st)
}

func (h *Hub) OnStateChange(st playback.State) {
	h.Broadcast("playback", st)
}

func (h *Hub) OnUpdate(u pipeline.Update, st playback.State) {
	h.Broadcast("update", map[string]any{
		"snapshot": u.Snapshot,
		"events":   u.Events,
		"playback": st,
	})
}

func (h *Hub) OnEvent(e event.Event) {
	h.Broadcast("event", map[string]any{"eventType": e.Type(), "event": e})
}

func (h *Hub) OnSeek(snap *model.Snapshot, st playback.State) {
	h.Broadcast("seek", map[string]any{"snapshot": snap, "playback": st})
}

func (h *Hub) OnFinished() {
	h.Broadcast("finished", nil)
}

// LiveObserver adapts the hub to the live pipeline's observer interface.
func (h *Hub) LiveObserver() pipeline.Observer {
	return liveObserver{h}
}

type liveObserver struct{ h *Hub }

func (o liveObserver) OnEvent(e event.Event) {
	o.h.OnEvent(e)
}

func (o liveObserver) OnUpdate(u pipeline.Update) {
	o.h.Broadcast("update", map[string]any{
		"snapshot": u.Snapshot,
		"events":   u.Events,
	})
}

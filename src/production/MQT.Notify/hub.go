package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Bitmask"
	logger "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.pinmask_server/src/production/MQT.Models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var errHubStopped = errors.New("stream hub stopped")

// Hub keeps the open state streams and pushes each change to the streams
// watching that device.
type Hub struct {
	clients    map[*streamClient]bool
	broadcast  chan mqtmodels.StateChange
	register   chan *streamClient
	unregister chan *streamClient
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

// streamClient is a middleman between one websocket connection and the hub.
// Until primed with the current state it only remembers the newest change;
// afterwards it forwards changes newer than the last version it sent.
type streamClient struct {
	hub      *Hub
	deviceID string
	conn     *websocket.Conn
	send     chan []byte

	mu          sync.Mutex
	primed      bool
	closed      bool
	lastVersion int64
	pending     *mqtmodels.StateChange
}

// StateLoader reads a device's current state
type StateLoader func(ctx context.Context) (*mqtmodels.DeviceState, error)

// deliver queues change for the client. It reports false when the send
// buffer is full and the client should be dropped.
func (c *streamClient) deliver(change mqtmodels.StateChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if !c.primed {
		if c.pending == nil || change.Version > c.pending.Version {
			c.pending = &change
		}
		return true
	}
	if change.Version <= c.lastVersion {
		return true
	}
	select {
	case c.send <- bitmask.Encode(change.Bitmask):
		c.lastVersion = change.Version
		return true
	default:
		return false
	}
}

// prime queues the initial frame, then any newer change seen while the
// state was being loaded.
func (c *streamClient) prime(state *mqtmodels.DeviceState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.primed = true
	c.lastVersion = state.Version
	c.send <- bitmask.Encode(state.Bitmask)
	if c.pending != nil && c.pending.Version > c.lastVersion {
		c.send <- bitmask.Encode(c.pending.Bitmask)
		c.lastVersion = c.pending.Version
	}
	c.pending = nil
}

// close is only called from the hub's Run goroutine
func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan mqtmodels.StateChange, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log.WithComponent("stream"),
	}
}

// Run serves register, unregister and broadcast requests until ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
		case change := <-h.broadcast:
			for client := range h.clients {
				if client.deviceID != change.DeviceID {
					continue
				}
				if !client.deliver(change) {
					delete(h.clients, client)
					client.close()
				}
			}
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish never blocks; when the hub is saturated the change is dropped
func (h *Hub) Publish(_ context.Context, change mqtmodels.StateChange) error {
	select {
	case h.broadcast <- change:
	default:
		h.logger.Warn("stream hub busy, dropping state change")
	}
	return nil
}

// ServeWS upgrades the request and streams 2-byte frames for deviceID. The
// client is registered before load runs, so the first frame is the state
// load returns and no change committed after it is missed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, deviceID string, load StateLoader) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &streamClient{hub: h, deviceID: deviceID, conn: conn, send: make(chan []byte, 16)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return errHubStopped
	}

	state, err := load(r.Context())
	if err != nil {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "state unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return err
	}
	client.prime(state)

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump only exists to process control frames and notice disconnects
func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Logger.Debug().Err(err).Str("device_id", c.deviceID).Msg("websocket read error")
			}
			break
		}
	}
}

// writePump sends one binary message per frame; frames are never merged
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
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

// originChecker allows same-host requests, requests without an Origin
// header (devices) and the configured CORS origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

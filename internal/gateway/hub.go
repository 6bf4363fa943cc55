package gateway

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Envelope types pushed to WebSocket clients.
const (
	TypeRecord          = "record"
	TypeRaw             = "raw"
	TypeDecodeError     = "decode_error"
	TypeCommand         = "command"
	TypeSimulation      = "simulation"
	TypeState           = "state"
	TypeCommandRejected = "command_rejected"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 256
	maxInboundSize = 4096
)

// Envelope wraps every pushed message.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// inbound is what a client may send.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rawPayload struct {
	Line string `json:"line"`
}

type decodeErrorPayload struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

type commandPayload struct {
	domain.CommandResult
	Error string `json:"error,omitempty"`
}

type statePayload struct {
	Previous domain.State `json:"previous"`
	Current  domain.State `json:"current"`
	Reason   string       `json:"reason,omitempty"`
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans station events out to connected WebSocket clients. It
// implements ports.EventSink; a client whose buffer is full misses the
// message instead of stalling the station.
type Hub struct {
	ports.NopSink

	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  log.Logger
	now     func() time.Time

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub(logger log.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) envelope(kind string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      kind,
		ID:        strconv.FormatUint(h.nextID.Inc(), 10),
		Timestamp: h.now().UnixMilli(),
		Payload:   data,
	})
}

// Broadcast sends payload to every client as an envelope of type kind.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	msg, err := h.envelope(kind, payload)
	if err != nil {
		h.logger.Error("encode envelope", log.String("type", kind), log.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Inc()
		}
	}
}

func (h *Hub) unicast(c *client, kind string, payload interface{}) {
	msg, err := h.envelope(kind, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.dropped.Inc()
	}
}

func (h *Hub) OnRecord(rec domain.Record) {
	h.Broadcast(TypeRecord, rec)
}

func (h *Hub) OnRawLine(line string) {
	h.Broadcast(TypeRaw, rawPayload{Line: line})
}

func (h *Hub) OnDecodeFailure(line string, err error) {
	h.Broadcast(TypeDecodeError, decodeErrorPayload{Line: line, Error: err.Error()})
}

func (h *Hub) OnCommand(res domain.CommandResult) {
	p := commandPayload{CommandResult: res}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	h.Broadcast(TypeCommand, p)
}

func (h *Hub) OnSimulationStatus(status domain.SimulationStatus) {
	h.Broadcast(TypeSimulation, status)
}

func (h *Hub) OnStateChange(previous, current domain.State, reason string) {
	h.Broadcast(TypeState, statePayload{Previous: previous, Current: current, Reason: reason})
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", log.String("remote", conn.RemoteAddr().String()), log.Int("clients", n))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump handles inbound messages until the connection fails.
func (h *Hub) readPump(c *client, enqueue func(string) error) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeCommand {
			continue
		}
		if err := enqueue(msg.Text); err != nil {
			h.unicast(c, TypeCommandRejected, commandPayload{
				CommandResult: domain.CommandResult{
					Command: domain.Command{Text: msg.Text, Source: domain.SourceOperator},
					Status:  domain.CommandDropped,
				},
				Error: err.Error(),
			})
		}
	}
}

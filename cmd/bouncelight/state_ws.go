package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bouncelight/internal/journal"
	"bouncelight/internal/motion"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
//
//   state_init    sent once on connect, from a tick loop snapshot
//   frame         latest tick, coalesced to one per wsFrameCoalesceWindow
//   mode_changed  every transition, in order, never coalesced
//
// Slow clients are disconnected when their send buffer fills.
//
// ============================================================================

// wsFrameData is the JSON `data` payload for "state_init" and "frame".
type wsFrameData struct {
	Mode       motion.Mode `json:"mode"`
	Position   float64     `json:"position"`
	Speed      float64     `json:"speed"`
	Terminal   bool        `json:"terminal"`
	AtMS       uint32      `json:"at_ms"`
	Pixels     []string    `json:"pixels"`
	Lit        []int       `json:"lit"`
	Brightness uint8       `json:"brightness"`
}

// wsModeChangedData is the JSON `data` payload for "mode_changed".
type wsModeChangedData struct {
	From     motion.Mode `json:"from"`
	To       motion.Mode `json:"to"`
	AtMS     uint32      `json:"at_ms"`
	Position float64     `json:"position"`
	Speed    float64     `json:"speed"`
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func newFrameData(snap Snapshot) wsFrameData {
	pixels := make([]string, len(snap.Frame.Pixels))
	for i, p := range snap.Frame.Pixels {
		pixels[i] = p.String()
	}
	return wsFrameData{
		Mode:       snap.State.Mode,
		Position:   snap.State.Position,
		Speed:      snap.State.Speed,
		Terminal:   snap.State.Terminal,
		AtMS:       uint32(snap.State.LastTime),
		Pixels:     pixels,
		Lit:        snap.Frame.Lit(),
		Brightness: snap.Frame.Brightness,
	}
}

func newModeChangedData(tr journal.Transition) wsModeChangedData {
	return wsModeChangedData{
		From:     tr.From,
		To:       tr.To,
		AtMS:     uint32(tr.At),
		Position: tr.Position,
		Speed:    tr.Speed,
	}
}

// marshalEnvelope encodes one message stamped with ts.
func marshalEnvelope(typ string, ts time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: raw})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount reports the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send makes writePump exit.
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes enqueues a pre-serialized frame. It drops the message
// instead of blocking when the hub queue is full.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsFrameCoalesceWindow bounds how often "frame" messages go out. The tick
// loop produces far more snapshots than any client wants.
const wsFrameCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a websocket close code and text when present.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue onto the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound messages; it exists to process control frames
// and notice disconnects.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshot requests for state_init. Nil disables state_init.
	requests chan<- snapshotRequest
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the state websocket components. Register the handler
// on a mux, then start Hub().Run and RunBroadcaster.
func NewServer(logger *slog.Logger, requests chan<- snapshotRequest, cfg ServerConfig) *Server {
	return &Server{
		logger:   logger,
		hub:      NewHub(logger, cfg.Hub),
		requests: requests,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the websocket handler on mux at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades, queues state_init, then registers the client.
// state_init is placed in the send buffer before the hub can broadcast to
// the client, so it is always the first message.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	if msg, ok := s.stateInit(r.Context()); ok {
		client.send <- msg
	}
	s.hub.register <- client

	// The pumps outlive the handler; r.Context() ends when we return.
	go client.writePump()
	go client.readPump()
}

// stateInit asks the tick loop for its current snapshot and encodes it.
func (s *Server) stateInit(ctx context.Context) ([]byte, bool) {
	if s.requests == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	reply := make(chan Snapshot, 1)
	select {
	case <-ctx.Done():
		s.logger.Warn("ws snapshot request failed", "error", ctx.Err())
		return nil, false
	case s.requests <- snapshotRequest{Reply: reply}:
	}

	var snap Snapshot
	select {
	case <-ctx.Done():
		s.logger.Warn("ws snapshot request failed", "error", ctx.Err())
		return nil, false
	case snap = <-reply:
	}

	msg, err := marshalEnvelope("state_init", time.Now(), newFrameData(snap))
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return nil, false
	}
	return msg, true
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster fans tick loop output out to hub clients. Snapshots are
// rate-limited latest-wins; transitions go out immediately, after any
// pending frame.
//
// The tick loop publishes a transition before the snapshot of the same
// tick, so queued transitions are drained before a snapshot is accepted.
// A frame therefore never reaches clients ahead of the mode_changed that
// preceded it.
func RunBroadcaster(ctx context.Context, hub *Hub, snapshots <-chan Snapshot, transitions <-chan journal.Transition, logger *slog.Logger) {
	if hub == nil {
		return
	}

	var pending *Snapshot
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		if pending == nil {
			return
		}
		msg, err := marshalEnvelope("frame", time.Now(), newFrameData(*pending))
		pending = nil
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", "frame")
			return
		}
		hub.BroadcastBytes(msg)
	}

	sendTransition := func(tr journal.Transition) {
		flush()
		msg, err := marshalEnvelope("mode_changed", tr.RecordedAt, newModeChangedData(tr))
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", "mode_changed")
			return
		}
		hub.BroadcastBytes(msg)
	}

	drainTransitions := func() {
		for transitions != nil {
			select {
			case tr, ok := <-transitions:
				if !ok {
					transitions = nil
					return
				}
				sendTransition(tr)
			default:
				return
			}
		}
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerCh:
			flush()
			stopTimer()

		case snap, ok := <-snapshots:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}
			drainTransitions()
			pending = &snap
			// Periodic, not debounce: the timer is never pushed back.
			if timer == nil {
				timer = time.NewTimer(wsFrameCoalesceWindow)
				timerCh = timer.C
			}

		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			sendTransition(tr)
		}
	}
}

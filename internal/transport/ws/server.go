package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/cwrk-planet/meet-relay/internal/domain"
)

// Relay is the engine surface the socket layer drives.
type Relay interface {
	Connect(id string, sink domain.Sink)
	JoinRoom(id, room, displayName string)
	Signal(from, target, payload string)
	Chat(from, body, displayName string)
	MuteAll(from, room string)
	EndMeeting(from, room string)
	Disconnect(id string)
}

type Options struct {
	AllowedOrigins  []string
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	// RateLimit is inbound frames per second per connection, 0 disables.
	RateLimit float64
	RateBurst int
}

func (o *Options) setDefaults() {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.RateLimit > 0 && o.RateBurst <= 0 {
		o.RateBurst = int(o.RateLimit)
		if o.RateBurst < 1 {
			o.RateBurst = 1
		}
	}
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	relay    Relay
	opts     Options
	newID    func() string
}

func NewServer(hub *Hub, relay Relay, opts Options) *Server {
	opts.setDefaults()
	oc := newOriginChecker(opts.AllowedOrigins)

	return &Server{
		hub:   hub,
		relay: relay,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     oc.check,
		},
		newID: uuid.NewString,
	}
}

// WS endpoint: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		slog.Warn("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newWsConn(conn, s.newID(), s.opts.SendBuffer)
	if !s.hub.Add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
		return
	}
	defer s.hub.Remove(c)

	_ = c.Send(WelcomePayload{ID: c.id})
	s.relay.Connect(c.id, c)
	slog.Info("ws connected", "conn", c.id, "remote", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(c)

	s.relay.Disconnect(c.id)
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("ws close failed", "conn", c.id, "err", err)
	}
	slog.Info("ws disconnected", "conn", c.id)
}

func (s *Server) readLoop(c *wsConn) {
	var limiter *rate.Limiter
	if s.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	}

	pongWait := 2 * s.opts.PingInterval
	c.conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		if limiter != nil && !limiter.Allow() {
			slog.Debug("ws rate limited, frame dropped", "conn", c.id)
			continue
		}
		s.dispatch(c.id, data)
	}
}

func (s *Server) dispatch(id string, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ws bad frame", "conn", id, "err", err)
		return
	}

	switch msg.Type {
	case TypeJoinRoom:
		var p JoinRoomPayload
		if decode(id, msg, &p) {
			s.relay.JoinRoom(id, p.Room, p.DisplayName)
		}
	case TypeSignal:
		var p SignalPayload
		if decode(id, msg, &p) {
			s.relay.Signal(id, p.TargetID, p.Payload)
		}
	case TypeChatMessage:
		var p ChatPayload
		if decode(id, msg, &p) {
			s.relay.Chat(id, p.Body, p.DisplayName)
		}
	case TypeHostMuteAll:
		var p HostActionPayload
		if decode(id, msg, &p) {
			s.relay.MuteAll(id, p.Room)
		}
	case TypeHostEndMeeting:
		var p HostActionPayload
		if decode(id, msg, &p) {
			s.relay.EndMeeting(id, p.Room)
		}
	default:
		slog.Debug("ws unknown message type", "conn", id, "type", msg.Type)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// --- helpers ---

func decode(id string, msg inboundMessage, dst any) bool {
	if len(msg.Payload) == 0 {
		slog.Debug("ws empty payload", "conn", id, "type", msg.Type)
		return false
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		slog.Debug("ws bad payload", "conn", id, "type", msg.Type, "err", err)
		return false
	}
	return true
}

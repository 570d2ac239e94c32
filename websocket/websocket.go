package websocket

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cameroncuttingedge/chess_relay/events"
	"github.com/cameroncuttingedge/chess_relay/metrics"
	"github.com/cameroncuttingedge/chess_relay/utils"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrSendQueueFull     = errors.New("send queue full")
)

// Dispatcher receives the lifecycle and inbound events of every connection.
// Calls for one connection are sequential; calls for different connections
// run concurrently.
type Dispatcher interface {
	OnConnect(connID string)
	OnMessage(connID string, msg events.Message)
	OnDisconnect(connID string)
}

type Config struct {
	AllowedOrigins []string
	ReadLimit      int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendBuffer     int
}

type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub owns the live websocket connections and implements registry.Notifier.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	conns    sync.Map
}

func NewHub(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}

	h := &Hub{cfg: cfg}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("Rejected websocket origin")
	return false
}

// Handler upgrades requests and feeds every connection's frames to d.
func (h *Hub) Handler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("WebSocket upgrade error")
			return
		}
		h.serve(ws, d)
	})
}

func (h *Hub) serve(ws *websocket.Conn, d Dispatcher) {
	c := &connection{
		id:   utils.GenerateUUIDString(),
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	h.conns.Store(c.id, c)
	metrics.ActiveConnections.Inc()
	log.Info().Str("connID", c.id).Str("remote", ws.RemoteAddr().String()).Msg("WebSocket connection established")

	go h.writePump(c)
	d.OnConnect(c.id)

	h.readPump(c, d)

	h.conns.Delete(c.id)
	close(c.done)
	ws.Close()
	metrics.ActiveConnections.Dec()
	d.OnDisconnect(c.id)
	log.Info().Str("connID", c.id).Msg("WebSocket connection closed")
}

func (h *Hub) readPump(c *connection, d Dispatcher) {
	if h.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(h.cfg.ReadLimit)
	}
	c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connID", c.id).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		msg, err := events.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("connID", c.id).Msg("Dropping undecodable frame")
			h.Send(c.id, events.Error{Reason: err.Error()})
			continue
		}
		d.OnMessage(c.id, msg)
	}
}

func (h *Hub) writePump(c *connection) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("connID", c.id).Msg("Failed to write message")
				c.ws.Close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("connID", c.id).Msg("Failed to send ping")
				c.ws.Close()
				return
			}
		}
	}
}

// Send queues msg for connID without blocking. A full queue drops the message.
func (h *Hub) Send(connID string, msg events.Message) error {
	v, ok := h.conns.Load(connID)
	if !ok {
		metrics.DroppedMessages.Inc()
		return ErrUnknownConnection
	}
	c := v.(*connection)

	data, err := events.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		metrics.DroppedMessages.Inc()
		return ErrUnknownConnection
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		metrics.DroppedMessages.Inc()
		log.Warn().Str("connID", connID).Str("type", string(msg.Type())).Msg("Send queue full, dropping message")
		return ErrSendQueueFull
	}
}

// Len counts open connections.
func (h *Hub) Len() int {
	n := 0
	h.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll closes every connection; their read loops then run the normal
// disconnect path.
func (h *Hub) CloseAll(reason string) {
	h.conns.Range(func(key, value any) bool {
		c := value.(*connection)
		log.Info().Str("connID", c.id).Str("reason", reason).Msg("Closing connection")
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
			time.Now().Add(h.cfg.WriteTimeout),
		)
		c.ws.Close()
		return true
	})
}

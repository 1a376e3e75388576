package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/util"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/session"
	"github.com/parley-ai/parley/wire"
)

const (
	maxPayloadBytes = 1 << 20
	sendBuffer      = 64
	pingInterval    = 15 * time.Second
	pongWait        = 45 * time.Second
	writeWait       = 10 * time.Second
)

// Server upgrades HTTP requests to websocket connections and bridges them
// into the session registry. One goroutine pair (read/write) runs per
// connection.
type Server struct {
	registry *session.Registry
	logger   logging.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a websocket server over the given registry.
func NewServer(registry *session.Registry, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &Server{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP implements http.Handler. The user identity comes from the
// X-User-ID header (or "user" query parameter); each connection gets a fresh
// one-time token so two tabs of the same user are distinct sessions.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &connection{
		server: s,
		conn:   conn,
		sess:   core.NewSession(userID, util.NewID()),
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	c.run()
}

// connection is one live websocket client. Its Emitter side serializes
// outbound frames onto the send channel; the write loop owns the socket for
// writes.
type connection struct {
	server *Server
	conn   *websocket.Conn
	sess   core.Session
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func (c *connection) run() {
	defer c.close()

	c.server.registry.RegisterSystemEmitter(c.sess, c)
	c.server.logger.Info("ws.connected", "session", c.sess.String())

	go c.writeLoop()
	c.readLoop()
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.server.registry.Disconnect(c.sess)
		// The send channel stays open; late emits from a finishing turn hit
		// the cancelled context instead of a closed channel.
		c.cancel()
		_ = c.conn.Close()
		c.server.logger.Info("ws.disconnected", "session", c.sess.String())
	})
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := c.server.registry.HandleMessage(c.ctx, c.sess, data, c); err != nil {
			// Protocol-level rejection; the session itself stays up.
			c.server.logger.Warn("ws.message.rejected",
				"session", c.sess.String(), "error", err)
			_ = c.EmitError(err)
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Emit implements core.Emitter. Frames are JSON-encoded and queued for the
// write loop; a full queue drops the connection rather than blocking a turn.
func (c *connection) Emit(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.server.logger.Warn("ws.send.overflow", "session", c.sess.String())
		c.close()
		return c.ctx.Err()
	}
}

// EmitError implements core.Emitter.
func (c *connection) EmitError(err error) error {
	return c.Emit(wire.NewError(err.Error()))
}

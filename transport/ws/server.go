// Package ws serves the surface protocol over WebSocket on a gin engine,
// next to the health and Prometheus endpoints. Each text frame carries one
// JSON record in either direction.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yitech/candlechart/protocol"
	"github.com/yitech/candlechart/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// setData payloads can be large.
	maxMessageSize = 8 << 20
)

// Server owns the HTTP routes.
type Server struct {
	sub      transport.Submitter
	hub      *transport.Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// NewServer builds the engine: GET /ws, GET /health and GET /metrics.
func NewServer(sub transport.Submitter, hub *transport.Hub, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		sub: sub,
		hub: hub,
		log: logger.With("transport", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The surface is a local tool; any origin may drive it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": hub.Len()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/ws", s.serveWS)
	s.engine = r
	return s
}

// Handler returns the HTTP handler to mount on a listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	session := s.hub.Join()
	cl := &client{
		conn:    conn,
		session: session,
		direct:  make(chan protocol.Record, 8),
		log:     s.log.With("session", session.ID.String()),
	}
	cl.log.Info("ws host connected", "remote", c.Request.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go cl.writePump(ctx)
	cl.readPump(ctx, s.sub)
	cancel()
	s.hub.Leave(cl.session)
}

// client is one WebSocket peer.
type client struct {
	conn    *websocket.Conn
	session *transport.Session
	// direct carries replies that concern only this peer, such as a frame
	// that was not JSON.
	direct chan protocol.Record
	log    *slog.Logger
}

func (c *client) readPump(ctx context.Context, sub transport.Submitter) {
	defer func() {
		c.conn.Close()
		c.log.Info("ws host disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("ws read failed", "error", err)
			}
			return
		}
		var rec protocol.Record
		if err := json.Unmarshal(msg, &rec); err != nil || rec == nil {
			reply := protocol.EncodeEvent(protocol.Error{Message: "protocol: frame is not a JSON object"})
			select {
			case c.direct <- reply:
			default:
			}
			continue
		}
		if err := sub.Submit(ctx, rec); err != nil {
			c.log.Warn("surface rejected submission", "error", err)
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var rec protocol.Record
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case r, ok := <-c.session.Events:
			if !ok {
				return
			}
			rec = r
		case rec = <-c.direct:
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(rec); err != nil {
			return
		}
	}
}

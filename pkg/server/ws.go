package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voclink/voclink/pkg/protocol"
)

// wsConn adapts a WebSocket connection to messageConn. Each text frame
// carries exactly one JSON envelope; the WebSocket's own framing
// replaces the length prefix used on TCP.
type wsConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (c *wsConn) ReadMessage() (*protocol.Message, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("ws: read: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg := &protocol.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrBadFrame, err)
		}
		return msg, nil
	}
}

func (c *wsConn) WriteMessage(msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ws: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// StartWebSocket serves the optional WebSocket gateway. Connections
// upgraded at /ws run through the same handler as TCP clients.
func (s *Server) StartWebSocket() error {
	if s.cfg.WebSocket.Addr == "" {
		return nil
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// The protocol carries its own authentication; origin gating
		// is left to a fronting proxy.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if max := s.cfg.Security.MaxConnections; max > 0 && s.sessions.Count() >= max {
			http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.handleConn(&wsConn{conn: conn})
	})

	ln, err := net.Listen("tcp", s.cfg.WebSocket.Addr)
	if err != nil {
		return err
	}
	s.wsLn = ln
	slog.Info("websocket gateway listening", "addr", ln.Addr())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			slog.Error("websocket server failed", "err", err)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
	return nil
}

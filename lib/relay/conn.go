// Copyright 2026 The NestWatch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single WebSocket frame write. A peer that
// cannot drain a frame in this long is closed rather than allowed to
// back up the writer goroutine.
const writeTimeout = 10 * time.Second

// conn is one live WebSocket connection's registry peer. Outbound
// payloads go through a bounded queue drained by a dedicated writer
// goroutine; Send never blocks and reports drops instead.
type conn struct {
	ws     *websocket.Conn
	remote string
	sendCh chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	// lastActive is the UnixNano of the most recent inbound message,
	// read by the idle watchdog.
	lastActive atomic.Int64
}

// Send enqueues a payload for delivery. Returns false when the
// connection is closing or its queue is full; the payload is dropped
// either way.
func (c *conn) Send(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.sendCh <- payload:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// Remote identifies the connection for logging.
func (c *conn) Remote() string { return c.remote }

// close marks the connection as closing. Idempotent; safe from any
// goroutine.
func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// writeLoop drains the send queue onto the wire. A failed or timed-out
// write closes the connection; the reader then unwinds and unregisters
// it.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case payload := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

// HandleWS upgrades the request to a WebSocket connection and serves
// it until the peer disconnects, the request context is canceled, or
// the idle timeout fires. Blocks for the lifetime of the connection;
// the HTTP server runs it on the request's goroutine.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Children and consoles connect from arbitrary origins; the
		// protocol has no origin-based trust.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &conn{
		ws:     ws,
		remote: r.RemoteAddr,
		sendCh: make(chan []byte, s.sendBuffer),
		closed: make(chan struct{}),
	}
	c.lastActive.Store(s.clock.Now().UnixNano())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.registry.Register(c)
	defer s.registry.Unregister(c)
	defer c.close()
	defer ws.Close(websocket.StatusNormalClosure, "")

	go c.writeLoop(ctx)
	if s.idleTimeout > 0 {
		go s.watchIdle(ctx, c)
	}

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				s.logger.Info("connection closed", "remote", c.remote)
			} else {
				s.logger.Info("connection closed", "remote", c.remote, "reason", err)
			}
			return
		}
		if typ != websocket.MessageText {
			// The protocol is JSON text end to end; binary media rides
			// inside it base64-encoded.
			s.logger.Warn("dropping non-text frame", "remote", c.remote)
			continue
		}
		c.lastActive.Store(s.clock.Now().UnixNano())
		s.route(c, data)
	}
}

// watchIdle closes the connection once no inbound message has arrived
// for the configured idle timeout. Runs on the injected clock so tests
// can drive it deterministically.
func (s *Server) watchIdle(ctx context.Context, c *conn) {
	ticker := s.clock.NewTicker(s.idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, c.lastActive.Load()))
			if idle < s.idleTimeout {
				continue
			}
			s.logger.Info("closing idle connection", "remote", c.remote, "idle", idle)
			c.close()
			c.ws.Close(websocket.StatusGoingAway, "idle timeout")
			return
		}
	}
}

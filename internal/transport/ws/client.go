// Package ws exposes the websocket transport that carries personalized
// alarm updates to browser sessions.
package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Clients only listen, so
	// inbound frames are control traffic.
	maxMessageSize = 512
)

var (
	errClosed     = errors.New("ws: connection closed")
	errBufferFull = errors.New("ws: send buffer full")
)

// Client is one websocket session bound to an authenticated user. It
// satisfies the registry connection interface.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	logger *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id, userID string, conn *websocket.Conn, buffer int, logger *log.Logger) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated principal.
func (c *Client) UserID() string { return c.userID }

// Send enqueues payload for the write pump without blocking. A full
// buffer means the peer stopped draining; the caller counts the error
// as a failed delivery and moves on.
func (c *Client) Send(_ context.Context, payload []byte) error {
	if c == nil {
		return errClosed
	}
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return errClosed
	default:
		return errBufferFull
	}
}

// close marks the session finished. The send channel is never closed
// so concurrent Send calls cannot panic; pumps watch the closed signal.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// writePump drains the send queue onto the wire and keeps the peer
// alive with pings. One update per websocket message; payloads are
// self-contained JSON documents.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.closed:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump consumes control traffic until the peer goes away, then
// runs onExit exactly once. Updates flow one way; inbound data frames
// are discarded.
func (c *Client) readPump(onExit func()) {
	defer func() {
		c.close()
		c.conn.Close()
		if onExit != nil {
			onExit()
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Printf("ws: read error conn=%s: %v", c.id, err)
			}
			return
		}
	}
}

package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket connects to bridges that expose the device byte stream over a
// websocket endpoint (binary messages carry raw transport bytes). Used by
// bridge firmwares that multiplex the serial link behind an HTTP server.
type WebSocket struct {
	HandshakeTimeout time.Duration
}

// NewWebSocket creates a websocket transport with default settings.
func NewWebSocket() *WebSocket {
	return &WebSocket{HandshakeTimeout: DefaultDialTimeout}
}

// Open dials the websocket endpoint. The address must be a ws:// or wss://
// URL; discovery is not supported for websocket bridges.
func (t *WebSocket) Open(ctx context.Context, address string) (Conn, error) {
	if address == "" {
		return nil, ErrNoAddress
	}
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("invalid websocket address %q", address)
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a websocket connection to the byte-stream Conn contract.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.pending = data
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

package transport

import (
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn, which exchanges discrete binary
// messages, to the net.Conn byte-stream interface the core's sender and
// receiver loops expect, buffering the remainder of a message across
// reads (grounded in the same binary-subprotocol approach other MQTT
// websocket adapters in the ecosystem use).
type wsConn struct {
	*websocket.Conn
	readBuf []byte
}

func dialWebsocket(uri *url.URL, opts Options) (net.Conn, error) {
	dialer := &websocket.Dialer{
		Subprotocols:     []string{"mqtt"},
		HandshakeTimeout: opts.Timeout,
		TLSClientConfig:  opts.TLSConfig,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 30 * time.Second
	}
	conn, _, err := dialer.Dial(uri.String(), opts.HTTPHeader)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(0)
	return &wsConn{Conn: conn}, nil
}

func (c *wsConn) Read(b []byte) (int, error) {
	for len(c.readBuf) == 0 {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.readBuf = msg
	}
	n := copy(b, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

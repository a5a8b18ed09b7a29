// Package wsfront implements the Connection Front-End (C10) and the HTTP
// front door (C13): WebSocket upgrade handling for glasses and TPA
// connections, and the health/readiness/metrics HTTP surface.
package wsfront

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds every outbound frame write so a stalled peer cannot
// block the write pump indefinitely.
const writeTimeout = 10 * time.Second

// conn wraps a gorilla/websocket connection with a mutex-guarded write
// path, so concurrent writers — broadcast fan-out and heartbeat pings —
// never interleave frames on the wire.
type conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

// SendJSON marshals v and writes it as a text frame.
func (c *conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeMessage(websocket.TextMessage, data)
}

// SendBinary writes data as a binary frame, used by the audio fast path.
func (c *conn) SendBinary(data []byte) error {
	return c.writeMessage(websocket.BinaryMessage, data)
}

// SendPing writes a timestamped ping control frame.
func (c *conn) SendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	payload := []byte(time.Now().Format(time.RFC3339Nano))
	return c.ws.WriteControl(websocket.PingMessage, payload, time.Now().Add(writeTimeout))
}

// Close sends a close frame carrying code and reason, then closes the
// underlying connection. Safe to call more than once.
func (c *conn) Close(code int, reason string) error {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	closeMsg := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *conn) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// conn wraps a WebSocket with a write lock. gorilla/websocket permits
// only one concurrent writer and the hub writes from many goroutines
// (broadcasts, refreshes, routed responses).
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

// writeRaw sends one text frame.
func (c *conn) writeRaw(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// closeWith sends a close frame with the given code and closes the
// socket.
func (c *conn) closeWith(code int, reason string) {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.writeMu.Unlock()
	_ = c.ws.Close()
}

func (c *conn) close() {
	_ = c.ws.Close()
}

// providerConn is a registered provider bridge connection.
type providerConn struct {
	*conn
	name string
	// initialized flips once the provider answers initialize with a
	// result. Guarded by Hub.mu; tools are only requested from and
	// accepted for initialized providers.
	initialized bool
}

package bridge

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport adapts a gorilla websocket connection to the Transport
// interface. A single websocket frame carries a single protocol message, so
// send order is preserved end to end.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closeMu sync.Once
}

// NewWebSocketTransport wraps an upgraded websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send implements Transport. gorilla permits one concurrent writer, hence
// the mutex.
func (t *WebSocketTransport) Send(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return ErrTransportClosed
	}
	return nil
}

// Receive implements Transport.
func (t *WebSocketTransport) Receive() ([]byte, error) {
	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		return nil, ErrTransportClosed
	}
	return payload, nil
}

// Close implements Transport.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeMu.Do(func() { err = t.conn.Close() })
	return err
}

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rockerboo/lsp-proxy/internal/logger"
)

// WebSocketTransport speaks the wire protocol over a WebSocket connection,
// framing each Content-Length-delimited message into one binary frame.
type WebSocketTransport struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	rwc       *wsReadWriter
	connected bool
}

func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url}
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	netDialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := netDialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
		HandshakeTimeout: 45 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, http.Header{})
	if err != nil {
		return fmt.Errorf("websocket transport %s: dial: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.rwc = newWSReadWriter(conn)
	t.connected = true
	t.mu.Unlock()

	logger.Infof("websocket transport %s: connection established", t.url)
	return nil
}

func (t *WebSocketTransport) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rwc
}

func (t *WebSocketTransport) Writer() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rwc
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *WebSocketTransport) AtEndOfInput() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rwc == nil {
		return false
	}
	return t.rwc.atEOF()
}

func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.connected = false
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Wait closes the connection and marks the transport disconnected; there
// is no separate process to reap.
func (t *WebSocketTransport) Wait() error {
	t.mu.Lock()
	conn := t.conn
	t.connected = false
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (t *WebSocketTransport) Name() string {
	return t.url
}

// wsReadWriter adapts gorilla/websocket's frame-oriented Conn into the
// plain io.Reader/io.Writer pair wire.Framer wants, reassembling partial
// reads across frame boundaries.
type wsReadWriter struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	readBuf []byte
	eof     bool
}

func newWSReadWriter(conn *websocket.Conn) *wsReadWriter {
	return &wsReadWriter{conn: conn}
}

func (w *wsReadWriter) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.readBuf) > 0 {
		n := copy(p, w.readBuf)
		w.readBuf = w.readBuf[n:]
		return n, nil
	}

	_, msg, err := w.conn.ReadMessage()
	if err != nil {
		w.eof = true
		return 0, io.EOF
	}

	n := copy(p, msg)
	if n < len(msg) {
		w.readBuf = msg[n:]
	}
	return n, nil
}

func (w *wsReadWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsReadWriter) atEOF() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eof
}

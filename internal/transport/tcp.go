package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rockerboo/lsp-proxy/internal/logger"
)

// TCPTransport dials a language server (or a proxying daemon in front of
// one) over a plain TCP socket, with retry/backoff and keepalive.
type TCPTransport struct {
	host string
	port int

	maxAttempts int
	retryDelay  time.Duration
	dialTimeout time.Duration
	keepAlive   time.Duration

	mu        sync.Mutex
	conn      net.Conn
	reader    *eofTrackingReader
	connected bool
}

func NewTCPTransport(host string, port int) *TCPTransport {
	if host == "" {
		host = "127.0.0.1"
	}
	return &TCPTransport{
		host:        host,
		port:        port,
		maxAttempts: 5,
		retryDelay:  2 * time.Second,
		dialTimeout: 10 * time.Second,
		keepAlive:   30 * time.Second,
	}
}

func (t *TCPTransport) Connect(ctx context.Context) error {
	addr := strings.Replace(fmt.Sprintf("%s:%d", t.host, t.port), "localhost", "127.0.0.1", 1)

	var conn net.Conn
	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		dialer := net.Dialer{Timeout: t.dialTimeout}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		logger.Warnf("tcp transport %s: attempt %d/%d failed: %v", addr, attempt, t.maxAttempts, err)
		if attempt < t.maxAttempts {
			select {
			case <-time.After(t.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err != nil {
		return fmt.Errorf("tcp transport %s: failed after %d attempts: %w", addr, t.maxAttempts, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(t.keepAlive)
		_ = tcpConn.SetNoDelay(true)
	}

	t.mu.Lock()
	t.conn = conn
	t.reader = newEOFTrackingReader(conn)
	t.connected = true
	t.mu.Unlock()

	logger.Infof("tcp transport %s: connection established", addr)
	return nil
}

func (t *TCPTransport) Reader() io.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader
}

func (t *TCPTransport) Writer() io.Writer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *TCPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *TCPTransport) AtEndOfInput() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader == nil {
		return false
	}
	return t.reader.atEOF()
}

func (t *TCPTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.connected = false
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *TCPTransport) Wait() error {
	// A TCP socket has no separate process to reap: once the read side
	// has ended, closing the socket is the whole of the orderly shutdown,
	// and the transport reports itself disconnected from then on.
	t.mu.Lock()
	conn := t.conn
	t.connected = false
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (t *TCPTransport) Name() string {
	return fmt.Sprintf("tcp://%s:%d", t.host, t.port)
}

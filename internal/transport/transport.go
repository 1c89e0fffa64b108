// Package transport implements the byte-stream endpoints the router talks
// through: a child process's stdio pipes, a TCP client socket, and a
// WebSocket connection treated as a peer of the other two.
package transport

import (
	"context"
	"io"
	"sync/atomic"
)

// Transport is the narrow contract the core requires from a downstream
// server connection: read, write, half-close, is-open, name-for-logging.
// Message framing (readUntil/readExactly semantics) is layered on top by
// wire.Framer, which only needs an io.Reader/io.Writer pair.
type Transport interface {
	// Connect establishes the connection (dialing or spawning). It may
	// block and may retry internally; ctx bounds how long it tries.
	Connect(ctx context.Context) error

	// Reader and Writer expose the underlying byte stream. They are
	// valid only after a successful Connect.
	Reader() io.Reader
	Writer() io.Writer

	// IsConnected reports whether the transport believes itself open.
	IsConnected() bool

	// AtEndOfInput reports whether the read side has observed EOF.
	AtEndOfInput() bool

	// Disconnect makes a best-effort attempt to terminate the
	// connection (process kill or socket close). It does not block
	// for the process/socket to fully release; use Wait for that.
	Disconnect() error

	// Wait blocks until the transport has fully closed (process
	// exited, socket released).
	Wait() error

	// Name identifies the transport for logging.
	Name() string
}

// eofTrackingReader wraps an io.Reader and remembers whether the last
// Read returned an error, so AtEndOfInput can answer without blocking on
// another Read call.
type eofTrackingReader struct {
	r   io.Reader
	eof atomic.Bool
}

func newEOFTrackingReader(r io.Reader) *eofTrackingReader {
	return &eofTrackingReader{r: r}
}

func (e *eofTrackingReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.eof.Store(true)
	}
	return n, err
}

func (e *eofTrackingReader) atEOF() bool {
	return e.eof.Load()
}

package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrHeaderTruncated means the stream ended partway through a header
// block, after at least one byte of it had already been read. Unlike a
// clean io.EOF with no bytes read at all, whether this is worth logging
// depends on state the Framer doesn't have (whether the owning server
// already received its shutdown response, or was already disconnected),
// so callers decide that; the Framer only reports that it happened.
var ErrHeaderTruncated = errors.New("wire: stream ended mid-header")

// ErrNoMessage wraps a recoverable per-message decode failure: the
// stream is still usable, but this particular message didn't parse.
// Content-Length missing/invalid, a body shorter than declared, and
// invalid JSON all surface this way.
var ErrNoMessage = errors.New("wire: message not decoded")

// Framer reads and writes Content-Length-framed JSON-RPC messages over a
// single byte stream. It holds no locks: the dispatcher that owns it is
// responsible for not calling ReadMessage and WriteMessage concurrently
// from more than one goroutine each.
type Framer struct {
	r *bufio.Reader
	w io.Writer
}

// NewFramer wraps a byte stream. r and w may be the same value (as for a
// TCP or WebSocket connection) or different values (as for a child
// process's separate stdout/stdin pipes).
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: bufio.NewReader(r), w: w}
}

// ReadMessage reads and decodes the next message.
//
// Returns (nil, io.EOF) when the stream ended cleanly with no partial
// message in flight: the normal "nothing more to read" signal.
//
// Returns (nil, ErrHeaderTruncated) when the stream ended after some but
// not all header bytes were read; the caller decides whether this is
// worth logging based on the owning server's shutdown/connection state.
//
// Returns (nil, err) wrapping ErrNoMessage for a missing/invalid
// Content-Length header, a body shorter than declared, or a body that
// isn't valid JSON-RPC JSON. All of these are logged by the caller and
// the stream is otherwise still considered live.
func (f *Framer) ReadMessage() (*Message, error) {
	contentLength, err := f.readHeader()
	if err != nil {
		return nil, err
	}

	if contentLength < 0 {
		// Missing or unparsable Content-Length: treat the body as
		// zero-length, same as the original proxy does. The empty
		// body will almost always fail JSON decoding below.
		contentLength = 0
	}

	body := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := io.ReadFull(f.r, body); err != nil {
			return nil, fmt.Errorf("%w: body shorter than declared Content-Length: %v", ErrNoMessage, err)
		}
	}

	msg, err := decodeMessage(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMessage, err)
	}
	return msg, nil
}

// readHeader consumes header lines up to and including the blank line
// that terminates them, returning the declared Content-Length (-1 if
// none was present or it didn't parse as an integer).
func (f *Framer) readHeader() (int, error) {
	contentLength := -1
	sawAnyBytes := false

	for {
		line, err := f.r.ReadString('\n')
		if len(line) > 0 {
			sawAnyBytes = true
		}
		trimmed := strings.TrimRight(line, "\r\n")

		if err != nil {
			if errors.Is(err, io.EOF) {
				if !sawAnyBytes {
					return -1, io.EOF
				}
				return -1, ErrHeaderTruncated
			}
			return -1, err
		}

		if trimmed == "" {
			return contentLength, nil
		}

		if idx := strings.IndexByte(trimmed, ':'); idx >= 0 {
			key := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
			if key == "content-length" {
				val := strings.TrimSpace(trimmed[idx+1:])
				if n, perr := strconv.Atoi(val); perr == nil {
					contentLength = n
				}
			}
		}
	}
}

// WriteMessage encodes and writes a message as a single Write call, so a
// frame-oriented transport (WebSocket) can map one WriteMessage to one
// frame rather than splitting the header and body across two frames.
func (f *Framer) WriteMessage(m *Message) error {
	body, err := encodeMessage(m)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(body)+32)
	buf = append(buf, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))...)
	buf = append(buf, body...)

	_, err = f.w.Write(buf)
	return err
}

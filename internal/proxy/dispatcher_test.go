package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// fakeTransport is a minimal transport.Transport backed by a pair of
// io.Pipe halves the test drives directly, standing in for a real child
// process or socket the way the router/state tests stand in for a real
// language server.
type fakeTransport struct {
	name      string
	r         io.Reader
	w         io.Writer
	connected atomic.Bool
}

func newFakeTransport(name string, r io.Reader, w io.Writer) *fakeTransport {
	t := &fakeTransport{name: name, r: r, w: w}
	t.connected.Store(true)
	return t
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Reader() io.Reader                 { return f.r }
func (f *fakeTransport) Writer() io.Writer                  { return f.w }
func (f *fakeTransport) IsConnected() bool                  { return f.connected.Load() }
func (f *fakeTransport) AtEndOfInput() bool                 { return false }
func (f *fakeTransport) Disconnect() error                  { f.connected.Store(false); return nil }
func (f *fakeTransport) Name() string                       { return f.name }

// Wait mimics exec.Cmd.Wait()/conn.Close() confirming the peer is
// actually gone, the signal the real transports use to flip Connected()
// to false once the read side observes end-of-stream.
func (f *fakeTransport) Wait() error {
	f.connected.Store(false)
	return nil
}

type harness struct {
	dispatcher *Dispatcher
	server     *state.ServerState

	sendClientRequest  func(t *testing.T, m *wire.Message)
	readClientResponse func(t *testing.T) *wire.Message
	readServerRequest  func(t *testing.T) *wire.Message
	sendServerResponse func(t *testing.T, m *wire.Message)
	closeServerInput   func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clientToProxyR, clientToProxyW := io.Pipe()
	proxyToClientR, proxyToClientW := io.Pipe()
	proxyToServerR, proxyToServerW := io.Pipe()
	serverToProxyR, serverToProxyW := io.Pipe()

	clientFramer := wire.NewFramer(clientToProxyR, proxyToClientW)
	serverFramer := wire.NewFramer(serverToProxyR, proxyToServerW)

	transport := newFakeTransport("fake", serverToProxyR, proxyToServerW)
	srv := state.NewServerState("fake", true, transport)
	srv.Framer = serverFramer
	srv.UseDiagnostics = true

	global := state.NewGlobalState()
	d := NewDispatcher(clientFramer, []*state.ServerState{srv}, global)

	clientWriteFramer := wire.NewFramer(bytes.NewReader(nil), clientToProxyW)
	clientReadFramer := wire.NewFramer(proxyToClientR, io.Discard)
	serverReadFramer := wire.NewFramer(proxyToServerR, io.Discard)
	serverWriteFramer := wire.NewFramer(bytes.NewReader(nil), serverToProxyW)

	t.Cleanup(func() {
		_ = clientToProxyW.Close()
		_ = proxyToClientW.Close()
		_ = proxyToServerW.Close()
		_ = serverToProxyW.Close()
	})

	return &harness{
		dispatcher: d,
		server:     srv,
		sendClientRequest: func(t *testing.T, m *wire.Message) {
			require.NoError(t, clientWriteFramer.WriteMessage(m))
		},
		readClientResponse: func(t *testing.T) *wire.Message {
			msg, err := clientReadFramer.ReadMessage()
			require.NoError(t, err)
			return msg
		},
		readServerRequest: func(t *testing.T) *wire.Message {
			msg, err := serverReadFramer.ReadMessage()
			require.NoError(t, err)
			return msg
		},
		sendServerResponse: func(t *testing.T, m *wire.Message) {
			require.NoError(t, serverWriteFramer.WriteMessage(m))
		},
		closeServerInput: func() {
			_ = serverToProxyW.Close()
		},
	}
}

func intID(n uint64) *jsonrpc2.ID {
	id := jsonrpc2.ID{Num: n}
	return &id
}

func rawJSON(t *testing.T, v any) *json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	raw := json.RawMessage(b)
	return &raw
}

// TestDispatcher_InitializeRoundTrip exercises the whole loop for a
// single connected server: the client's initialize request is forwarded,
// the server's response is captured as InitializeResponse, and the
// dispatcher hands the client a freshly synthesized aggregate response
// carrying the same id (§4.3.4), not the server's raw bytes.
func TestDispatcher_InitializeRoundTrip(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- h.dispatcher.Run(ctx) }()

	h.sendClientRequest(t, &wire.Message{
		Kind:   wire.KindRequest,
		ID:     intID(1),
		Method: "initialize",
		Params: rawJSON(t, map[string]any{}),
	})

	forwarded := h.readServerRequest(t)
	assert.Equal(t, "initialize", forwarded.Method)
	require.NotNil(t, forwarded.ID)

	h.sendServerResponse(t, &wire.Message{
		Kind:   wire.KindResponse,
		ID:     forwarded.ID,
		Result: rawJSON(t, map[string]any{"capabilities": map[string]any{"completionProvider": map[string]any{}}}),
	})

	resp := h.readClientResponse(t)
	assert.True(t, resp.IsResponse())
	require.NotNil(t, resp.ID)
	assert.Equal(t, uint64(1), resp.ID.Num)

	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(*resp.Result, &result))
	_, hasServerInfo := result["serverInfo"]
	assert.True(t, hasServerInfo)

	cancel()
	select {
	case <-runErr:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

// TestDispatcher_TerminatesWhenLastServerDisconnects confirms the loop
// exits on its own, with no signal needed, once the only server's
// stream reaches end-of-input (§4.4's "terminates when zero servers are
// connected").
func TestDispatcher_TerminatesWhenLastServerDisconnects(t *testing.T) {
	h := newHarness(t)

	runErr := make(chan error, 1)
	go func() { runErr <- h.dispatcher.Run(context.Background()) }()

	h.closeServerInput()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not terminate after server disconnected")
	}
}

// Package state holds the per-downstream-server bookkeeping (ServerState)
// and the small amount of proxy-wide bookkeeping (GlobalState) the router
// needs, kept separate from the router and dispatcher so neither has to
// import the other to share it.
package state

import (
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/lsp-proxy/internal/transport"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// PendingEntry is what a pending_X→Y table maps an id to: the method of
// the request that's awaiting a response, so the response can be
// forwarded as the right method-shaped completion even though JSON-RPC
// responses carry no method field of their own.
type PendingEntry struct {
	Method string
}

// ServerState is the per-downstream-server record the router and
// dispatcher share. It is mutated only from the single Dispatcher
// goroutine that owns this server's read/write loop, so it carries no
// locks of its own.
type ServerState struct {
	Name      string
	IsPrimary bool

	Transport transport.Transport
	Framer    *wire.Framer

	UseDiagnostics    bool
	UseFormatting     bool
	UseCompletion     bool
	UseSignature      bool
	UseExecuteCommand bool

	InitializationOptions *json.RawMessage

	PendingClientToServer map[jsonrpc2.ID]PendingEntry
	PendingServerToClient map[jsonrpc2.ID]PendingEntry

	InitializeResponse *wire.Message
	ShutdownReceived   bool

	// Diagnostics caches the last publish per URI, raw diagnostic array
	// bytes, in the shape the router's mergedDiagnosticsFor re-concatenates.
	Diagnostics map[string]json.RawMessage

	PendingCodeActionResults map[jsonrpc2.ID][]json.RawMessage
}

// NewServerState constructs an empty ServerState for a configured server.
func NewServerState(name string, isPrimary bool, t transport.Transport) *ServerState {
	return &ServerState{
		Name:                     name,
		IsPrimary:                isPrimary,
		Transport:                t,
		PendingClientToServer:    make(map[jsonrpc2.ID]PendingEntry),
		PendingServerToClient:    make(map[jsonrpc2.ID]PendingEntry),
		Diagnostics:              make(map[string]json.RawMessage),
		PendingCodeActionResults: make(map[jsonrpc2.ID][]json.RawMessage),
	}
}

// Capabilities returns the safe-lookup capability view derived from this
// server's cached initialize response. Absent until the server has
// answered initialize.
func (s *ServerState) Capabilities() Capabilities {
	if s.InitializeResponse == nil {
		return Capabilities{}
	}
	return ParseCapabilities(s.InitializeResponse.Result)
}

// Connected reports whether this server's transport is still usable.
func (s *ServerState) Connected() bool {
	return s.Transport != nil && s.Transport.IsConnected()
}

// GlobalState is the small amount of proxy-wide mutable state that
// belongs to the proxy as a whole rather than to any one server: the
// client's outstanding initialize/shutdown ids, and the multiset of ids
// currently fanned out for textDocument/codeAction.
type GlobalState struct {
	InitializeID *jsonrpc2.ID
	ShutdownID   *jsonrpc2.ID

	// OutstandingCodeActionIDs counts, per id, how many servers a
	// codeAction request is still fanned out to awaiting a response.
	OutstandingCodeActionIDs map[jsonrpc2.ID]int
}

// NewGlobalState constructs a fresh GlobalState with no outstanding
// requests.
func NewGlobalState() *GlobalState {
	return &GlobalState{OutstandingCodeActionIDs: make(map[jsonrpc2.ID]int)}
}

// Package router implements the decision core: for each message arriving
// on any stream, it decides destination(s), filter/rewrite, and
// aggregation, per the per-server process() algorithm and the
// client-facing special cases layered on top of it.
package router

import (
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/lsp-proxy/internal/logger"
	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// Router is the single decision core shared by every stream. It holds no
// per-call state of its own; all of it lives on the ServerState/GlobalState
// values it's constructed with, which the single-threaded Dispatcher owns.
type Router struct {
	Servers []*state.ServerState
	Global  *state.GlobalState

	// ClientFramer writes to the client. When nil, messages bound for the
	// client are dropped.
	ClientFramer *wire.Framer

	// OnUnhandled, if set, is called for a notification that reached
	// neither a special case nor the preserved set and was dropped.
	// See unhandled.go.
	OnUnhandled func(direction, method, server string, params *json.RawMessage)

	// OnForward, if set, is called after a message has actually been
	// written to its destination. Observational only: it never changes
	// what gets sent. Used to feed $/progress traffic and
	// window/workDoneProgress/create requests to the progress tracker
	// without coupling the Router to it.
	OnForward func(direction string, server *state.ServerState, msg *wire.Message)
}

// DispatchFromClient routes a single message that originated at the
// client. initialize, workspace/didChangeConfiguration, and the
// single-owner/fan-out feature methods get dedicated destination
// selection; everything else goes through the generic per-server
// broadcast loop.
func (r *Router) DispatchFromClient(msg *wire.Message) {
	switch msg.Method {
	case "initialize":
		r.dispatchInitialize(msg)
		return
	case "workspace/didChangeConfiguration":
		r.dispatchDidChangeConfiguration(msg)
		return
	case "textDocument/formatting", "textDocument/rangeFormatting":
		r.dispatchToOwner(msg, r.FormattingOwner())
		return
	case "textDocument/completion", "completionItem/resolve":
		r.dispatchToOwner(msg, r.CompletionOwner())
		return
	case "textDocument/signatureHelp":
		r.dispatchToOwner(msg, r.SignatureOwner())
		return
	case "workspace/executeCommand":
		r.dispatchExecuteCommand(msg)
		return
	case "textDocument/codeAction":
		r.dispatchCodeAction(msg)
		return
	}

	if msg.Method == "shutdown" {
		r.Global.ShutdownID = msg.ID
	}

	for _, s := range r.Servers {
		if !s.Connected() {
			continue
		}
		r.process(s, false, msg.Clone())
	}
}

// DispatchFromServer routes a single message that originated at server s.
func (r *Router) DispatchFromServer(s *state.ServerState, msg *wire.Message) {
	r.process(s, true, msg)
}

// process decides what happens to one message for one server and one
// direction: response matching against the pending table, the
// primary/preserved filter for new requests and notifications, the
// from-client/from-server special cases, and finally the write.
func (r *Router) process(s *state.ServerState, fromServer bool, msg *wire.Message) {
	var pendingTable, otherTable map[jsonrpc2.ID]state.PendingEntry
	var preserved methodSet
	if fromServer {
		pendingTable = s.PendingClientToServer
		otherTable = s.PendingServerToClient
		preserved = preservedFromServer
	} else {
		pendingTable = s.PendingServerToClient
		otherTable = s.PendingClientToServer
		preserved = preservedFromClient
	}

	method := msg.Method
	shouldSend := false

	if msg.ID != nil {
		if entry, ok := pendingTable[*msg.ID]; ok {
			shouldSend = true
			method = entry.Method
			delete(pendingTable, *msg.ID)
		}
	}

	if !shouldSend {
		if s.IsPrimary || preserved.has(method) {
			shouldSend = true
			if method != "" && msg.ID != nil {
				otherTable[*msg.ID] = state.PendingEntry{Method: method}
			}
		} else if msg.IsNotification() && r.OnUnhandled != nil {
			direction := "client->server"
			if fromServer {
				direction = "server->client"
			}
			r.OnUnhandled(direction, method, s.Name, msg.Params)
		}
	}

	shouldSend = r.applySpecialCases(s, fromServer, msg, method, shouldSend)

	if !shouldSend {
		return
	}

	var writer *wire.Framer
	if fromServer {
		writer = r.ClientFramer
	} else {
		writer = s.Framer
	}
	if writer == nil {
		return
	}

	arrow := "-->"
	if fromServer {
		arrow = "<--"
	}
	if err := writer.WriteMessage(msg); err != nil {
		logger.Warnf("router: write to %s failed for %s %s: %v", directionLabel(fromServer), method, s.Name, err)
		return
	}
	logger.Debugf("router: C %s S %s <%s>", arrow, displayMethod(method), s.Name)

	if r.OnForward != nil {
		r.OnForward(directionLabel(fromServer), s, msg)
	}
}

func directionLabel(fromServer bool) string {
	if fromServer {
		return "client"
	}
	return "server"
}

func displayMethod(method string) string {
	if method == "" {
		return "no method"
	}
	return method
}

// applySpecialCases layers from-server aggregation behavior on top of the
// generic decision. It may override shouldSend (suppressing a response
// until every server has answered) and may replace msg in place with a
// synthesized aggregate.
func (r *Router) applySpecialCases(s *state.ServerState, fromServer bool, msg *wire.Message, method string, shouldSend bool) bool {
	if !fromServer {
		return shouldSend
	}

	if msg.ID != nil && r.Global.InitializeID != nil && *msg.ID == *r.Global.InitializeID {
		s.InitializeResponse = msg
		if !r.allInitialized() {
			return false
		}
		*msg = *r.synthesizeInitializeResponse()
		return true
	}

	if msg.ID != nil && r.Global.ShutdownID != nil && *msg.ID == *r.Global.ShutdownID {
		s.ShutdownReceived = true
		if !r.allShutdown() {
			return false
		}
		null := json.RawMessage("null")
		*msg = wire.Message{Kind: wire.KindResponse, ID: r.Global.ShutdownID, Result: &null}
		return true
	}

	if msg.ID != nil {
		if remaining, ok := r.Global.OutstandingCodeActionIDs[*msg.ID]; ok {
			var items []json.RawMessage
			if msg.Result != nil {
				_ = json.Unmarshal(*msg.Result, &items)
			}
			s.PendingCodeActionResults[*msg.ID] = items

			remaining--
			if remaining > 0 {
				r.Global.OutstandingCodeActionIDs[*msg.ID] = remaining
				return false
			}

			delete(r.Global.OutstandingCodeActionIDs, *msg.ID)
			id := *msg.ID
			merged := r.mergeCodeActionResults(id)
			for _, srv := range r.Servers {
				delete(srv.PendingCodeActionResults, id)
			}
			*msg = wire.Message{Kind: wire.KindResponse, ID: &id, Result: merged}
			return true
		}
	}

	if shouldSend && method == "textDocument/publishDiagnostics" {
		r.mergeDiagnosticsInto(s, msg)
	}

	return shouldSend
}

func (r *Router) mergeCodeActionResults(id jsonrpc2.ID) *json.RawMessage {
	items := []json.RawMessage{}
	for _, srv := range r.Servers {
		if elems, ok := srv.PendingCodeActionResults[id]; ok {
			items = append(items, elems...)
		}
	}
	b, _ := json.Marshal(items)
	raw := json.RawMessage(b)
	return &raw
}

type diagnosticsParams struct {
	URI         string          `json:"uri"`
	Diagnostics json.RawMessage `json:"diagnostics"`
	Version     *int            `json:"version,omitempty"`
}

func (r *Router) mergeDiagnosticsInto(s *state.ServerState, msg *wire.Message) {
	if msg.Params == nil {
		return
	}
	var params diagnosticsParams
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		return
	}

	if s.UseDiagnostics {
		s.Diagnostics[params.URI] = params.Diagnostics
	}

	params.Diagnostics = r.mergedDiagnosticsFor(params.URI)
	b, err := json.Marshal(params)
	if err != nil {
		return
	}
	raw := json.RawMessage(b)
	msg.Params = &raw
}

func (r *Router) mergedDiagnosticsFor(uri string) json.RawMessage {
	items := []json.RawMessage{}
	for _, srv := range r.Servers {
		if !srv.UseDiagnostics {
			continue
		}
		d, ok := srv.Diagnostics[uri]
		if !ok {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(d, &elems); err != nil {
			continue
		}
		items = append(items, elems...)
	}
	b, _ := json.Marshal(items)
	return json.RawMessage(b)
}

func (r *Router) allInitialized() bool {
	for _, s := range r.Servers {
		if !s.Connected() {
			continue
		}
		if s.InitializeResponse == nil {
			return false
		}
	}
	return true
}

func (r *Router) allShutdown() bool {
	for _, s := range r.Servers {
		if !s.Connected() {
			continue
		}
		if !s.ShutdownReceived {
			return false
		}
	}
	return true
}

func (r *Router) primaryServer() *state.ServerState {
	for _, s := range r.Servers {
		if s.IsPrimary {
			return s
		}
	}
	if len(r.Servers) > 0 {
		return r.Servers[0]
	}
	return nil
}

package router

// methodSet is a small set-of-strings used for the preserved-method
// lookups below. A plain map is enough; these sets are built once at
// package init and never mutated.
type methodSet map[string]struct{}

func newMethodSet(methods ...string) methodSet {
	s := make(methodSet, len(methods))
	for _, m := range methods {
		s[m] = struct{}{}
	}
	return s
}

func (s methodSet) has(method string) bool {
	_, ok := s[method]
	return ok
}

func unionSets(sets ...methodSet) methodSet {
	out := methodSet{}
	for _, s := range sets {
		for m := range s {
			out[m] = struct{}{}
		}
	}
	return out
}

// PreservedRequests are request methods a non-primary server may still
// send or receive. window/workDoneProgress/create and .../cancel are
// included (see DESIGN.md) since the progress tracker observes
// window/workDoneProgress/create traffic, which only makes sense if it
// actually crosses the wire.
var PreservedRequests = newMethodSet(
	"initialize",
	"shutdown",
	"window/showMessageRequest",
	"window/showDocument",
	"workspace/workspaceFolders",
	"workspace/applyEdit",
	"textDocument/formatting",
	"textDocument/rangeFormatting",
	"textDocument/completion",
	"completionItem/resolve",
	"textDocument/signatureHelp",
	"textDocument/codeAction",
	"workspace/executeCommand",
	"window/workDoneProgress/create",
	"window/workDoneProgress/cancel",
)

// PreservedClientToServerNotifications are notifications a non-primary
// server still receives from the client.
var PreservedClientToServerNotifications = newMethodSet(
	"initialized",
	"exit",
	"textDocument/didOpen",
	"textDocument/didChange",
	"textDocument/didSave",
	"textDocument/didClose",
	"workspace/didChangeWorkspaceFolders",
	"workspace/didChangeConfiguration",
)

// PreservedServerToClientNotifications are notifications a non-primary
// server still sends to the client.
var PreservedServerToClientNotifications = newMethodSet(
	"textDocument/publishDiagnostics",
	"window/showMessage",
	"window/logMessage",
)

var preservedFromClient = unionSets(PreservedRequests, PreservedClientToServerNotifications)
var preservedFromServer = unionSets(PreservedRequests, PreservedServerToClientNotifications)

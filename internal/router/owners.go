package router

import (
	"encoding/json"

	"github.com/rockerboo/lsp-proxy/internal/logger"
	"github.com/rockerboo/lsp-proxy/internal/state"
	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// selectOwner iterates servers in configuration order, remembering the
// first capable one; returns the first server that is both preferred and
// capable, falling back to the first capable server, or nil if none is
// capable at all.
func (r *Router) selectOwner(preferred, capable func(*state.ServerState) bool) *state.ServerState {
	var firstCapable *state.ServerState
	for _, s := range r.Servers {
		if !capable(s) {
			continue
		}
		if firstCapable == nil {
			firstCapable = s
		}
		if preferred(s) {
			return s
		}
	}
	return firstCapable
}

func (r *Router) FormattingOwner() *state.ServerState {
	return r.selectOwner(
		func(s *state.ServerState) bool { return s.UseFormatting },
		func(s *state.ServerState) bool { return s.Connected() && s.Capabilities().Truthy("documentFormattingProvider") },
	)
}

func (r *Router) CompletionOwner() *state.ServerState {
	return r.selectOwner(
		func(s *state.ServerState) bool { return s.UseCompletion },
		func(s *state.ServerState) bool { return s.Connected() && s.Capabilities().Truthy("completionProvider") },
	)
}

func (r *Router) SignatureOwner() *state.ServerState {
	return r.selectOwner(
		func(s *state.ServerState) bool { return s.UseSignature },
		func(s *state.ServerState) bool { return s.Connected() && s.Capabilities().Truthy("signatureHelpProvider") },
	)
}

// dispatchToOwner forwards msg to exactly one server, or drops it (and
// logs why) if no server is capable. Other servers never see it and no
// pending entry is recorded on their behalf.
func (r *Router) dispatchToOwner(msg *wire.Message, owner *state.ServerState) {
	if owner == nil {
		logger.Warnf("router: no capable server for %s; request dropped", msg.Method)
		return
	}
	r.process(owner, false, msg)
}

type executeCommandParams struct {
	Command string `json:"command"`
}

func (r *Router) dispatchExecuteCommand(msg *wire.Message) {
	var command string
	if msg.Params != nil {
		var params executeCommandParams
		if err := json.Unmarshal(*msg.Params, &params); err == nil {
			command = params.Command
		}
	}

	owner := r.selectOwner(
		func(s *state.ServerState) bool { return s.UseExecuteCommand },
		func(s *state.ServerState) bool {
			if !s.Connected() {
				return false
			}
			for _, c := range s.Capabilities().ExecuteCommands() {
				if c == command {
					return true
				}
			}
			return false
		},
	)
	r.dispatchToOwner(msg, owner)
}

// dispatchCodeAction fans a textDocument/codeAction request out to every
// connected server that advertises codeActionProvider, tracking how many
// responses are still outstanding so applySpecialCases can aggregate them
// once the last one arrives.
func (r *Router) dispatchCodeAction(msg *wire.Message) {
	var owners []*state.ServerState
	for _, s := range r.Servers {
		if s.Connected() && s.Capabilities().Truthy("codeActionProvider") {
			owners = append(owners, s)
		}
	}

	if len(owners) == 0 {
		logger.Warnf("router: no code-action-capable server; textDocument/codeAction dropped")
		return
	}

	if msg.ID != nil {
		r.Global.OutstandingCodeActionIDs[*msg.ID] = len(owners)
	}

	for _, s := range owners {
		r.process(s, false, msg.Clone())
	}
}

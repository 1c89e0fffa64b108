package router

import (
	"encoding/json"

	"github.com/rockerboo/lsp-proxy/internal/wire"
)

// dispatchInitialize records the client's outstanding initialize id and
// fans the request out to every connected server, giving each its own
// initializationOptions.
func (r *Router) dispatchInitialize(msg *wire.Message) {
	r.Global.InitializeID = msg.ID
	for _, s := range r.Servers {
		if !s.Connected() {
			continue
		}
		clone := msg.Clone()
		overwriteParamsKey(clone, "initializationOptions", s.InitializationOptions, s.IsPrimary)
		r.process(s, false, clone)
	}
}

// dispatchDidChangeConfiguration applies the same per-server substitution
// as initialize, but on params.settings.
func (r *Router) dispatchDidChangeConfiguration(msg *wire.Message) {
	for _, s := range r.Servers {
		if !s.Connected() {
			continue
		}
		clone := msg.Clone()
		overwriteParamsKey(clone, "settings", s.InitializationOptions, s.IsPrimary)
		r.process(s, false, clone)
	}
}

// overwriteParamsKey replaces a single top-level params key: with the
// server's configured value if it has one, else with an explicit JSON
// null for non-primary servers, else left untouched (the primary server
// without a configured value keeps whatever the client sent).
func overwriteParamsKey(msg *wire.Message, key string, configured *json.RawMessage, isPrimary bool) {
	if configured == nil && isPrimary {
		return
	}

	var params map[string]json.RawMessage
	if msg.Params != nil {
		_ = json.Unmarshal(*msg.Params, &params)
	}
	if params == nil {
		params = map[string]json.RawMessage{}
	}

	if configured != nil {
		params[key] = *configured
	} else {
		params[key] = json.RawMessage("null")
	}

	b, err := json.Marshal(params)
	if err != nil {
		return
	}
	raw := json.RawMessage(b)
	msg.Params = &raw
}

// synthesizeInitializeResponse starts from a deep copy of the primary's
// result, stamps serverInfo, then overwrites the single-owner and union
// capability fields.
func (r *Router) synthesizeInitializeResponse() *wire.Message {
	resultMap := map[string]json.RawMessage{}
	if primary := r.primaryServer(); primary != nil && primary.InitializeResponse != nil && primary.InitializeResponse.Result != nil {
		_ = json.Unmarshal(*primary.InitializeResponse.Result, &resultMap)
	}

	caps := map[string]json.RawMessage{}
	if raw, ok := resultMap["capabilities"]; ok {
		_ = json.Unmarshal(raw, &caps)
	}

	serverInfo, _ := json.Marshal(map[string]string{"name": "lsp-proxy", "version": "0.1"})
	resultMap["serverInfo"] = serverInfo

	if owner := r.FormattingOwner(); owner != nil {
		if v, ok := owner.Capabilities().Get("documentFormattingProvider"); ok {
			caps["documentFormattingProvider"] = v
		}
		if v, ok := owner.Capabilities().Get("documentRangeFormattingProvider"); ok {
			caps["documentRangeFormattingProvider"] = v
		}
	}
	if owner := r.CompletionOwner(); owner != nil {
		if v, ok := owner.Capabilities().Get("completionProvider"); ok {
			caps["completionProvider"] = v
		}
	}
	if owner := r.SignatureOwner(); owner != nil {
		if v, ok := owner.Capabilities().Get("signatureHelpProvider"); ok {
			caps["signatureHelpProvider"] = v
		}
	}
	if kinds, ok := r.unionCodeActionKinds(); ok {
		v, _ := json.Marshal(map[string]any{"codeActionKinds": kinds})
		caps["codeActionProvider"] = v
	}
	if commands, ok := r.unionExecuteCommands(); ok {
		v, _ := json.Marshal(map[string]any{"commands": commands})
		caps["executeCommandProvider"] = v
	}

	capsRaw, _ := json.Marshal(caps)
	resultMap["capabilities"] = capsRaw

	resultRaw, _ := json.Marshal(resultMap)
	raw := json.RawMessage(resultRaw)

	id := r.Global.InitializeID
	return &wire.Message{Kind: wire.KindResponse, ID: id, Result: &raw}
}

func (r *Router) unionCodeActionKinds() ([]string, bool) {
	seen := map[string]bool{}
	var kinds []string
	any := false
	for _, s := range r.Servers {
		if !s.Capabilities().Truthy("codeActionProvider") {
			continue
		}
		any = true
		k, _ := s.Capabilities().CodeActionKinds()
		for _, kind := range k {
			if !seen[kind] {
				seen[kind] = true
				kinds = append(kinds, kind)
			}
		}
	}
	if !any {
		return nil, false
	}
	if kinds == nil {
		kinds = []string{}
	}
	return kinds, true
}

func (r *Router) unionExecuteCommands() ([]string, bool) {
	seen := map[string]bool{}
	var commands []string
	any := false
	for _, s := range r.Servers {
		if !s.Capabilities().Truthy("executeCommandProvider") {
			continue
		}
		any = true
		for _, c := range s.Capabilities().ExecuteCommands() {
			if !seen[c] {
				seen[c] = true
				commands = append(commands, c)
			}
		}
	}
	if !any {
		return nil, false
	}
	if commands == nil {
		commands = []string{}
	}
	return commands, true
}

package state

import (
	"encoding/json"
	"strings"
)

// Capabilities is a safe nested-lookup view over an initialize response's
// `result.capabilities` object. It never fails to parse a field it
// doesn't need: unknown or absent keys simply read as absent, matching
// §4.2's requirement for "safe nested lookups that yield absent rather
// than failing." Grounded on original_source/lsp-proxy.py's plain dict
// indexing (`result['capabilities'].get(...)`).
type Capabilities struct {
	raw map[string]json.RawMessage
}

// ParseCapabilities extracts `result.capabilities` from a cached
// initialize response's raw result bytes. A nil or unparsable result
// yields an empty (all-absent) Capabilities view.
func ParseCapabilities(result *json.RawMessage) Capabilities {
	if result == nil {
		return Capabilities{}
	}

	var wrapper struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(*result, &wrapper); err != nil {
		return Capabilities{}
	}
	return Capabilities{raw: wrapper.Capabilities}
}

// Get returns the raw JSON for a capability field and whether it was
// present at all.
func (c Capabilities) Get(key string) (json.RawMessage, bool) {
	if c.raw == nil {
		return nil, false
	}
	v, ok := c.raw[key]
	return v, ok
}

// Truthy reports whether a capability field is present and not JSON
// `false`/`null`, the LSP convention for "boolean-or-options-object"
// capability fields like documentFormattingProvider.
func (c Capabilities) Truthy(key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	s := strings.TrimSpace(string(v))
	return s != "false" && s != "null" && s != ""
}

// CodeActionKinds returns the codeActionKinds a server's codeActionProvider
// advertises, if it advertises the capability as an options object rather
// than a bare boolean. The second return mirrors Truthy("codeActionProvider").
func (c Capabilities) CodeActionKinds() ([]string, bool) {
	v, ok := c.Get("codeActionProvider")
	if !ok {
		return nil, false
	}
	if !c.Truthy("codeActionProvider") {
		return nil, false
	}

	var opts struct {
		CodeActionKinds []string `json:"codeActionKinds"`
	}
	_ = json.Unmarshal(v, &opts)
	return opts.CodeActionKinds, true
}

// ExecuteCommands returns the commands a server's executeCommandProvider
// advertises.
func (c Capabilities) ExecuteCommands() []string {
	v, ok := c.Get("executeCommandProvider")
	if !ok {
		return nil
	}
	var opts struct {
		Commands []string `json:"commands"`
	}
	_ = json.Unmarshal(v, &opts)
	return opts.Commands
}

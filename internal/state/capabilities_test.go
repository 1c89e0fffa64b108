package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rawResult(t *testing.T, v any) *json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	raw := json.RawMessage(b)
	return &raw
}

func TestParseCapabilities_NilResultIsAllAbsent(t *testing.T) {
	c := ParseCapabilities(nil)
	_, ok := c.Get("hoverProvider")
	assert.False(t, ok)
	assert.False(t, c.Truthy("hoverProvider"))
}

func TestParseCapabilities_UnparsableResultIsAllAbsent(t *testing.T) {
	raw := json.RawMessage(`not json`)
	c := ParseCapabilities(&raw)
	_, ok := c.Get("hoverProvider")
	assert.False(t, ok)
}

func TestCapabilities_TruthyRejectsFalseAndNull(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{
		"capabilities": map[string]any{
			"hoverProvider":              true,
			"documentFormattingProvider": false,
			"definitionProvider":         nil,
			"renameProvider":             map[string]any{"prepareProvider": true},
		},
	}))

	assert.True(t, c.Truthy("hoverProvider"))
	assert.False(t, c.Truthy("documentFormattingProvider"))
	assert.False(t, c.Truthy("definitionProvider"))
	assert.True(t, c.Truthy("renameProvider"), "an options object is truthy, not just a bare boolean")
	assert.False(t, c.Truthy("missingProvider"))
}

func TestCapabilities_CodeActionKinds(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{
		"capabilities": map[string]any{
			"codeActionProvider": map[string]any{"codeActionKinds": []string{"quickfix", "refactor"}},
		},
	}))

	kinds, ok := c.CodeActionKinds()
	assert.True(t, ok)
	assert.Equal(t, []string{"quickfix", "refactor"}, kinds)
}

func TestCapabilities_CodeActionKinds_BareBooleanHasNoKinds(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{
		"capabilities": map[string]any{"codeActionProvider": true},
	}))

	kinds, ok := c.CodeActionKinds()
	assert.True(t, ok)
	assert.Empty(t, kinds)
}

func TestCapabilities_CodeActionKinds_AbsentCapability(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{"capabilities": map[string]any{}}))
	_, ok := c.CodeActionKinds()
	assert.False(t, ok)
}

func TestCapabilities_ExecuteCommands(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{
		"capabilities": map[string]any{
			"executeCommandProvider": map[string]any{"commands": []string{"proj.build", "proj.test"}},
		},
	}))

	assert.Equal(t, []string{"proj.build", "proj.test"}, c.ExecuteCommands())
}

func TestCapabilities_ExecuteCommands_Absent(t *testing.T) {
	c := ParseCapabilities(rawResult(t, map[string]any{"capabilities": map[string]any{}}))
	assert.Nil(t, c.ExecuteCommands())
}

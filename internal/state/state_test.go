package state

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lsp-proxy/internal/wire"
)

type fakeTransport struct{ connected bool }

func (f *fakeTransport) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Reader() io.Reader             { return nil }
func (f *fakeTransport) Writer() io.Writer              { return nil }
func (f *fakeTransport) IsConnected() bool              { return f.connected }
func (f *fakeTransport) AtEndOfInput() bool             { return false }
func (f *fakeTransport) Disconnect() error              { f.connected = false; return nil }
func (f *fakeTransport) Wait() error                    { return nil }
func (f *fakeTransport) Name() string                   { return "fake" }

func TestNewServerState_InitializesEmptyTables(t *testing.T) {
	s := NewServerState("jedi", true, &fakeTransport{})

	assert.Equal(t, "jedi", s.Name)
	assert.True(t, s.IsPrimary)
	assert.NotNil(t, s.PendingClientToServer)
	assert.NotNil(t, s.PendingServerToClient)
	assert.NotNil(t, s.Diagnostics)
	assert.NotNil(t, s.PendingCodeActionResults)
	assert.Empty(t, s.PendingClientToServer)
}

func TestServerState_Connected_FollowsTransport(t *testing.T) {
	tr := &fakeTransport{}
	s := NewServerState("jedi", true, tr)
	assert.False(t, s.Connected())

	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, s.Connected())

	require.NoError(t, tr.Disconnect())
	assert.False(t, s.Connected())
}

func TestServerState_Connected_NilTransportIsNeverConnected(t *testing.T) {
	s := NewServerState("jedi", true, nil)
	assert.False(t, s.Connected())
}

func TestServerState_Capabilities_AbsentBeforeInitializeResponse(t *testing.T) {
	s := NewServerState("jedi", true, &fakeTransport{})
	c := s.Capabilities()
	assert.False(t, c.Truthy("hoverProvider"))
}

func TestServerState_Capabilities_ReflectsCachedInitializeResponse(t *testing.T) {
	s := NewServerState("jedi", true, &fakeTransport{})

	result, err := json.Marshal(map[string]any{"capabilities": map[string]any{"hoverProvider": true}})
	require.NoError(t, err)
	raw := json.RawMessage(result)
	s.InitializeResponse = &wire.Message{Kind: wire.KindResponse, Result: &raw}

	assert.True(t, s.Capabilities().Truthy("hoverProvider"))
}

func TestNewGlobalState_InitializesOutstandingMap(t *testing.T) {
	g := NewGlobalState()
	assert.NotNil(t, g.OutstandingCodeActionIDs)
	assert.Nil(t, g.InitializeID)
	assert.Nil(t, g.ShutdownID)
}

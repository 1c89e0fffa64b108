package progress

import (
	"testing"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strToken(s string) protocol.ProgressToken {
	return protocol.ProgressToken{Value: s}
}

func TestTracker_BeginReportEnd(t *testing.T) {
	tr := NewTracker()

	tr.Update("jedi", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: map[string]any{"kind": "begin", "title": "indexing"},
	})

	snap := tr.Snapshot()
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "jedi", snap.Active[0].Server)
	assert.Equal(t, "begin", snap.Active[0].Kind)
	assert.Equal(t, "indexing", snap.Active[0].Title)

	tr.Update("jedi", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: map[string]any{"kind": "report", "percentage": 50},
	})
	snap = tr.Snapshot()
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "report", snap.Active[0].Kind)

	tr.Update("jedi", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: map[string]any{"kind": "end"},
	})
	snap = tr.Snapshot()
	assert.Empty(t, snap.Active)
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, "end", snap.LastEvent.Kind)
}

func TestTracker_SeparatesTokensPerServer(t *testing.T) {
	tr := NewTracker()

	tr.Update("jedi", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: map[string]any{"kind": "begin"},
	})
	tr.Update("ruff", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: map[string]any{"kind": "begin"},
	})

	snap := tr.Snapshot()
	assert.Len(t, snap.Active, 2)
}

func TestTracker_ForgetDropsOnlyThatServer(t *testing.T) {
	tr := NewTracker()

	tr.Update("jedi", protocol.ProgressParams{Token: strToken("a"), Value: map[string]any{"kind": "begin"}})
	tr.Update("ruff", protocol.ProgressParams{Token: strToken("b"), Value: map[string]any{"kind": "begin"}})

	tr.Forget("jedi")

	snap := tr.Snapshot()
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "ruff", snap.Active[0].Server)
}

func TestTracker_UnmarshalableValueStillRecordsLastEvent(t *testing.T) {
	tr := NewTracker()

	tr.Update("jedi", protocol.ProgressParams{
		Token: strToken("job-1"),
		Value: func() {}, // not JSON-marshalable
	})

	snap := tr.Snapshot()
	require.NotNil(t, snap.LastEvent)
	assert.Equal(t, "unknown", snap.LastEvent.Kind)
	assert.Empty(t, snap.Active)
}

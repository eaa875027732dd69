package flow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thammuio/flowgate/pkg/flow"
)

func TestStateForVerb(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		verb     flow.Verb
		expected string
	}{
		{name: "start", verb: flow.VerbStart, expected: flow.StateRunning},
		{name: "stop", verb: flow.VerbStop, expected: flow.StateStopped},
		{name: "enable", verb: flow.VerbEnable, expected: flow.StateStopped},
		{name: "disable", verb: flow.VerbDisable, expected: flow.StateDisabled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			state, err := flow.StateForVerb(tt.verb)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
		})
	}

	t.Run("unknown verb", func(t *testing.T) {
		t.Parallel()

		_, err := flow.StateForVerb(flow.Verb("restart"))
		require.ErrorIs(t, err, flow.ErrUnknownVerb)
	})
}

func TestVerbs(t *testing.T) {
	t.Parallel()

	verbs := flow.Verbs()
	assert.Equal(t, []flow.Verb{
		flow.VerbStart,
		flow.VerbStop,
		flow.VerbEnable,
		flow.VerbDisable,
	}, verbs)
}

func TestEntity_WireShape(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "proc-1",
		"revision": {"version": 4, "clientId": "flowgate-abc"},
		"component": {
			"id": "proc-1",
			"groupId": "group-1",
			"name": "ingest",
			"type": "org.example.Ingest",
			"state": "STOPPED",
			"properties": {"batch.size": "500"}
		}
	}`

	var entity flow.Entity

	err := json.Unmarshal([]byte(payload), &entity)
	require.NoError(t, err)

	assert.Equal(t, "proc-1", entity.ID)
	require.NotNil(t, entity.Revision)
	assert.Equal(t, int64(4), entity.Revision.Version)
	assert.Equal(t, "flowgate-abc", entity.Revision.ClientID)
	assert.Equal(t, "group-1", entity.Component.GroupID)
	assert.Equal(t, flow.StateStopped, entity.Component.State)
	assert.Equal(t, "500", entity.Component.Properties["batch.size"])
}

func TestConnection_WireShape(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "conn-1",
		"revision": {"version": 2},
		"component": {
			"id": "conn-1",
			"groupId": "group-1",
			"sourceId": "proc-1",
			"destinationId": "proc-2"
		},
		"status": {
			"aggregateSnapshot": {"queuedCount": 42, "queuedSize": "1.2 MB"}
		}
	}`

	var conn flow.Connection

	err := json.Unmarshal([]byte(payload), &conn)
	require.NoError(t, err)

	assert.Equal(t, "proc-1", conn.Component.SourceID)
	assert.Equal(t, "proc-2", conn.Component.DestinationID)
	require.NotNil(t, conn.Status)
	assert.Equal(t, int64(42), conn.Status.AggregateSnapshot.QueuedCount)
	assert.False(t, conn.Status.Empty())
}

func TestConnectionStatus_Empty(t *testing.T) {
	t.Parallel()

	t.Run("nil status", func(t *testing.T) {
		t.Parallel()

		var status *flow.ConnectionStatus
		assert.True(t, status.Empty())
	})

	t.Run("zero queued", func(t *testing.T) {
		t.Parallel()

		status := &flow.ConnectionStatus{
			AggregateSnapshot: flow.QueueSnapshot{QueuedCount: 0},
		}
		assert.True(t, status.Empty())
	})

	t.Run("items queued", func(t *testing.T) {
		t.Parallel()

		status := &flow.ConnectionStatus{
			AggregateSnapshot: flow.QueueSnapshot{QueuedCount: 3},
		}
		assert.False(t, status.Empty())
	})
}

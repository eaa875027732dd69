package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thammuio/flowgate/pkg/flow"
)

func entityJSON(id string, version int64, state string) flow.Entity {
	return flow.Entity{
		ID:       id,
		Revision: &flow.Revision{Version: version, ClientID: "cli-1"},
		Component: flow.Component{
			ID:    id,
			Name:  "ingest-" + id,
			State: state,
		},
	}
}

func TestEntitiesClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities/proc-1", r.URL.Path)
		assert.Equal(t, "GET", r.Method)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 4, flow.StateStopped))
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	entity, err := client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
	assert.Equal(t, "proc-1", entity.ID)
	assert.Equal(t, int64(4), entity.Revision.Version)
	assert.Equal(t, "cli-1", entity.Revision.ClientID)
	assert.Equal(t, flow.StateStopped, entity.Component.State)
}

func TestEntitiesClient_Get_notFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "entity missing-1 not found"})
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	entity, err := client.Entities().Get(context.Background(), "missing-1")
	require.Error(t, err)
	assert.Nil(t, entity)
	assert.True(t, flow.IsNotFound(err))
	assert.Contains(t, err.Error(), "entity missing-1 not found")
}

func TestEntitiesClient_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities", r.URL.Path)
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "RUNNING", r.URL.Query().Get("state"))

		list := flow.EntityList{
			Entities: []flow.Entity{
				entityJSON("proc-1", 1, flow.StateRunning),
				entityJSON("proc-2", 3, flow.StateRunning),
			},
			Total: 12,
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	params := flow.NewQueryParams().WithPage(2).WithFilter("state", "RUNNING")

	list, err := client.Entities().List(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, list.Entities, 2)
	assert.Equal(t, 12, list.Total)
}

func TestEntitiesClient_Update(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case "GET":
			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 4, flow.StateStopped))
		case "PUT":
			var payload entityMutation

			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, int64(4), payload.Revision.Version)
			assert.Equal(t, "proc-1", payload.Component.ID)
			assert.Equal(t, "renamed", payload.Component.Name)
			assert.Equal(t, map[string]string{"batch.size": "500"}, payload.Component.Properties)
			assert.Empty(t, payload.Component.State)

			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 5, flow.StateStopped))
		}
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	update := &flow.EntityUpdate{
		Name:       "renamed",
		Properties: map[string]string{"batch.size": "500"},
	}

	entity, err := client.Entities().Update(context.Background(), "proc-1", update)
	require.NoError(t, err)
	assert.Equal(t, int64(5), entity.Revision.Version)

	// The write must be preceded by a fresh revision read.
	assert.Equal(t, []string{"GET /entities/proc-1", "PUT /entities/proc-1"}, requests)
}

func TestEntitiesClient_SetState(t *testing.T) {
	tests := []struct {
		verb      flow.Verb
		wantState string
	}{
		{flow.VerbStart, flow.StateRunning},
		{flow.VerbStop, flow.StateStopped},
		{flow.VerbEnable, flow.StateStopped},
		{flow.VerbDisable, flow.StateDisabled},
	}

	for _, testCase := range tests {
		t.Run(string(testCase.verb), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")

				switch r.Method {
				case "GET":
					_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 8, flow.StateStopped))
				case "PUT":
					var payload entityMutation

					require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
					assert.Equal(t, int64(8), payload.Revision.Version)
					assert.Equal(t, testCase.wantState, payload.Component.State)
					assert.Empty(t, payload.Component.Name)

					_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 9, testCase.wantState))
				}
			}))
			defer server.Close()

			client, err := New(context.Background(), newTestConfig(server.URL))
			require.NoError(t, err)

			entity, err := client.Entities().SetState(context.Background(), "proc-1", testCase.verb)
			require.NoError(t, err)
			assert.Equal(t, testCase.wantState, entity.Component.State)
		})
	}
}

func TestEntitiesClient_SetState_unknownVerb(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an unknown verb")
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	entity, err := client.Entities().SetState(context.Background(), "proc-1", flow.Verb("restart"))
	require.Error(t, err)
	assert.Nil(t, entity)
	require.ErrorIs(t, err, flow.ErrUnknownVerb)
	assert.Contains(t, err.Error(), "restart")
}

func TestEntitiesClient_SetState_conflict(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		getCount := 0

		for _, req := range requests {
			if req == "GET /entities/proc-1" {
				getCount++
			}
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case "GET":
			// The post-conflict refetch sees a newer revision.
			if getCount > 1 {
				_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 7, flow.StateRunning))
			} else {
				_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 5, flow.StateStopped))
			}
		case "PUT":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "revision mismatch"})
		}
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	entity, err := client.Entities().SetState(context.Background(), "proc-1", flow.VerbStart)
	require.Error(t, err)
	assert.Nil(t, entity)
	assert.True(t, flow.IsConflict(err))

	conflictErr := &flow.ConflictError{}

	require.ErrorAs(t, err, &conflictErr)
	require.NotNil(t, conflictErr.Latest)
	assert.Equal(t, int64(7), conflictErr.Latest.Revision.Version)
	assert.Contains(t, conflictErr.APIError.Detail, "revision mismatch")

	// Fetch, one write attempt, refetch. The conflicted write is never
	// retried.
	assert.Equal(t, []string{
		"GET /entities/proc-1",
		"PUT /entities/proc-1",
		"GET /entities/proc-1",
	}, requests)

	snapshot := flow.ConflictSnapshot(err)
	require.NotNil(t, snapshot)
	assert.Equal(t, int64(7), snapshot.Revision.Version)
}

func TestEntitiesClient_Delete(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/flow/about":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "GET":
			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateStopped))
		case r.Method == "DELETE":
			assert.Equal(t, "3", r.URL.Query().Get("version"))
			assert.Equal(t, "cli-1", r.URL.Query().Get("clientId"))
			// Capabilities are unknown here, so the acknowledgement
			// parameter must be absent.
			assert.False(t, r.URL.Query().Has("disconnectedNodeAcknowledged"))

			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateStopped))
		}
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	err = client.Entities().Delete(context.Background(), "proc-1")
	require.NoError(t, err)

	assert.Contains(t, requests, "GET /entities/proc-1")
	assert.Contains(t, requests, "DELETE /entities/proc-1")
}

func TestEntitiesClient_Delete_withAcknowledgement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/flow/about":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"about": map[string]string{"version": "2.1.0"},
			})
		case r.Method == "GET":
			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateStopped))
		case r.Method == "DELETE":
			assert.Equal(t, "3", r.URL.Query().Get("version"))
			assert.Equal(t, "false", r.URL.Query().Get("disconnectedNodeAcknowledged"))

			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateStopped))
		}
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	err = client.Entities().Delete(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestEntitiesClient_Delete_conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/flow/about":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == "GET":
			_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateStopped))
		case r.Method == "DELETE":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "entity was updated"})
		}
	}))
	defer server.Close()

	client, err := New(context.Background(), newTestConfig(server.URL))
	require.NoError(t, err)

	err = client.Entities().Delete(context.Background(), "proc-1")
	require.Error(t, err)
	assert.True(t, flow.IsConflict(err))

	conflictErr := &flow.ConflictError{}

	require.True(t, errors.As(err, &conflictErr))
	require.NotNil(t, conflictErr.Latest)
}

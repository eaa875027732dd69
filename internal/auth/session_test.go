package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mutex   sync.Mutex
	gateway string
	token   string
	expiry  time.Time
	calls   int
}

func (r *recordingPersister) UpdateGatewayToken(gateway, token string, expiresAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.gateway = gateway
	r.token = token
	r.expiry = expiresAt
	r.calls++

	return nil
}

func (r *recordingPersister) snapshot() (string, string, int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.gateway, r.token, r.calls
}

func TestSessionTokenManager_GetToken(t *testing.T) {
	t.Run("returns saved token without persisting", func(t *testing.T) {
		persister := &recordingPersister{}
		manager := NewSessionTokenManager(&ExchangeConfig{
			Credential: passcodeCredential("shield-42"),
		}, persister, "production", "saved-token", time.Now().Add(1*time.Hour))

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "saved-token", token)

		_, _, calls := persister.snapshot()
		assert.Equal(t, 0, calls)
	})

	t.Run("persists a newly exchanged token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"expires_in":   3600,
			})
		}))
		defer server.Close()

		persister := &recordingPersister{}
		manager := NewSessionTokenManager(&ExchangeConfig{
			TokenURL:   server.URL + "/token",
			Credential: passcodeCredential("shield-42"),
		}, persister, "production", "expired-token", time.Now().Add(-1*time.Hour))

		token, err := manager.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", token)

		// Persistence happens off the request path.
		assert.Eventually(t, func() bool {
			gateway, persisted, calls := persister.snapshot()

			return calls == 1 && gateway == "production" && persisted == "fresh-token"
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestSessionTokenManager_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "refreshed-token"})
	}))
	defer server.Close()

	persister := &recordingPersister{}
	manager := NewSessionTokenManager(&ExchangeConfig{
		TokenURL:   server.URL + "/token",
		Credential: passcodeCredential("shield-42"),
	}, persister, "production", "saved-token", time.Now().Add(1*time.Hour))

	err := manager.RefreshToken(context.Background())
	require.NoError(t, err)

	gateway, persisted, calls := persister.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "production", gateway)
	assert.Equal(t, "refreshed-token", persisted)
}

func TestSessionTokenManager_Expiry(t *testing.T) {
	manager := NewSessionTokenManager(&ExchangeConfig{
		Credential: passcodeCredential("shield-42"),
	}, nil, "production", "saved-token", time.Now().Add(10*time.Minute))

	assert.True(t, manager.IsTokenExpiringSoon(15*time.Minute))
	assert.False(t, manager.IsTokenExpiringSoon(5*time.Minute))

	expiry := manager.GetTokenExpiry()
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiry, time.Second)
}

func TestSessionTokenManager_SetToken(t *testing.T) {
	persister := &recordingPersister{}
	manager := NewSessionTokenManager(&ExchangeConfig{
		Credential: passcodeCredential("shield-42"),
	}, persister, "production", "", time.Time{})

	manager.SetToken("injected-token", time.Now().Add(1*time.Hour))

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "injected-token", token)

	// A manually set token is already known, so nothing repersists.
	_, _, calls := persister.snapshot()
	assert.Equal(t, 0, calls)
}

func TestSessionTokenManager_Apply(t *testing.T) {
	manager := NewSessionTokenManager(&ExchangeConfig{
		Credential: passcodeCredential("shield-42"),
	}, nil, "production", "session-token", time.Now().Add(1*time.Hour))

	header := http.Header{}
	require.NoError(t, manager.Apply(context.Background(), header))
	assert.Equal(t, "Bearer session-token", header.Get("Authorization"))
}

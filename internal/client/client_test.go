package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thammuio/flowgate/internal/auth"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
)

func TestNew(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		_, err := New(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, flow.ErrConfigRequired)
	})

	t.Run("requires an endpoint", func(t *testing.T) {
		_, err := New(context.Background(), &flow.Config{AccessToken: "test-token"})
		require.Error(t, err)
		assert.ErrorIs(t, err, flow.ErrNoEndpoint)
	})

	t.Run("requires credentials", func(t *testing.T) {
		_, err := New(context.Background(), &flow.Config{GatewayURL: "https://gw.example.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, flow.ErrNoCredentials)
	})

	t.Run("derives the API base from the gateway URL", func(t *testing.T) {
		client, err := New(context.Background(), &flow.Config{
			GatewayURL:  "https://gw.example.com",
			AccessToken: "test-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://gw.example.com/flow-api", client.baseURL)
	})

	t.Run("trims a trailing slash from the gateway URL", func(t *testing.T) {
		client, err := New(context.Background(), &flow.Config{
			GatewayURL:  "https://gw.example.com/",
			AccessToken: "test-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://gw.example.com/flow-api", client.baseURL)
	})

	t.Run("prefers an explicit API base", func(t *testing.T) {
		client, err := New(context.Background(), &flow.Config{
			GatewayURL:  "https://gw.example.com",
			APIBase:     "https://edge.example.com/custom/",
			AccessToken: "test-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://edge.example.com/custom", client.baseURL)
	})
}

func TestNew_CredentialPrecedence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// With every credential configured, the bearer token wins.
		assert.Equal(t, "Bearer the-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Cookie"))
		assert.Empty(t, r.Header.Get("X-Gateway-Passcode"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := New(context.Background(), &flow.Config{
		APIBase:     server.URL,
		AccessToken: "the-token",
		Cookie:      "flow-session=abc123",
		Passcode:    "123456",
		Username:    "operator",
		Password:    "hunter2",
	})
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestNew_CookieCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "flow-session=abc123", r.Header.Get("Cookie"))
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := New(context.Background(), &flow.Config{
		APIBase: server.URL,
		Cookie:  "flow-session=abc123",
	})
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestNew_PasscodeHeaderFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Without a token endpoint the passcode is presented directly.
		assert.Equal(t, "123456", r.Header.Get("X-Gateway-Passcode"))
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := New(context.Background(), &flow.Config{
		APIBase:  server.URL,
		Passcode: "123456",
	})
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestNew_PasscodeExchange(t *testing.T) {
	tokenCalls := 0

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++

		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("passcode:987654"))
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		assert.Equal(t, "flowgate", r.Header.Get("X-Requested-By"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "minted-token",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer minted-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := New(context.Background(), &flow.Config{
		APIBase:       server.URL,
		Passcode:      "987654",
		TokenEndpoint: tokenServer.URL + "/token",
	})
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)

	// Both reads ride on the single exchanged token.
	assert.Equal(t, 1, tokenCalls)
}

func TestNew_BasicAuthFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "operator", username)
		assert.Equal(t, "hunter2", password)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := New(context.Background(), &flow.Config{
		APIBase:  server.URL,
		Username: "operator",
		Password: "hunter2",
	})
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestNew_SkipTLSVerifyRequiresDevMode(t *testing.T) {
	t.Setenv(constants.EnvDevMode, "")

	_, err := New(context.Background(), &flow.Config{
		APIBase:       "https://gw.example.com",
		AccessToken:   "test-token",
		SkipTLSVerify: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrSkipTLSOnlyInDev)
	assert.Contains(t, err.Error(), constants.EnvDevMode)
}

func TestNew_SkipTLSVerifyInDevMode(t *testing.T) {
	t.Setenv(constants.EnvDevMode, constants.BooleanTrue)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(aboutResponse("2.1.0"))
	}))
	defer server.Close()

	config := newTestConfig(server.URL)
	config.SkipTLSVerify = true

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	about, err := client.About(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", about.Version)
}

func TestNew_CABundle(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(aboutResponse("2.1.0"))
	}))
	defer server.Close()

	bundle := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: server.Certificate().Raw,
	})

	bundlePath := filepath.Join(t.TempDir(), "gateway-ca.pem")
	require.NoError(t, os.WriteFile(bundlePath, bundle, 0o600))

	config := newTestConfig(server.URL)
	config.CABundle = bundlePath

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	about, err := client.About(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", about.Version)
}

func TestNew_CABundleUnreadable(t *testing.T) {
	config := newTestConfig("https://gw.example.com")
	config.CABundle = filepath.Join(t.TempDir(), "missing.pem")

	_, err := New(context.Background(), config)
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrCABundleUnreadable)
}

func TestNew_CABundleInvalid(t *testing.T) {
	bundlePath := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(bundlePath, []byte("not a certificate"), 0o600))

	config := newTestConfig("https://gw.example.com")
	config.CABundle = bundlePath

	_, err := New(context.Background(), config)
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrCABundleInvalid)
}

func TestNew_ProbeOnInit(t *testing.T) {
	aboutCalls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flow/about", r.URL.Path)

		aboutCalls++

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(aboutResponse("2.1.0"))
	}))
	defer server.Close()

	config := newTestConfig(server.URL)
	config.ProbeOnInit = true

	client, err := New(context.Background(), config)
	require.NoError(t, err)
	assert.Equal(t, 1, aboutCalls)

	// The snapshot from construction is reused.
	capabilities, err := client.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, capabilities.Known)
	assert.Equal(t, 1, aboutCalls)
}

func TestClient_ReadOnlyBlocksMutations(t *testing.T) {
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := newTestConfig(server.URL)
	config.AllowWrites = false

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"entity update", func() error {
			_, err := client.Entities().Update(ctx, "proc-1", nil)

			return err
		}},
		{"entity state change", func() error {
			_, err := client.Entities().SetState(ctx, "proc-1", flow.VerbStart)

			return err
		}},
		{"entity delete", func() error {
			return client.Entities().Delete(ctx, "proc-1")
		}},
		{"connection delete", func() error {
			return client.Connections().Delete(ctx, "conn-1")
		}},
		{"group bulk", func() error {
			_, err := client.Groups().Bulk(ctx, "group-1", flow.VerbStop)

			return err
		}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			err := testCase.call()
			require.Error(t, err)
			assert.True(t, flow.IsReadOnly(err))
		})
	}

	// Every mutation is rejected before any request goes out.
	assert.Equal(t, 0, requests)
}

func TestClient_ReadOnlyAllowsReads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 3, flow.StateRunning))
	}))
	defer server.Close()

	config := newTestConfig(server.URL)
	config.AllowWrites = false

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	entity, err := client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
	assert.Equal(t, "proc-1", entity.ID)
}

func TestClient_ResourceAccessors(t *testing.T) {
	client, err := New(context.Background(), &flow.Config{
		GatewayURL:  "https://gw.example.com",
		AccessToken: "test-token",
	})
	require.NoError(t, err)

	assert.NotNil(t, client.Entities())
	assert.NotNil(t, client.Connections())
	assert.NotNil(t, client.Groups())
}

// headerCredentials lets callers plug in their own credential provider.
type headerCredentials struct {
	name  string
	value string
}

func (h *headerCredentials) Apply(ctx context.Context, header http.Header) error {
	header.Set(h.name, h.value)

	return nil
}

func (h *headerCredentials) Refresh(ctx context.Context) error {
	return flow.ErrCredentialNotRefreshable
}

func TestNewWithCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cr3t", r.Header.Get("X-Custom-Auth"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entityJSON("proc-1", 1, flow.StateRunning))
	}))
	defer server.Close()

	client, err := NewWithCredentials(
		&flow.Config{APIBase: server.URL},
		&headerCredentials{name: "X-Custom-Auth", value: "s3cr3t"},
	)
	require.NoError(t, err)

	_, err = client.Entities().Get(context.Background(), "proc-1")
	require.NoError(t, err)
}

func TestTokenCacheAdapter(t *testing.T) {
	manager := flow.NewCacheManager(flow.NewMemoryCache(10), nil)
	adapter := &tokenCacheAdapter{manager: manager}
	ctx := context.Background()

	token := &auth.Token{
		AccessToken: "cached-token",
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	require.NoError(t, adapter.Set(ctx, "token:abc", token))

	got, err := adapter.Get(ctx, "token:abc")
	require.NoError(t, err)
	assert.Equal(t, "cached-token", got.AccessToken)
	assert.Equal(t, "bearer", got.TokenType)

	require.NoError(t, adapter.Delete(ctx, "token:abc"))

	_, err = adapter.Get(ctx, "token:abc")
	require.Error(t, err)
}

func TestTokenCacheAdapter_ExpiredTokenNotStored(t *testing.T) {
	manager := flow.NewCacheManager(flow.NewMemoryCache(10), nil)
	adapter := &tokenCacheAdapter{manager: manager}
	ctx := context.Background()

	expired := &auth.Token{
		AccessToken: "stale-token",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}

	require.NoError(t, adapter.Set(ctx, "token:old", expired))

	_, err := adapter.Get(ctx, "token:old")
	require.Error(t, err)
}

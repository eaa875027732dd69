package auth_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thammuio/flowgate/internal/auth"
	"github.com/thammuio/flowgate/pkg/flow"
)

func TestResolveCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    string
		cookie   string
		passcode string
		username string
		password string
		expected auth.Scheme
	}{
		{
			name:     "bearer wins over everything",
			token:    "tok",
			cookie:   "cookie",
			passcode: "pass",
			username: "user",
			password: "pw",
			expected: auth.SchemeBearer,
		},
		{
			name:     "cookie wins over passcode and basic",
			cookie:   "cookie",
			passcode: "pass",
			username: "user",
			expected: auth.SchemeCookie,
		},
		{
			name:     "passcode wins over basic",
			passcode: "pass",
			username: "user",
			password: "pw",
			expected: auth.SchemePasscode,
		},
		{
			name:     "basic when nothing else",
			username: "user",
			password: "pw",
			expected: auth.SchemeBasic,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			credential, err := auth.ResolveCredential(tt.token, tt.cookie, tt.passcode, tt.username, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, credential.Scheme)
		})
	}

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()

		_, err := auth.ResolveCredential("", "", "", "", "")
		assert.ErrorIs(t, err, flow.ErrNoCredentials)
	})
}

func TestCredential_Fingerprint(t *testing.T) {
	t.Parallel()

	passcode := &auth.Credential{Scheme: auth.SchemePasscode, Passcode: "shield-42"}

	fingerprint := passcode.Fingerprint()
	assert.Len(t, fingerprint, 12)
	assert.NotContains(t, fingerprint, "shield")

	// Deterministic per credential, distinct across credentials.
	assert.Equal(t, fingerprint, passcode.Fingerprint())

	other := &auth.Credential{Scheme: auth.SchemePasscode, Passcode: "shield-43"}
	assert.NotEqual(t, fingerprint, other.Fingerprint())

	bearer := &auth.Credential{Scheme: auth.SchemeBearer, Token: "shield-42"}
	assert.NotEqual(t, fingerprint, bearer.Fingerprint())
}

func TestStaticTokenCredentials(t *testing.T) {
	t.Parallel()

	credentials := auth.NewStaticTokenCredentials("static-token")

	header := http.Header{}
	require.NoError(t, credentials.Apply(context.Background(), header))
	assert.Equal(t, "Bearer static-token", header.Get("Authorization"))

	assert.ErrorIs(t, credentials.Refresh(context.Background()), flow.ErrCredentialNotRefreshable)
	assert.Len(t, credentials.Fingerprint(), 12)
}

func TestCookieCredentials(t *testing.T) {
	t.Parallel()

	credentials := auth.NewCookieCredentials("hadoop-jwt=abc123")

	header := http.Header{}
	require.NoError(t, credentials.Apply(context.Background(), header))
	assert.Equal(t, "hadoop-jwt=abc123", header.Get("Cookie"))

	assert.ErrorIs(t, credentials.Refresh(context.Background()), flow.ErrCredentialNotRefreshable)
}

func TestPasscodeHeaderCredentials(t *testing.T) {
	t.Parallel()

	credentials := auth.NewPasscodeHeaderCredentials("shield-42")

	header := http.Header{}
	require.NoError(t, credentials.Apply(context.Background(), header))
	assert.Equal(t, "shield-42", header.Get("X-Gateway-Passcode"))

	assert.ErrorIs(t, credentials.Refresh(context.Background()), flow.ErrCredentialNotRefreshable)
}

func TestBasicAuthCredentials(t *testing.T) {
	t.Parallel()

	credentials := auth.NewBasicAuthCredentials("operator", "hunter2")

	header := http.Header{}
	require.NoError(t, credentials.Apply(context.Background(), header))

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("operator:hunter2"))
	assert.Equal(t, expected, header.Get("Authorization"))

	assert.ErrorIs(t, credentials.Refresh(context.Background()), flow.ErrCredentialNotRefreshable)
}

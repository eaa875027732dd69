package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// ConfigPersister saves tokens back to the CLI config so later
// invocations reuse a session instead of exchanging again.
type ConfigPersister interface {
	UpdateGatewayToken(gateway, token string, expiresAt time.Time) error
}

// SessionTokenManager wraps ExchangeTokenManager and automatically
// persists tokens to the configured gateway entry.
type SessionTokenManager struct {
	exchangeManager *ExchangeTokenManager
	configPersister ConfigPersister
	gateway         string
	mutex           sync.RWMutex
	lastToken       string
	lastExpiry      time.Time
}

// NewSessionTokenManager creates a config-persisting token manager. A
// token saved by a previous login seeds the store so valid sessions
// skip the exchange entirely.
func NewSessionTokenManager(config *ExchangeConfig, configPersister ConfigPersister, gateway string, savedToken string, savedExpiry time.Time) *SessionTokenManager {
	exchangeManager := NewExchangeTokenManager(config)

	if savedToken != "" {
		exchangeManager.SetToken(savedToken, savedExpiry)
	}

	return &SessionTokenManager{
		exchangeManager: exchangeManager,
		configPersister: configPersister,
		gateway:         gateway,
		lastToken:       savedToken,
		lastExpiry:      savedExpiry,
	}
}

// GetToken returns a valid access token, exchanging if necessary.
func (m *SessionTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	token, err := m.exchangeManager.GetToken(ctx)
	if err != nil {
		return "", err
	}

	// Persist the token when the exchange manager minted a new one.
	currentToken := m.exchangeManager.CurrentToken()
	if currentToken != nil && (currentToken.AccessToken != m.lastToken || !currentToken.ExpiresAt.Equal(m.lastExpiry)) {
		go func() {
			persistErr := m.persistToken(currentToken)
			if persistErr != nil {
				// Log error but don't fail the request
				_, _ = fmt.Fprintf(os.Stderr, "Warning: failed to persist session token: %v\n", persistErr)
			}
		}()

		m.lastToken = currentToken.AccessToken
		m.lastExpiry = currentToken.ExpiresAt
	}

	return token, nil
}

// RefreshToken forces a new exchange and persists the result.
func (m *SessionTokenManager) RefreshToken(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	err := m.exchangeManager.RefreshToken(ctx)
	if err != nil {
		return err
	}

	currentToken := m.exchangeManager.CurrentToken()
	if currentToken != nil {
		persistErr := m.persistToken(currentToken)
		if persistErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: failed to persist session token: %v\n", persistErr)
		}

		m.lastToken = currentToken.AccessToken
		m.lastExpiry = currentToken.ExpiresAt
	}

	return nil
}

// SetToken manually sets the access token.
func (m *SessionTokenManager) SetToken(token string, expiresAt time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.exchangeManager.SetToken(token, expiresAt)
	m.lastToken = token
	m.lastExpiry = expiresAt
}

// Apply attaches the session token as a bearer Authorization header.
func (m *SessionTokenManager) Apply(ctx context.Context, header http.Header) error {
	token, err := m.GetToken(ctx)
	if err != nil {
		return err
	}

	header.Set("Authorization", "Bearer "+token)

	return nil
}

// Refresh forces a new exchange after an unauthorized response.
func (m *SessionTokenManager) Refresh(ctx context.Context) error {
	return m.RefreshToken(ctx)
}

// ConfigureTransport applies TLS settings to the exchange transport.
func (m *SessionTokenManager) ConfigureTransport(tlsConfig *tls.Config) {
	m.exchangeManager.ConfigureTransport(tlsConfig)
}

// IsTokenExpiringSoon returns true if the token expires within the given duration.
func (m *SessionTokenManager) IsTokenExpiringSoon(within time.Duration) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	token := m.exchangeManager.CurrentToken()
	if token == nil {
		return true
	}

	return time.Now().Add(within).After(token.ExpiresAt)
}

// GetTokenExpiry returns the current token's expiration time.
func (m *SessionTokenManager) GetTokenExpiry() time.Time {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	token := m.exchangeManager.CurrentToken()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

// persistToken saves the token to config. A nil persister means the
// session is ad-hoc and there is nothing to save.
func (m *SessionTokenManager) persistToken(token *Token) error {
	if m.configPersister == nil {
		return nil
	}

	err := m.configPersister.UpdateGatewayToken(m.gateway, token.AccessToken, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update gateway token: %w", err)
	}

	return nil
}

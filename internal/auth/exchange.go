package auth

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
)

// TokenCache stores exchanged tokens outside the process, so that a
// fleet of clients sharing one passcode exchanges it once. Implementations
// must be safe for concurrent use.
type TokenCache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Set(ctx context.Context, key string, token *Token) error
	Delete(ctx context.Context, key string) error
}

// ExchangeConfig configures token exchange against the gateway.
type ExchangeConfig struct {
	// TokenURL is the full exchange endpoint URL.
	TokenURL string

	// Credential must use the passcode or basic scheme.
	Credential *Credential

	// RequestedBy is sent as the X-Requested-By header. Defaults to the
	// client name.
	RequestedBy string

	// FallbackTTL bounds token lifetime when the response carries no
	// expiry of its own. Defaults to one hour.
	FallbackTTL time.Duration

	// HTTPClient is used for exchange requests. Defaults to a client
	// with a short timeout.
	HTTPClient *http.Client

	// RetryMax bounds retries of transient exchange failures.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Cache, when set, shares exchanged tokens across processes.
	Cache TokenCache
}

// ExchangeTokenManager trades a passcode or username/password for a
// gateway token and keeps it fresh. Concurrent callers needing a token
// trigger at most one exchange.
type ExchangeTokenManager struct {
	config   *ExchangeConfig
	store    *TokenStore
	client   *http.Client
	cacheKey string
	group    singleflight.Group
}

// NewExchangeTokenManager creates a token manager for the given config.
func NewExchangeTokenManager(config *ExchangeConfig) *ExchangeTokenManager {
	if config.FallbackTTL <= 0 {
		config.FallbackTTL = constants.DefaultTokenTTL
	}

	if config.RequestedBy == "" {
		config.RequestedBy = constants.ClientName
	}

	if config.RetryMax < 0 {
		config.RetryMax = 0
	}

	if config.RetryWaitMin <= 0 {
		config.RetryWaitMin = constants.DefaultRetryWaitMin
	}

	if config.RetryWaitMax <= 0 {
		config.RetryWaitMax = constants.DefaultRetryWaitMax
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: constants.ShortHTTPTimeout}
	}

	manager := &ExchangeTokenManager{
		config: config,
		store:  NewTokenStore(),
		client: client,
	}

	if config.Credential != nil {
		manager.cacheKey = "token:" + config.Credential.Fingerprint()
	}

	return manager
}

// NewGatewayTokenManager creates a token manager for a gateway API base
// URL, deriving the exchange endpoint from it.
func NewGatewayTokenManager(apiBase string, credential *Credential) *ExchangeTokenManager {
	return NewExchangeTokenManager(&ExchangeConfig{
		TokenURL:   strings.TrimSuffix(apiBase, "/") + constants.DefaultTokenPath,
		Credential: credential,
		RetryMax:   constants.DefaultRetryMax,
	})
}

// GetToken returns a valid token, exchanging credentials if the stored
// one is missing or expiring.
func (m *ExchangeTokenManager) GetToken(ctx context.Context) (string, error) {
	if token := m.store.Get(); token.Valid() {
		return token.AccessToken, nil
	}

	if token := m.cachedToken(ctx); token != nil {
		m.store.Set(token)

		return token.AccessToken, nil
	}

	token, err := m.exchangeOnce(ctx)
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// SetToken stores a token obtained elsewhere, such as a persisted login.
func (m *ExchangeTokenManager) SetToken(accessToken string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// CurrentToken returns the stored token without triggering an exchange.
func (m *ExchangeTokenManager) CurrentToken() *Token {
	return m.store.Get()
}

// ConfigureTransport replaces the exchange HTTP client with one using the
// given TLS configuration. A client supplied through ExchangeConfig wins.
func (m *ExchangeTokenManager) ConfigureTransport(tlsConfig *tls.Config) {
	if m.config.HTTPClient != nil || tlsConfig == nil {
		return
	}

	m.client = &http.Client{
		Timeout:   constants.ShortHTTPTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
}

// RefreshToken discards the stored token and exchanges credentials again.
func (m *ExchangeTokenManager) RefreshToken(ctx context.Context) error {
	m.store.Clear()

	if m.config.Cache != nil && m.cacheKey != "" {
		_ = m.config.Cache.Delete(ctx, m.cacheKey)
	}

	_, err := m.exchangeOnce(ctx)

	return err
}

// Apply attaches the current token as a bearer Authorization header,
// exchanging credentials first if needed.
func (m *ExchangeTokenManager) Apply(ctx context.Context, header http.Header) error {
	token, err := m.GetToken(ctx)
	if err != nil {
		return err
	}

	header.Set("Authorization", "Bearer "+token)

	return nil
}

// Refresh forces a new exchange. The transport calls this once after an
// unauthorized response before replaying the request.
func (m *ExchangeTokenManager) Refresh(ctx context.Context) error {
	return m.RefreshToken(ctx)
}

// Fingerprint identifies the underlying credential for logs.
func (m *ExchangeTokenManager) Fingerprint() string {
	if m.config.Credential == nil {
		return ""
	}

	return m.config.Credential.Fingerprint()
}

func (m *ExchangeTokenManager) cachedToken(ctx context.Context) *Token {
	if m.config.Cache == nil || m.cacheKey == "" {
		return nil
	}

	token, err := m.config.Cache.Get(ctx, m.cacheKey)
	if err != nil || !token.Valid() {
		return nil
	}

	return token
}

// exchangeOnce collapses concurrent exchange attempts into a single
// request. Callers that lose the race receive the winner's token.
func (m *ExchangeTokenManager) exchangeOnce(ctx context.Context) (*Token, error) {
	result, err, _ := m.group.Do("exchange", func() (interface{}, error) {
		// A racing caller may have already stored a fresh token.
		if token := m.store.Get(); token.Valid() {
			return token, nil
		}

		token, err := m.exchange(ctx)
		if err != nil {
			return nil, err
		}

		m.store.Set(token)

		if m.config.Cache != nil && m.cacheKey != "" {
			_ = m.config.Cache.Set(ctx, m.cacheKey, token)
		}

		return token, nil
	})
	if err != nil {
		return nil, err
	}

	token, ok := result.(*Token)
	if !ok {
		return nil, fmt.Errorf("unexpected exchange result type %T", result)
	}

	return token, nil
}

func (m *ExchangeTokenManager) exchange(ctx context.Context) (*Token, error) {
	cred := m.config.Credential
	if cred == nil || (cred.Scheme != SchemePasscode && cred.Scheme != SchemeBasic) {
		return nil, fmt.Errorf("%w: token exchange needs a passcode or username/password", flow.ErrNoCredentials)
	}

	var lastErr error

	for attempt := 0; attempt <= m.config.RetryMax; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt, m.config.RetryWaitMin, m.config.RetryWaitMax); err != nil {
				return nil, err
			}
		}

		token, retryable, err := m.requestToken(ctx)
		if err == nil {
			return token, nil
		}

		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("token exchange failed after %d attempts: %w", m.config.RetryMax+1, lastErr)
}

// requestToken performs one exchange round trip. The second return
// value reports whether the failure is worth retrying.
func (m *ExchangeTokenManager) requestToken(ctx context.Context) (*Token, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.TokenURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Authorization", m.config.Credential.basicAuthValue())
	req.Header.Set(constants.HeaderRequestedBy, m.config.RequestedBy)
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := flow.NewAPIError(http.MethodGet, tokenPath(m.config.TokenURL), resp.StatusCode, body)
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests

		return nil, retryable, apiErr
	}

	token, err := parseTokenResponse(body, m.config.FallbackTTL)
	if err != nil {
		return nil, false, err
	}

	return token, false, nil
}

// parseTokenResponse accepts the shapes gateways actually return: a
// JSON envelope, a bare JWT, or a base64-wrapped JWT.
func parseTokenResponse(body []byte, fallbackTTL time.Duration) (*Token, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return nil, flow.ErrEmptyTokenResponse
	}

	var envelope struct {
		AccessToken  string `json:"access_token"`
		Token        string `json:"token"`
		AccessToken2 string `json:"accessToken"`
		ExpiresIn    int64  `json:"expires_in"`
	}

	accessToken := ""
	expiresIn := int64(0)

	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.AccessToken != "":
			accessToken = envelope.AccessToken
		case envelope.Token != "":
			accessToken = envelope.Token
		case envelope.AccessToken2 != "":
			accessToken = envelope.AccessToken2
		}
		expiresIn = envelope.ExpiresIn
	}

	if accessToken == "" {
		switch {
		case LooksLikeJWT(raw):
			accessToken = raw
		default:
			if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && LooksLikeJWT(string(decoded)) {
				accessToken = string(decoded)
			}
		}
	}

	if accessToken == "" {
		return nil, flow.ErrEmptyTokenResponse
	}

	token := &Token{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}

	// Prefer the expiry baked into the token, then the envelope's
	// expires_in, then the configured fallback.
	if expiresAt, err := ParseJWTExpiry(accessToken); err == nil {
		token.ExpiresAt = expiresAt
	} else if expiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	} else {
		token.ExpiresAt = time.Now().Add(fallbackTTL)
	}

	return token, nil
}

func sleepBackoff(ctx context.Context, attempt int, waitMin, waitMax time.Duration) error {
	wait := waitMin
	for i := 1; i < attempt; i++ {
		wait *= constants.ExponentialBackoffBase
	}

	if wait > waitMax {
		wait = waitMax
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func tokenPath(tokenURL string) string {
	parsed, err := url.Parse(tokenURL)
	if err != nil || parsed.Path == "" {
		return constants.DefaultTokenPath
	}

	return parsed.Path
}

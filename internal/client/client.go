package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/thammuio/flowgate/internal/auth"
	"github.com/thammuio/flowgate/internal/constants"
	flowhttp "github.com/thammuio/flowgate/internal/http"
	"github.com/thammuio/flowgate/pkg/flow"
)

// Client implements the flow.Client interface.
type Client struct {
	httpClient  *flowhttp.Client
	credentials flowhttp.Credentials
	baseURL     string
	logger      flow.Logger

	gate  *safetyGate
	probe *versionProbe

	// Resource clients
	entities    flow.EntitiesClient
	connections flow.ConnectionsClient
	groups      flow.GroupsClient
}

// New creates a client for the flow service behind the configured gateway.
func New(ctx context.Context, config *flow.Config) (*Client, error) {
	if config == nil {
		return nil, flow.ErrConfigRequired
	}

	apiBase, err := resolveAPIBase(config)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := buildTLSConfig(config)
	if err != nil {
		return nil, err
	}

	cacheManager, err := createCacheManager(config)
	if err != nil {
		return nil, err
	}

	// Resolve the active credential scheme before any network access
	credentials, err := buildCredentials(config, tlsConfig, cacheManager)
	if err != nil {
		return nil, err
	}

	httpOpts := createHTTPClientOptions(config, tlsConfig, cacheManager)
	httpClient := flowhttp.NewClient(apiBase, credentials, httpOpts...)

	client := newWithTransport(config, httpClient, credentials, apiBase, cacheManager)

	// Probe capabilities if requested
	if config.ProbeOnInit {
		_, _ = client.Capabilities(ctx) // Ignore error as probing is optional
	}

	return client, nil
}

// NewWithCredentials creates a client that authenticates with the given
// credential provider instead of resolving one from the config.
func NewWithCredentials(config *flow.Config, credentials flowhttp.Credentials) (*Client, error) {
	if config == nil {
		return nil, flow.ErrConfigRequired
	}

	apiBase, err := resolveAPIBase(config)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := buildTLSConfig(config)
	if err != nil {
		return nil, err
	}

	cacheManager, err := createCacheManager(config)
	if err != nil {
		return nil, err
	}

	// Token managers exchange against the gateway over their own transport,
	// which needs the same TLS settings as the main one.
	if tlsConfig != nil {
		if configurable, ok := credentials.(interface{ ConfigureTransport(*tls.Config) }); ok {
			configurable.ConfigureTransport(tlsConfig)
		}
	}

	httpOpts := createHTTPClientOptions(config, tlsConfig, cacheManager)
	httpClient := flowhttp.NewClient(apiBase, credentials, httpOpts...)

	client := newWithTransport(config, httpClient, credentials, apiBase, cacheManager)

	if config.ProbeOnInit {
		ctx := context.Background()
		_, _ = client.Capabilities(ctx) // Ignore error as probing is optional
	}

	return client, nil
}

// newWithTransport wires the gate, probe, and resource clients around a
// built transport.
func newWithTransport(config *flow.Config, httpClient *flowhttp.Client, credentials flowhttp.Credentials, apiBase string, cacheManager *flow.CacheManager) *Client {
	client := &Client{
		httpClient:  httpClient,
		credentials: credentials,
		baseURL:     apiBase,
		logger:      config.Logger,
		gate:        newSafetyGate(config.AllowWrites, config.AllowedVerbs),
		probe:       newVersionProbe(httpClient, config.Logger, cacheManager, apiBase),
	}

	client.initializeResourceClients(config)

	return client
}

// resolveAPIBase returns the service API base, deriving it from the
// gateway URL when no explicit base is configured.
func resolveAPIBase(config *flow.Config) (string, error) {
	if config.APIBase != "" {
		return strings.TrimSuffix(config.APIBase, "/"), nil
	}

	if config.GatewayURL != "" {
		return strings.TrimSuffix(config.GatewayURL, "/") + constants.DefaultAPIBasePath, nil
	}

	return "", flow.ErrNoEndpoint
}

// buildTLSConfig assembles TLS settings from config. Skipping verification
// is refused outside dev mode.
func buildTLSConfig(config *flow.Config) (*tls.Config, error) {
	if !config.SkipTLSVerify && config.CABundle == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.SkipTLSVerify {
		if !devModeEnabled() {
			return nil, fmt.Errorf("%w (set %s=%s)", flow.ErrSkipTLSOnlyInDev, constants.EnvDevMode, constants.BooleanTrue)
		}

		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- Protected by development environment check above
	}

	if config.CABundle != "" {
		pem, err := os.ReadFile(config.CABundle) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("%w: %s", flow.ErrCABundleUnreadable, config.CABundle)
		}

		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}

		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", flow.ErrCABundleInvalid, config.CABundle)
		}

		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// devModeEnabled reports whether the dev-mode environment switch is set.
func devModeEnabled() bool {
	value := os.Getenv(constants.EnvDevMode)

	return value == constants.BooleanTrue || value == "1"
}

// createCacheManager builds the shared cache from config. A nil cache
// section leaves caching off.
func createCacheManager(config *flow.Config) (*flow.CacheManager, error) {
	if config.Cache == nil {
		return nil, nil
	}

	backend, err := flow.NewCacheFromConfig(config.Cache)
	if err != nil {
		return nil, fmt.Errorf("building cache backend: %w", err)
	}

	return flow.NewCacheManager(backend, config.Logger), nil
}

// buildCredentials resolves the active credential scheme and wraps it in a
// provider the transport applies to every request.
func buildCredentials(config *flow.Config, tlsConfig *tls.Config, cacheManager *flow.CacheManager) (flowhttp.Credentials, error) {
	credential, err := auth.ResolveCredential(config.AccessToken, config.Cookie, config.Passcode, config.Username, config.Password)
	if err != nil {
		return nil, err
	}

	switch credential.Scheme {
	case auth.SchemeBearer:
		return auth.NewStaticTokenCredentials(credential.Token), nil

	case auth.SchemeCookie:
		return auth.NewCookieCredentials(credential.Cookie), nil

	case auth.SchemePasscode:
		if config.TokenEndpoint == "" {
			return auth.NewPasscodeHeaderCredentials(credential.Passcode), nil
		}

		return newExchangeCredentials(config, credential, tlsConfig, cacheManager), nil

	case auth.SchemeBasic:
		if config.TokenEndpoint == "" {
			return auth.NewBasicAuthCredentials(credential.Username, credential.Password), nil
		}

		return newExchangeCredentials(config, credential, tlsConfig, cacheManager), nil

	default:
		return nil, flow.ErrNoCredentials
	}
}

// newExchangeCredentials builds a token manager that trades the credential
// for a gateway token at the configured exchange endpoint.
func newExchangeCredentials(config *flow.Config, credential *auth.Credential, tlsConfig *tls.Config, cacheManager *flow.CacheManager) *auth.ExchangeTokenManager {
	exchangeConfig := &auth.ExchangeConfig{
		TokenURL:     config.TokenEndpoint,
		Credential:   credential,
		FallbackTTL:  config.TokenTTL,
		RetryMax:     constants.DefaultRetryMax,
		RetryWaitMin: config.RetryWaitMin,
		RetryWaitMax: config.RetryWaitMax,
	}

	if config.RetryMax > 0 {
		exchangeConfig.RetryMax = config.RetryMax
	}

	if tlsConfig != nil {
		exchangeConfig.HTTPClient = &http.Client{
			Timeout:   constants.ShortHTTPTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}
	}

	if cacheManager != nil {
		exchangeConfig.Cache = &tokenCacheAdapter{manager: cacheManager}
	}

	return auth.NewExchangeTokenManager(exchangeConfig)
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *flow.Config, tlsConfig *tls.Config, cacheManager *flow.CacheManager) []flowhttp.Option {
	var httpOpts []flowhttp.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, flowhttp.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, flowhttp.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, flowhttp.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, flowhttp.WithHTTPTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, flowhttp.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	if config.ProxyContextPath != "" {
		httpOpts = append(httpOpts, flowhttp.WithProxyContextPath(config.ProxyContextPath))
	}

	if tlsConfig != nil {
		httpOpts = append(httpOpts, flowhttp.WithTLSConfig(tlsConfig))
	}

	if config.RateLimitPerSecond > 0 {
		chain := flow.NewInterceptorChain()
		chain.AddRequestInterceptor(flow.RateLimitInterceptor(config.RateLimitPerSecond))
		httpOpts = append(httpOpts, flowhttp.WithInterceptors(chain))
	}

	if cacheManager != nil {
		httpOpts = append(httpOpts, flowhttp.WithCache(cacheManager, flow.DefaultCachingPolicy()))

		if config.Cache != nil && config.Cache.TTL > 0 {
			httpOpts = append(httpOpts, flowhttp.WithCacheTTL(config.Cache.TTL))
		}
	}

	return httpOpts
}

// Resource client accessors

// Entities implements flow.Client.Entities.
func (c *Client) Entities() flow.EntitiesClient {
	return c.entities
}

// Connections implements flow.Client.Connections.
func (c *Client) Connections() flow.ConnectionsClient {
	return c.connections
}

// Groups implements flow.Client.Groups.
func (c *Client) Groups() flow.GroupsClient {
	return c.groups
}

// About implements flow.Client.About.
func (c *Client) About(ctx context.Context) (*flow.About, error) {
	return c.probe.About(ctx)
}

// Capabilities implements flow.Client.Capabilities.
func (c *Client) Capabilities(ctx context.Context) (*flow.Capabilities, error) {
	return c.probe.Capabilities(ctx)
}

// Reprobe implements flow.Client.Reprobe.
func (c *Client) Reprobe(ctx context.Context) (*flow.Capabilities, error) {
	return c.probe.Reprobe(ctx)
}

// GetToken returns the bearer token the client is currently presenting,
// exchanging credentials first when needed. Credential schemes that do not
// produce a bearer token return an empty string.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	header := make(http.Header)

	err := c.credentials.Apply(ctx, header)
	if err != nil {
		return "", fmt.Errorf("applying credentials: %w", err)
	}

	value := header.Get("Authorization")
	if !strings.HasPrefix(value, "Bearer ") {
		return "", nil
	}

	return strings.TrimPrefix(value, "Bearer "), nil
}

// initializeResourceClients initializes all resource-specific clients.
func (c *Client) initializeResourceClients(config *flow.Config) {
	revisions := newRevisionCoordinator(c.httpClient)
	entities := NewEntitiesClient(c.httpClient, c.gate, c.probe, revisions)

	c.entities = entities
	c.connections = NewConnectionsClient(c.httpClient, c.gate, c.probe)
	c.groups = NewGroupsClient(c.httpClient, c.gate, c.probe, entities, concurrencyFor(config))
}

// concurrencyFor returns the bulk fan-out width from config.
func concurrencyFor(config *flow.Config) int {
	if config.BulkConcurrency > 0 {
		return config.BulkConcurrency
	}

	return constants.DefaultConcurrencyLimit
}

// tokenCacheAdapter exposes the shared cache as a token cache so exchanged
// tokens survive across client instances.
type tokenCacheAdapter struct {
	manager *flow.CacheManager
}

func (a *tokenCacheAdapter) Get(ctx context.Context, key string) (*auth.Token, error) {
	data, err := a.manager.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var token auth.Token

	err = json.Unmarshal(data, &token)
	if err != nil {
		return nil, fmt.Errorf("parsing cached token: %w", err)
	}

	return &token, nil
}

func (a *tokenCacheAdapter) Set(ctx context.Context, key string, token *auth.Token) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token for cache: %w", err)
	}

	return a.manager.Set(ctx, key, data, ttl)
}

func (a *tokenCacheAdapter) Delete(ctx context.Context, key string) error {
	return a.manager.Invalidate(ctx, key)
}

package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as the version
	// probe and token exchange.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits. Reads may be retried; mutations never are.
const (
	// DefaultRetryMax is the maximum number of retries for idempotent
	// read requests.
	DefaultRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExponentialBackoffBase is the base for exponential backoff.
	ExponentialBackoffBase = 2
)

// Concurrency limits.
const (
	// DefaultConcurrencyLimit bounds concurrent member operations in a
	// bulk fan-out.
	DefaultConcurrencyLimit = 3
)

// Token handling.
const (
	// TokenExpirationBuffer is the buffer time before token expiration.
	TokenExpirationBuffer = 30 * time.Second

	// DefaultTokenTTL is assumed when an exchange response carries no
	// expiry of its own.
	DefaultTokenTTL = 1 * time.Hour

	// TokenPartsCount is the expected number of parts in a JWT token.
	TokenPartsCount = 3

	// Base64PaddingLength is used for base64 padding calculations.
	Base64PaddingLength = 4
)

// Cache sizes and lifetimes.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default cache time-to-live.
	DefaultCacheTTL = 5 * time.Minute

	// CapabilitiesCacheTTL is the TTL for probed capability snapshots.
	CapabilitiesCacheTTL = 10 * time.Minute
)

// NATS KV cache settings.
const (
	// DefaultNATSBucket is the KV bucket used when none is configured.
	DefaultNATSBucket = "flowgate-cache"

	// NATSSetupTimeout bounds connecting to NATS and opening the bucket.
	NATSSetupTimeout = 10 * time.Second
)

// Wire headers.
const (
	// HeaderRequestedBy is required by the service on every mutation.
	HeaderRequestedBy = "X-Requested-By"

	// HeaderProxyContextPath carries the context path for deployments
	// behind a rewriting proxy.
	HeaderProxyContextPath = "X-ProxyContextPath"

	// HeaderGatewayPasscode carries a passcode directly when the gateway
	// exposes no exchange endpoint.
	HeaderGatewayPasscode = "X-Gateway-Passcode"
)

// Endpoint derivation.
const (
	// DefaultAPIBasePath is appended to the gateway URL when no explicit
	// API base is configured.
	DefaultAPIBasePath = "/flow-api"

	// DefaultTokenPath is the gateway's token exchange endpoint relative
	// to the gateway URL.
	DefaultTokenPath = "/token"
)

// Environment switches.
const (
	// EnvDevMode permits skipping TLS verification when set to "true".
	EnvDevMode = "FLOWGATE_DEV_MODE"
)

// Client identity.
const (
	// ClientName identifies this client in User-Agent and X-Requested-By
	// headers.
	ClientName = "flowgate"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"

	// JSONIndentSize is the number of spaces for JSON indentation.
	JSONIndentSize = 2

	// KeyValueSplitParts is the number of parts when splitting key=value
	// strings.
	KeyValueSplitParts = 2
)

// Boolean string constants.
const (
	// BooleanTrue string representation.
	BooleanTrue = "true"

	// BooleanFalse string representation.
	BooleanFalse = "false"
)

// Format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"
)

// Confirmation constants.
const (
	// ConfirmationYes for positive confirmations.
	ConfirmationYes = "yes"
)

package flow

import (
	"context"
	"errors"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrDeprecatedClientConstructor = errors.New("use github.com/thammuio/flowgate/pkg/flowclient.New to create a client")
)

// EntitiesClient provides access to versioned flow entities.
type EntitiesClient interface {
	// Get fetches a single entity with its current revision.
	Get(ctx context.Context, entityID string) (*Entity, error)
	// List queries entities. A nil params lists everything the caller may see.
	List(ctx context.Context, params *QueryParams) (*EntityList, error)
	// Update mutates the entity component under optimistic locking: the
	// current revision is fetched immediately before the write and attached
	// to the payload. A 409 from the service surfaces as *ConflictError
	// carrying the freshest snapshot; it is never retried here.
	Update(ctx context.Context, entityID string, update *EntityUpdate) (*Entity, error)
	// SetState applies a run-state verb (start/stop/enable/disable) to one
	// entity under the same fetch-then-mutate contract as Update.
	SetState(ctx context.Context, entityID string, verb Verb) (*Entity, error)
	// Delete removes the entity, sending the freshly fetched revision as a
	// query parameter. Destructive: gated by read-only mode.
	Delete(ctx context.Context, entityID string) error
}

// ConnectionsClient provides access to queue-bearing connections.
type ConnectionsClient interface {
	Get(ctx context.Context, connectionID string) (*Connection, error)
	// Status returns a fresh queue snapshot for the connection.
	Status(ctx context.Context, connectionID string) (*ConnectionStatus, error)
	// Delete removes the connection. The queue must be empty: a fresh status
	// read is performed immediately before the delete, and a non-empty queue
	// aborts with *PreconditionFailedError before any delete call is issued.
	Delete(ctx context.Context, connectionID string) error
}

// GroupsClient provides access to entity groups and bulk verbs.
type GroupsClient interface {
	Get(ctx context.Context, groupID string) (*Group, error)
	ListEntities(ctx context.Context, groupID string) ([]Entity, error)
	ListConnections(ctx context.Context, groupID string) ([]Connection, error)
	// Summary rolls up queue and run-state counts for a group. On services
	// without a summary endpoint (or while capabilities are unknown) the
	// roll-up is computed client-side and flagged Degraded.
	Summary(ctx context.Context, groupID string) (*GroupSummary, error)
	// Bulk applies a verb to every entity in the group with bounded
	// concurrency, collecting one result per member instead of aborting on
	// the first failure.
	Bulk(ctx context.Context, groupID string, verb Verb) (*BulkJob, error)
}

// Client is the top-level interface for talking to a gateway-fronted flow
// service.
type Client interface {
	Entities() EntitiesClient
	Connections() ConnectionsClient
	Groups() GroupsClient

	// About reads raw service version and build information.
	About(ctx context.Context) (*About, error)
	// Capabilities returns the probed capability snapshot, probing on first
	// use. A failed probe yields a snapshot with Known=false and an error
	// wrapping ErrUnknownCapability; the client stays usable with the most
	// conservative request shapes.
	Capabilities(ctx context.Context) (*Capabilities, error)
	// Reprobe forces a fresh probe and atomically replaces the snapshot.
	Reprobe(ctx context.Context) (*Capabilities, error)
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building a flow.Client.
//
// # Endpoint resolution
//
// APIBase, when set, is used verbatim (minus a trailing slash). Otherwise the
// base is derived from GatewayURL as "<gateway>/flow-api". At least one of the
// two must be provided.
//
// # Credential precedence
//
// Exactly one scheme becomes active, chosen in this fixed order regardless of
// which fields are set:
//  1. AccessToken: sent directly as "Authorization: Bearer".
//  2. Cookie: sent verbatim as the Cookie header.
//  3. Passcode: exchanged for a bearer token at TokenEndpoint when one is
//     configured; without a token endpoint the passcode is sent as the
//     X-Gateway-Passcode header.
//  4. Username/Password: exchanged at TokenEndpoint when configured,
//     otherwise sent as HTTP Basic on every request.
//
// If none are set, construction fails before any network access.
//
// # TLS
//
// CABundle names a PEM file appended to the system roots; an unreadable path
// is a construction-time error. SkipTLSVerify is honored only when the
// environment variable FLOWGATE_DEV_MODE is "true" or "1"; do not use it in
// production.
//
// # Safety
//
// Mutating calls are rejected before any I/O unless AllowWrites is true.
// AllowedVerbs, when non-empty, further restricts which bulk/state verbs may
// be issued.
type Config struct {
	// GatewayURL: security gateway base, e.g. "https://gw.example.com:8443/gateway/cdp-proxy".
	GatewayURL string
	// APIBase: explicit service API base; overrides GatewayURL derivation.
	APIBase string

	// Authentication options (provide one; precedence documented above)
	AccessToken string
	Cookie      string
	Passcode    string
	Username    string
	Password    string
	// TokenEndpoint: gateway token-exchange endpoint. Required for passcode
	// exchange; optional for username/password.
	TokenEndpoint string
	// TokenTTL: validity assumed for exchanged tokens whose response carries
	// no expiry. Zero selects the package default.
	TokenTTL time.Duration

	// Safety
	// AllowWrites: mutating and destructive calls are blocked pre-I/O until
	// this is set. The zero value keeps the client read-only.
	AllowWrites bool
	// AllowedVerbs: optional allowlist of run-state verbs (start, stop,
	// enable, disable). Empty permits all verbs once AllowWrites is set.
	AllowedVerbs []string

	// Transport
	// HTTPTimeout: per-request timeout applied by the transport. Most calls
	// should also carry a context deadline.
	HTTPTimeout time.Duration
	// RetryMax: maximum retries for idempotent reads on transient failures
	// (connection errors, 429, 5xx). Mutations are never auto-retried.
	RetryMax int
	// RetryWaitMin: minimum backoff between read retries.
	RetryWaitMin time.Duration
	// RetryWaitMax: maximum backoff between read retries.
	RetryWaitMax time.Duration
	// RateLimitPerSecond: client-side request rate cap; zero disables.
	RateLimitPerSecond int
	// BulkConcurrency bounds concurrent member operations in a group bulk
	// verb. Zero selects the package default.
	BulkConcurrency int
	// ProxyContextPath: when set, sent as X-ProxyContextPath on every request
	// for deployments behind a context-rewriting proxy.
	ProxyContextPath string
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// TLS
	SkipTLSVerify bool
	// CABundle: path to a PEM bundle for private gateway CAs.
	CABundle string

	// Observability
	Debug  bool
	Logger Logger

	// Cache: optional shared cache for exchanged tokens and capability
	// snapshots (memory, NATS KV, or none). Nil keeps caching in-process.
	Cache *CacheConfig

	// ProbeOnInit: when true, the constructor probes service capabilities
	// eagerly instead of on first use.
	ProbeOnInit bool
}

// NewClient creates a new flow service client
// Deprecated: Use github.com/thammuio/flowgate/pkg/flowclient.New instead.
func NewClient(config *Config) (Client, error) {
	return nil, ErrDeprecatedClientConstructor
}

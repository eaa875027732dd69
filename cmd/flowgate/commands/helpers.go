package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/auth"
	"github.com/thammuio/flowgate/internal/client"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
	"github.com/thammuio/flowgate/pkg/flowclient"
)

// Static errors for err113 compliance.
var (
	ErrNoGatewayConfigured     = errors.New("no gateway configured")
	ErrGatewayNotFound         = errors.New("gateway not found")
	ErrGatewayNameRequired     = errors.New("gateway name or URL is required")
	ErrGatewayAlreadyExists    = errors.New("gateway already exists")
	ErrCannotDeleteOnlyGateway = errors.New("cannot delete the only configured gateway")
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrSessionExpired          = errors.New("session expired")
	ErrUnknownConfigKey        = errors.New("unknown configuration key")
	ErrTokenFieldsCannotSet    = errors.New("token fields cannot be set directly")
	ErrTokenFieldsCannotUnset  = errors.New("token fields cannot be unset directly")
	ErrInvalidProperty         = errors.New("property must be in KEY=VALUE form")
	ErrNoHostInURL             = errors.New("no host specified in URL")
)

// createClient builds a flow client for the gateway selected by flag,
// configuration, or environment.
//
// Credential precedence: a token from the command line or environment is
// used as-is; a passcode or password makes the client exchange (and
// re-exchange) on demand, persisting the session; otherwise the saved
// session token is used while it is still valid.
func createClient() (flow.Client, error) {
	gatewayName, gatewayConfig, err := resolveGatewayConfig(viper.GetString("gateway"))
	if err != nil {
		return nil, err
	}

	flowConfig := buildFlowConfig(gatewayConfig)

	if token := viper.GetString("token"); token != "" {
		flowConfig.AccessToken = token

		return newFlowClient(flowConfig)
	}

	if manager := buildSessionManager(gatewayName, gatewayConfig); manager != nil {
		flowClient, err := client.NewWithCredentials(flowConfig, manager)
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}

		return flowClient, nil
	}

	if gatewayConfig.Token != "" {
		if sessionExpired(gatewayConfig) {
			return nil, fmt.Errorf("%w, use 'flowgate login' to start a new one", ErrSessionExpired)
		}

		flowConfig.AccessToken = gatewayConfig.Token

		return newFlowClient(flowConfig)
	}

	return nil, fmt.Errorf("%w, use 'flowgate login' first", ErrNotAuthenticated)
}

func newFlowClient(flowConfig *flow.Config) (flow.Client, error) {
	ctx := context.Background()

	flowClient, err := flowclient.New(ctx, flowConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return flowClient, nil
}

// resolveGatewayConfig picks the gateway entry selected by the --gateway
// flag (name or URL), falling back to the current gateway. When nothing is
// configured but an API base or gateway URL was given directly, an ad-hoc
// unnamed entry is built from flags alone.
func resolveGatewayConfig(flagValue string) (string, *GatewayConfig, error) {
	config := loadConfig()

	if flagValue != "" {
		if gatewayConfig, exists := config.Gateways[flagValue]; exists {
			return flagValue, gatewayConfig, nil
		}

		// Match a saved entry by URL before treating the value as ad-hoc.
		for name, gatewayConfig := range config.Gateways {
			if gatewayConfig.GatewayURL == flagValue {
				return name, gatewayConfig, nil
			}
		}

		if looksLikeURL(flagValue) {
			return "", &GatewayConfig{
				GatewayURL: normalizeGatewayURL(flagValue),
				APIBase:    viper.GetString("api_base"),
			}, nil
		}

		return "", nil, fmt.Errorf("gateway '%s': %w. Use 'flowgate gateways list' to see configured gateways", flagValue, ErrGatewayNotFound)
	}

	if apiBase := viper.GetString("api_base"); apiBase != "" && config.CurrentGateway == "" {
		return "", &GatewayConfig{APIBase: apiBase}, nil
	}

	if config.CurrentGateway == "" {
		return "", nil, fmt.Errorf("%w, use 'flowgate gateways add' or 'flowgate login' first", ErrNoGatewayConfigured)
	}

	gatewayConfig, exists := config.Gateways[config.CurrentGateway]
	if !exists {
		return "", nil, fmt.Errorf("current gateway '%s': %w", config.CurrentGateway, ErrGatewayNotFound)
	}

	return config.CurrentGateway, gatewayConfig, nil
}

// buildFlowConfig translates a gateway entry plus global settings into a
// client configuration. Credentials are filled in by the caller.
func buildFlowConfig(gatewayConfig *GatewayConfig) *flow.Config {
	apiBase := viper.GetString("api_base")
	if apiBase == "" {
		apiBase = gatewayConfig.APIBase
	}

	return &flow.Config{
		GatewayURL:    gatewayConfig.GatewayURL,
		APIBase:       apiBase,
		TokenEndpoint: gatewayConfig.TokenEndpoint,
		AllowWrites:   viper.GetBool("allow_writes"),
		AllowedVerbs:  viper.GetStringSlice("allowed_verbs"),
		CABundle:      gatewayConfig.CABundle,
		SkipTLSVerify: gatewayConfig.SkipTLSVerify,
		Debug:         viper.GetBool("verbose"),
	}
}

// buildSessionManager wires a config-persisting token manager when a
// passcode or password is available for exchange. It returns nil when no
// exchangeable credential is configured, leaving token handling to the
// saved session.
func buildSessionManager(gatewayName string, gatewayConfig *GatewayConfig) *auth.SessionTokenManager {
	passcode := viper.GetString("passcode")

	username := viper.GetString("username")
	if username == "" {
		username = gatewayConfig.Username
	}

	password := viper.GetString("password")

	var credential *auth.Credential

	switch {
	case passcode != "":
		credential = &auth.Credential{Scheme: auth.SchemePasscode, Passcode: passcode}
	case username != "" && password != "":
		credential = &auth.Credential{Scheme: auth.SchemeBasic, Username: username, Password: password}
	default:
		return nil
	}

	exchangeConfig := &auth.ExchangeConfig{
		TokenURL:   resolveTokenEndpoint(gatewayConfig),
		Credential: credential,
		RetryMax:   constants.DefaultRetryMax,
	}

	// Ad-hoc gateways have no config entry to persist into.
	var persister auth.ConfigPersister
	if gatewayName != "" {
		persister = NewConfigPersister()
	}

	var savedExpiry time.Time
	if gatewayConfig.TokenExpiresAt != nil {
		savedExpiry = *gatewayConfig.TokenExpiresAt
	}

	return auth.NewSessionTokenManager(exchangeConfig, persister, gatewayName, gatewayConfig.Token, savedExpiry)
}

// resolveTokenEndpoint returns the configured exchange endpoint, deriving
// the gateway default from the API base when none is set.
func resolveTokenEndpoint(gatewayConfig *GatewayConfig) string {
	if gatewayConfig.TokenEndpoint != "" {
		return gatewayConfig.TokenEndpoint
	}

	apiBase := gatewayConfig.APIBase
	if apiBase == "" {
		apiBase = strings.TrimSuffix(gatewayConfig.GatewayURL, "/") + constants.DefaultAPIBasePath
	}

	return strings.TrimSuffix(apiBase, "/") + constants.DefaultTokenPath
}

func sessionExpired(gatewayConfig *GatewayConfig) bool {
	return gatewayConfig.TokenExpiresAt != nil && time.Now().After(*gatewayConfig.TokenExpiresAt)
}

// normalizeGatewayURL adds a scheme when missing and trims the trailing
// slash. The gateway context path is significant and must survive
// normalization.
func normalizeGatewayURL(gatewayURL string) string {
	if !strings.HasPrefix(gatewayURL, "http://") && !strings.HasPrefix(gatewayURL, "https://") {
		gatewayURL = "https://" + gatewayURL
	}

	return strings.TrimSuffix(gatewayURL, "/")
}

// validateGatewayURL normalizes and parses a gateway URL, requiring a host.
func validateGatewayURL(gatewayURL string) (string, error) {
	normalized := normalizeGatewayURL(gatewayURL)

	parsedURL, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Host == "" {
		return "", ErrNoHostInURL
	}

	return normalized, nil
}

func looksLikeURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") || strings.Contains(value, ".")
}

// gatewayNameFromURL derives a config key from a gateway URL, using the
// host portion.
func gatewayNameFromURL(gatewayURL string) string {
	parsedURL, err := url.Parse(normalizeGatewayURL(gatewayURL))
	if err != nil || parsedURL.Host == "" {
		return gatewayURL
	}

	return parsedURL.Hostname()
}

// parseVerb validates a run-state verb argument.
func parseVerb(arg string) (flow.Verb, error) {
	verb := flow.Verb(strings.ToLower(strings.TrimSpace(arg)))

	for _, known := range flow.Verbs() {
		if verb == known {
			return verb, nil
		}
	}

	return "", fmt.Errorf("%w: %q (expected one of start, stop, enable, disable)", flow.ErrUnknownVerb, arg)
}

// parseProperties turns repeated KEY=VALUE flags into a property map.
func parseProperties(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	properties := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", constants.KeyValueSplitParts)
		if len(parts) != constants.KeyValueSplitParts || parts[0] == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProperty, pair)
		}

		properties[parts[0]] = parts[1]
	}

	return properties, nil
}

// confirmAction prompts for a y/N confirmation unless force is set.
func confirmAction(force bool, prompt string) bool {
	if force {
		return true
	}

	fmt.Printf("%s (y/N): ", prompt)

	var response string

	_, _ = fmt.Scanln(&response)

	return response == "y" || response == "Y"
}

// formatRevision renders an entity revision for table output.
func formatRevision(revision *flow.Revision) string {
	if revision == nil {
		return constants.NotAvailable
	}

	return fmt.Sprintf("%d", revision.Version)
}

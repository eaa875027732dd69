// Package flowclient provides the main entry point for creating flow service clients
package flowclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/thammuio/flowgate/internal/client"
	"github.com/thammuio/flowgate/pkg/flow"
)

// New creates a flow service client for the gateway described by config.
func New(ctx context.Context, config *flow.Config) (flow.Client, error) {
	if config == nil {
		return nil, flow.ErrConfigRequired
	}

	if config.GatewayURL == "" && config.APIBase == "" {
		return nil, flow.ErrNoEndpoint
	}

	config.GatewayURL = normalizeEndpoint(config.GatewayURL)
	config.APIBase = normalizeEndpoint(config.APIBase)

	client, err := client.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return client, nil
}

// normalizeEndpoint trims a trailing slash and defaults the scheme to https.
func normalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}

	endpoint = strings.TrimSuffix(endpoint, "/")

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// NewWithToken creates a read-only client that sends a caller-provided
// bearer token on every request.
func NewWithToken(ctx context.Context, gatewayURL, token string) (flow.Client, error) {
	return New(ctx, &flow.Config{
		GatewayURL:  gatewayURL,
		AccessToken: token,
	})
}

// NewWithPasscode creates a read-only client that authenticates with a
// one-time passcode. Without Config.TokenEndpoint the passcode is presented
// directly on every request; use New with a full config to exchange it for
// a token instead.
func NewWithPasscode(ctx context.Context, gatewayURL, passcode string) (flow.Client, error) {
	return New(ctx, &flow.Config{
		GatewayURL: gatewayURL,
		Passcode:   passcode,
	})
}

// NewWithBasicAuth creates a read-only client that authenticates with a
// username and password.
func NewWithBasicAuth(ctx context.Context, gatewayURL, username, password string) (flow.Client, error) {
	return New(ctx, &flow.Config{
		GatewayURL: gatewayURL,
		Username:   username,
		Password:   password,
	})
}

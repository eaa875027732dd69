package commands

import (
	"fmt"
	"sync"
	"time"
)

// ConfigPersister implements the auth.ConfigPersister interface.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// UpdateGatewayToken updates the session token and related metadata for
// one gateway entry in the config.
func (p *ConfigPersister) UpdateGatewayToken(gateway, token string, expiresAt time.Time) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config := loadConfig()

	gatewayConfig, exists := config.Gateways[gateway]
	if !exists {
		return fmt.Errorf("gateway configuration for '%s': %w", gateway, ErrGatewayNotFound)
	}

	gatewayConfig.Token = token
	if !expiresAt.IsZero() {
		gatewayConfig.TokenExpiresAt = &expiresAt
	}

	now := time.Now()
	gatewayConfig.LastRefreshed = &now

	return saveConfigStruct(config)
}

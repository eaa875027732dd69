package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration.
type Config struct {
	// Multi-gateway configuration
	Gateways       map[string]*GatewayConfig `json:"gateways,omitempty"        yaml:"gateways,omitempty"`
	CurrentGateway string                    `json:"current_gateway,omitempty" yaml:"current_gateway,omitempty"`

	// Global settings
	Output       string   `json:"output"                  yaml:"output"`
	AllowWrites  bool     `json:"allow_writes"            yaml:"allow_writes"`
	AllowedVerbs []string `json:"allowed_verbs,omitempty" yaml:"allowed_verbs,omitempty"`
}

// GatewayConfig represents configuration for a single gateway endpoint.
type GatewayConfig struct {
	GatewayURL     string     `json:"gateway_url"                yaml:"gateway_url"`
	APIBase        string     `json:"api_base,omitempty"         yaml:"api_base,omitempty"`
	TokenEndpoint  string     `json:"token_endpoint,omitempty"   yaml:"token_endpoint,omitempty"`
	Username       string     `json:"username,omitempty"         yaml:"username,omitempty"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
	CABundle       string     `json:"ca_bundle,omitempty"        yaml:"ca_bundle,omitempty"`
	SkipTLSVerify  bool       `json:"skip_tls_verify"            yaml:"skip_tls_verify"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage flowgate CLI configuration including gateways and global settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())
	cmd.AddCommand(newConfigClearCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var gatewayFlag string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current CLI configuration (global or gateway-specific)",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			// If --gateway flag is provided, show only that gateway's configuration
			if gatewayFlag != "" {
				return showGatewayConfig(config, gatewayFlag)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(redactConfig(config))
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(redactConfig(config))
			default:
				return displayConfigTable(config)
			}
		},
	}

	cmd.Flags().StringVar(&gatewayFlag, "gateway", "", "show configuration for a specific gateway")

	return cmd
}

func newConfigSetCommand() *cobra.Command {
	var gatewayFlag string

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a specific configuration value (global or gateway-specific)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			config := loadConfig()

			// If --gateway flag is provided, set gateway-specific configuration
			if gatewayFlag != "" {
				return setGatewayConfig(config, gatewayFlag, key, value)
			}

			// Otherwise set global configuration
			return setGlobalConfig(config, key, value)
		},
	}

	cmd.Flags().StringVar(&gatewayFlag, "gateway", "", "target a specific gateway")

	return cmd
}

func newConfigUnsetCommand() *cobra.Command {
	var gatewayFlag string

	cmd := &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Remove a specific configuration value (global or gateway-specific)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			config := loadConfig()

			if gatewayFlag != "" {
				return unsetGatewayConfig(config, gatewayFlag, key)
			}

			return unsetGlobalConfig(config, key)
		},
	}

	cmd.Flags().StringVar(&gatewayFlag, "gateway", "", "target a specific gateway")

	return cmd
}

func newConfigClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear configuration",
		Long:  "Remove all configuration settings including saved gateways and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := viper.ConfigFileUsed()
			if configFile == "" {
				home, _ := os.UserHomeDir()
				configFile = filepath.Join(home, ".flowgate", "config.yml")
			}

			err := os.Remove(configFile)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove config file: %w", err)
			}

			return outputConfigUpdateResult("Cleared", "all configuration", "", "")
		},
	}
}

func loadConfig() *Config {
	config := &Config{
		Output:         viper.GetString("output"),
		AllowWrites:    viper.GetBool("allow_writes"),
		AllowedVerbs:   viper.GetStringSlice("allowed_verbs"),
		CurrentGateway: viper.GetString("current_gateway"),
		Gateways:       make(map[string]*GatewayConfig),
	}

	gatewaysRaw := viper.GetStringMap("gateways")
	for name, raw := range gatewaysRaw {
		if gatewayMap, ok := raw.(map[string]interface{}); ok {
			config.Gateways[name] = parseGatewayConfig(gatewayMap)
		}
	}

	return config
}

// parseGatewayConfig parses a single gateway entry from its raw viper map.
func parseGatewayConfig(gatewayMap map[string]interface{}) *GatewayConfig {
	gatewayConfig := &GatewayConfig{}

	stringFields := map[string]*string{
		"gateway_url":    &gatewayConfig.GatewayURL,
		"api_base":       &gatewayConfig.APIBase,
		"token_endpoint": &gatewayConfig.TokenEndpoint,
		"username":       &gatewayConfig.Username,
		"token":          &gatewayConfig.Token,
		"ca_bundle":      &gatewayConfig.CABundle,
	}

	for key, field := range stringFields {
		if value, ok := gatewayMap[key].(string); ok {
			*field = value
		}
	}

	if skipTLS, ok := gatewayMap["skip_tls_verify"].(bool); ok {
		gatewayConfig.SkipTLSVerify = skipTLS
	}

	if expiresAtStr, ok := gatewayMap["token_expires_at"].(string); ok && expiresAtStr != "" {
		t, err := time.Parse(time.RFC3339, expiresAtStr)
		if err == nil {
			gatewayConfig.TokenExpiresAt = &t
		}
	}

	if refreshedStr, ok := gatewayMap["last_refreshed"].(string); ok && refreshedStr != "" {
		t, err := time.Parse(time.RFC3339, refreshedStr)
		if err == nil {
			gatewayConfig.LastRefreshed = &t
		}
	}

	return gatewayConfig
}

func saveConfigStruct(config *Config) error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}

		configDir := filepath.Join(home, ".flowgate")

		err = os.MkdirAll(configDir, constants.ConfigDirPerm)
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		configFile = filepath.Join(configDir, "config.yml")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setGlobalConfig sets a global configuration value.
func setGlobalConfig(config *Config, key, value string) error {
	switch key {
	case "output":
		config.Output = value
	case "allow_writes":
		config.AllowWrites = parseBoolValue(value)
	case "allowed_verbs":
		config.AllowedVerbs = splitVerbList(value)
	default:
		return fmt.Errorf("%w: %s. Use --gateway flag for gateway-specific settings", ErrUnknownConfigKey, key)
	}

	err := saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return outputConfigUpdateResult("Set global", key, value, "")
}

// setGatewayConfig sets configuration for a specific gateway.
func setGatewayConfig(config *Config, gatewayName, key, value string) error {
	gatewayConfig, exists := config.Gateways[gatewayName]
	if !exists {
		return fmt.Errorf("gateway '%s': %w. Use 'flowgate gateways list' to see configured gateways", gatewayName, ErrGatewayNotFound)
	}

	switch key {
	case "gateway_url":
		gatewayConfig.GatewayURL = value
	case "api_base":
		gatewayConfig.APIBase = value
	case "token_endpoint":
		gatewayConfig.TokenEndpoint = value
	case "username":
		gatewayConfig.Username = value
	case "ca_bundle":
		gatewayConfig.CABundle = value
	case "skip_tls_verify":
		gatewayConfig.SkipTLSVerify = parseBoolValue(value)
	case "token":
		return fmt.Errorf("%w. Use 'flowgate login' instead", ErrTokenFieldsCannotSet)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	config.Gateways[gatewayName] = gatewayConfig

	err := saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return outputConfigUpdateResult("Set", key, value, gatewayName)
}

// unsetGlobalConfig unsets a global configuration value.
func unsetGlobalConfig(config *Config, key string) error {
	switch key {
	case "output":
		config.Output = "table"
	case "allow_writes":
		config.AllowWrites = false
	case "allowed_verbs":
		config.AllowedVerbs = nil
	default:
		return fmt.Errorf("%w: %s. Use --gateway flag for gateway-specific settings", ErrUnknownConfigKey, key)
	}

	err := saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return outputConfigUpdateResult("Unset global", key, "", "")
}

// unsetGatewayConfig unsets configuration for a specific gateway.
func unsetGatewayConfig(config *Config, gatewayName, key string) error {
	gatewayConfig, exists := config.Gateways[gatewayName]
	if !exists {
		return fmt.Errorf("gateway '%s': %w. Use 'flowgate gateways list' to see configured gateways", gatewayName, ErrGatewayNotFound)
	}

	switch key {
	case "api_base":
		gatewayConfig.APIBase = ""
	case "token_endpoint":
		gatewayConfig.TokenEndpoint = ""
	case "username":
		gatewayConfig.Username = ""
	case "ca_bundle":
		gatewayConfig.CABundle = ""
	case "skip_tls_verify":
		gatewayConfig.SkipTLSVerify = false
	// Session fields are cleared through logout so expiry metadata stays consistent.
	case "token", "token_expires_at":
		return fmt.Errorf("%w. Use 'flowgate logout' instead", ErrTokenFieldsCannotUnset)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	config.Gateways[gatewayName] = gatewayConfig

	err := saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return outputConfigUpdateResult("Unset", key, "", gatewayName)
}

// showGatewayConfig shows configuration for a specific gateway.
func showGatewayConfig(config *Config, gatewayName string) error {
	gatewayConfig, exists := config.Gateways[gatewayName]
	if !exists {
		return fmt.Errorf("gateway '%s': %w. Use 'flowgate gateways list' to see configured gateways", gatewayName, ErrGatewayNotFound)
	}

	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(redactGatewayConfig(gatewayConfig))
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(redactGatewayConfig(gatewayConfig))
	default:
		return displayGatewayConfigTable(config, gatewayName, gatewayConfig)
	}
}

// redactConfig returns a copy of the config with every secret masked so it
// can be rendered in any output format.
func redactConfig(config *Config) *Config {
	redacted := *config
	redacted.Gateways = make(map[string]*GatewayConfig, len(config.Gateways))

	for name, gatewayConfig := range config.Gateways {
		redacted.Gateways[name] = redactGatewayConfig(gatewayConfig)
	}

	return &redacted
}

func redactGatewayConfig(gatewayConfig *GatewayConfig) *GatewayConfig {
	redacted := *gatewayConfig
	if redacted.Token != "" {
		redacted.Token = constants.MaskedSecret
	}

	return &redacted
}

// displayConfigTable displays configuration in a table format.
func displayConfigTable(config *Config) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")

	_ = table.Append("Output", config.Output)
	_ = table.Append("Allow Writes", strconv.FormatBool(config.AllowWrites))

	if len(config.AllowedVerbs) > 0 {
		_ = table.Append("Allowed Verbs", strings.Join(config.AllowedVerbs, ", "))
	}

	if config.CurrentGateway != "" {
		_ = table.Append("Current Gateway", config.CurrentGateway)
	}

	_, _ = os.Stdout.WriteString("Global Configuration:\n")

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return displayGatewaysTable(config)
}

func displayGatewaysTable(config *Config) error {
	if len(config.Gateways) == 0 {
		_, _ = os.Stdout.WriteString("\nNo gateways configured. Use 'flowgate gateways add' to add one.\n")

		return nil
	}

	_, _ = os.Stdout.WriteString("\nConfigured Gateways:\n")

	gatewayTable := tablewriter.NewWriter(os.Stdout)
	gatewayTable.Header("Name", "Gateway URL", "Username", "Session", "Current")

	for name, gatewayConfig := range config.Gateways {
		_ = gatewayTable.Append(
			name,
			gatewayConfig.GatewayURL,
			formatValue(gatewayConfig.Username),
			formatSession(gatewayConfig),
			formatCurrentIndicator(name == config.CurrentGateway),
		)
	}

	err := gatewayTable.Render()
	if err != nil {
		return fmt.Errorf("failed to render gateway table: %w", err)
	}

	return nil
}

// displayGatewayConfigTable displays configuration for one gateway in table format.
func displayGatewayConfigTable(config *Config, gatewayName string, gatewayConfig *GatewayConfig) error {
	current := ""
	if gatewayName == config.CurrentGateway {
		current = " (current)"
	}

	_, _ = fmt.Fprintf(os.Stdout, "Configuration for gateway '%s'%s:\n", gatewayName, current)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")

	_ = table.Append("Gateway URL", gatewayConfig.GatewayURL)

	if gatewayConfig.APIBase != "" {
		_ = table.Append("API Base", gatewayConfig.APIBase)
	}

	if gatewayConfig.TokenEndpoint != "" {
		_ = table.Append("Token Endpoint", gatewayConfig.TokenEndpoint)
	}

	if gatewayConfig.Username != "" {
		_ = table.Append("Username", gatewayConfig.Username)
	}

	if gatewayConfig.Token != "" {
		_ = table.Append("Token", constants.MaskedSecret)
	}

	if gatewayConfig.TokenExpiresAt != nil {
		_ = table.Append("Token Expires", gatewayConfig.TokenExpiresAt.Format(time.RFC3339))
	}

	if gatewayConfig.CABundle != "" {
		_ = table.Append("CA Bundle", gatewayConfig.CABundle)
	}

	if gatewayConfig.SkipTLSVerify {
		_ = table.Append("Skip TLS Verify", strconv.FormatBool(gatewayConfig.SkipTLSVerify))
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render gateway config table: %w", err)
	}

	return nil
}

func formatValue(value string) string {
	if value == "" {
		return constants.NotAvailable
	}

	return value
}

func formatCurrentIndicator(isCurrent bool) string {
	if isCurrent {
		return "*"
	}

	return ""
}

// formatSession summarizes the saved session without exposing the token.
func formatSession(gatewayConfig *GatewayConfig) string {
	if gatewayConfig.Token == "" {
		return "none"
	}

	if gatewayConfig.TokenExpiresAt == nil {
		return "active"
	}

	if time.Now().After(*gatewayConfig.TokenExpiresAt) {
		return "expired"
	}

	return "active until " + gatewayConfig.TokenExpiresAt.Format("2006-01-02 15:04")
}

func parseBoolValue(value string) bool {
	return value == constants.BooleanTrue || value == "1"
}

// splitVerbList splits a comma-separated verb list, trimming whitespace.
func splitVerbList(value string) []string {
	var verbs []string

	for _, verb := range strings.Split(value, ",") {
		verb = strings.TrimSpace(verb)
		if verb != "" {
			verbs = append(verbs, verb)
		}
	}

	return verbs
}

// outputConfigUpdateResult outputs configuration update results in the requested format.
func outputConfigUpdateResult(action, key, value, gatewayName string) error {
	result := map[string]string{
		"action": action,
		"key":    key,
	}

	if value != "" {
		result["value"] = value
	}

	if gatewayName != "" {
		result["gateway"] = gatewayName
	}

	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(result)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(result)
	default:
		if value != "" {
			_, _ = fmt.Fprintf(os.Stdout, "%s %s = %s\n", action, key, value)
		} else {
			_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", action, key)
		}

		if gatewayName != "" {
			_, _ = fmt.Fprintf(os.Stdout, "Gateway: %s\n", gatewayName)
		}
	}

	return nil
}

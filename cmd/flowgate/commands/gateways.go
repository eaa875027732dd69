package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"gopkg.in/yaml.v3"
)

// NewGatewaysCommand creates the gateways command group.
func NewGatewaysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gateways",
		Aliases: []string{"gateway", "gw"},
		Short:   "Manage gateway endpoints",
		Long:    "Add, list, delete, and target flow service gateway endpoints",
	}

	cmd.AddCommand(newGatewaysAddCommand())
	cmd.AddCommand(newGatewaysListCommand())
	cmd.AddCommand(newGatewaysDeleteCommand())
	cmd.AddCommand(newGatewaysTargetCommand())

	return cmd
}

func newGatewaysAddCommand() *cobra.Command {
	var (
		apiBase       string
		tokenEndpoint string
		caBundle      string
		skipTLSVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME GATEWAY_URL",
		Short: "Add a new gateway endpoint",
		Long:  "Add a new flow service gateway endpoint to the configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			gatewayURL := args[1]

			normalizedURL, err := validateGatewayURL(gatewayURL)
			if err != nil {
				return fmt.Errorf("invalid gateway URL: %w", err)
			}

			config := loadConfig()

			if config.Gateways == nil {
				config.Gateways = make(map[string]*GatewayConfig)
			}

			if _, exists := config.Gateways[name]; exists {
				return fmt.Errorf("gateway '%s': %w", name, ErrGatewayAlreadyExists)
			}

			config.Gateways[name] = &GatewayConfig{
				GatewayURL:    normalizedURL,
				APIBase:       apiBase,
				TokenEndpoint: tokenEndpoint,
				CABundle:      caBundle,
				SkipTLSVerify: skipTLSVerify,
			}

			// The first gateway becomes the current target
			if config.CurrentGateway == "" {
				config.CurrentGateway = name
				fmt.Printf("Gateway '%s' (%s) added and set as current target\n", name, normalizedURL)
			} else {
				fmt.Printf("Gateway '%s' (%s) added\n", name, normalizedURL)
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&apiBase, "api-base", "", "explicit service API base (defaults to GATEWAY_URL/flow-api)")
	cmd.Flags().StringVar(&tokenEndpoint, "token-endpoint", "", "token exchange endpoint (defaults to the API base /token)")
	cmd.Flags().StringVar(&caBundle, "ca-bundle", "", "path to a PEM bundle for a private gateway CA")
	cmd.Flags().BoolVar(&skipTLSVerify, "skip-tls-verify", false, "skip TLS certificate verification (dev mode only)")

	return cmd
}

func newGatewaysListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all gateway endpoints",
		Long:  "Display all configured flow service gateway endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if len(config.Gateways) == 0 {
				fmt.Println("No gateways configured. Use 'flowgate gateways add' to add one.")

				return nil
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				type GatewayInfo struct {
					Name          string `json:"name"`
					GatewayURL    string `json:"gateway_url"`
					APIBase       string `json:"api_base,omitempty"`
					Username      string `json:"username,omitempty"`
					Session       string `json:"session"`
					SkipTLSVerify bool   `json:"skip_tls_verify"`
					Current       bool   `json:"current"`
				}

				var gateways []GatewayInfo
				for name, gatewayConfig := range config.Gateways {
					gateways = append(gateways, GatewayInfo{
						Name:          name,
						GatewayURL:    gatewayConfig.GatewayURL,
						APIBase:       gatewayConfig.APIBase,
						Username:      gatewayConfig.Username,
						Session:       formatSession(gatewayConfig),
						SkipTLSVerify: gatewayConfig.SkipTLSVerify,
						Current:       name == config.CurrentGateway,
					})
				}

				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(gateways)

			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(redactConfig(config).Gateways)

			default:
				fmt.Println("Configured gateways:")
				for name, gatewayConfig := range config.Gateways {
					current := ""
					if name == config.CurrentGateway {
						current = " (current)"
					}
					fmt.Printf("  %s%s\n", name, current)
					fmt.Printf("    Gateway: %s\n", gatewayConfig.GatewayURL)
					if gatewayConfig.APIBase != "" {
						fmt.Printf("    API:     %s\n", gatewayConfig.APIBase)
					}
					if gatewayConfig.Username != "" {
						fmt.Printf("    User:    %s\n", gatewayConfig.Username)
					}
					fmt.Printf("    Session: %s\n", formatSession(gatewayConfig))
					if gatewayConfig.SkipTLSVerify {
						fmt.Printf("    Skip TLS: %v\n", gatewayConfig.SkipTLSVerify)
					}
					fmt.Println()
				}
			}

			return nil
		},
	}
}

func newGatewaysDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a gateway endpoint",
		Long:  "Remove a flow service gateway endpoint from the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			config := loadConfig()

			if _, exists := config.Gateways[name]; !exists {
				return fmt.Errorf("gateway '%s': %w", name, ErrGatewayNotFound)
			}

			if len(config.Gateways) == 1 && config.CurrentGateway == name {
				return ErrCannotDeleteOnlyGateway
			}

			delete(config.Gateways, name)

			// Switch the current target when it was just removed
			if config.CurrentGateway == name {
				config.CurrentGateway = ""
				for remaining := range config.Gateways {
					config.CurrentGateway = remaining

					break
				}

				fmt.Printf("Gateway '%s' deleted. Current gateway switched to '%s'\n", name, config.CurrentGateway)
			} else {
				fmt.Printf("Gateway '%s' deleted\n", name)
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			return nil
		},
	}
}

func newGatewaysTargetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "target NAME",
		Short: "Target a gateway endpoint",
		Long:  "Set a flow service gateway endpoint as the current target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			config := loadConfig()

			if _, exists := config.Gateways[name]; !exists {
				return fmt.Errorf("gateway '%s': %w. Use 'flowgate gateways list' to see configured gateways", name, ErrGatewayNotFound)
			}

			config.CurrentGateway = name

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Printf("Gateway '%s' is now the current target\n", name)

			return nil
		},
	}
}

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/auth"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flowclient"
	"golang.org/x/term"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var (
		username string
		password string
		passcode string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to a flow service gateway",
		Long:  "Authenticate with a flow service gateway and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			gatewayArg := viper.GetString("gateway")

			config := loadConfig()

			// Fall back to the current gateway, then prompt
			if gatewayArg == "" {
				gatewayArg = config.CurrentGateway
			}

			if gatewayArg == "" {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Gateway name or URL: ")
				gatewayArg, _ = reader.ReadString('\n')
				gatewayArg = strings.TrimSpace(gatewayArg)
			}

			if gatewayArg == "" {
				return ErrGatewayNameRequired
			}

			gatewayName, gatewayConfig, err := resolveLoginGateway(config, gatewayArg)
			if err != nil {
				return err
			}

			flowConfig := buildFlowConfig(gatewayConfig)

			// Determine authentication method
			token := viper.GetString("token")
			switch {
			case token != "":
				flowConfig.AccessToken = token
			case passcode != "":
				flowConfig.Passcode = passcode
				flowConfig.TokenEndpoint = resolveTokenEndpoint(gatewayConfig)
			default:
				if username == "" {
					reader := bufio.NewReader(os.Stdin)
					fmt.Print("Username: ")
					username, _ = reader.ReadString('\n')
					username = strings.TrimSpace(username)
				}

				if username == "" {
					return constants.ErrNoLoginCredential
				}

				if password == "" {
					fmt.Print("Password: ")
					bytePassword, err := term.ReadPassword(int(syscall.Stdin))
					if err != nil {
						return fmt.Errorf("failed to read password: %w", err)
					}
					password = string(bytePassword)
					fmt.Println()
				}

				if password == "" {
					return constants.ErrPasswordRequired
				}

				flowConfig.Username = username
				flowConfig.Password = password
				flowConfig.TokenEndpoint = resolveTokenEndpoint(gatewayConfig)
			}

			flowClient, err := flowclient.New(context.Background(), flowConfig)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			// Test the connection before saving anything
			ctx := context.Background()
			about, err := flowClient.About(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to gateway: %w", err)
			}

			// Store session information (tokens only, never passwords)
			gatewayConfig.Username = username
			gatewayConfig.TokenExpiresAt = nil
			gatewayConfig.LastRefreshed = nil

			if tokenGetter, ok := flowClient.(interface {
				GetToken(context.Context) (string, error)
			}); ok {
				if sessionToken, err := tokenGetter.GetToken(ctx); err == nil && sessionToken != "" {
					gatewayConfig.Token = sessionToken

					// Gateway tokens are JWTs; record the expiry so later
					// invocations know when the session lapses.
					if expiry, err := auth.ParseJWTExpiry(sessionToken); err == nil {
						gatewayConfig.TokenExpiresAt = &expiry
					}
				}
			}

			if config.Gateways == nil {
				config.Gateways = make(map[string]*GatewayConfig)
			}
			config.Gateways[gatewayName] = gatewayConfig

			// The first login targets the gateway
			if config.CurrentGateway == "" || len(config.Gateways) == 1 {
				config.CurrentGateway = gatewayName
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Printf("Successfully logged in to %s\n", endpointForDisplay(gatewayConfig))
			if config.CurrentGateway == gatewayName {
				fmt.Printf("Gateway '%s' set as current target\n", gatewayName)
			}
			fmt.Printf("Service version: %s\n", about.Version)

			if caps, err := flowClient.Capabilities(ctx); err == nil && !caps.GroupSummary {
				fmt.Println("Note: this service has no summary endpoint; group summaries will be rolled up client-side")
			}

			return nil
		},
	}

	// Add flags
	cmd.Flags().StringVarP(&username, "username", "u", "", "username for authentication")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password for authentication")
	cmd.Flags().StringVar(&passcode, "passcode", "", "one-time gateway passcode")

	return cmd
}

// resolveLoginGateway maps the login argument to a config entry, creating a
// new one when the argument is a URL not seen before.
func resolveLoginGateway(config *Config, gatewayArg string) (string, *GatewayConfig, error) {
	if gatewayConfig, exists := config.Gateways[gatewayArg]; exists {
		return gatewayArg, gatewayConfig, nil
	}

	normalizedURL, err := validateGatewayURL(gatewayArg)
	if err != nil {
		return "", nil, fmt.Errorf("gateway '%s' is not configured and is not a valid URL: %w", gatewayArg, err)
	}

	// Reuse an existing entry registered under this URL
	for name, gatewayConfig := range config.Gateways {
		if gatewayConfig.GatewayURL == normalizedURL {
			return name, gatewayConfig, nil
		}
	}

	gatewayConfig := &GatewayConfig{
		GatewayURL: normalizedURL,
		APIBase:    viper.GetString("api_base"),
	}

	return gatewayNameFromURL(normalizedURL), gatewayConfig, nil
}

func endpointForDisplay(gatewayConfig *GatewayConfig) string {
	if gatewayConfig.GatewayURL != "" {
		return gatewayConfig.GatewayURL
	}

	return gatewayConfig.APIBase
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from a flow service gateway",
		Long:  "Clear the saved session for the current or named gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			gatewayName := viper.GetString("gateway")
			if gatewayName == "" {
				gatewayName = config.CurrentGateway
			}

			if gatewayName == "" {
				return fmt.Errorf("%w, nothing to log out from", ErrNoGatewayConfigured)
			}

			gatewayConfig, exists := config.Gateways[gatewayName]
			if !exists {
				return fmt.Errorf("gateway '%s': %w", gatewayName, ErrGatewayNotFound)
			}

			gatewayConfig.Token = ""
			gatewayConfig.TokenExpiresAt = nil
			gatewayConfig.LastRefreshed = nil

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Printf("Successfully logged out from '%s'\n", gatewayName)

			return nil
		},
	}
}

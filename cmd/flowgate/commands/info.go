package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
	"gopkg.in/yaml.v3"
)

// serviceInfo bundles the probe results for rendering.
type serviceInfo struct {
	About        *flow.About        `json:"about"        yaml:"about"`
	Capabilities *flow.Capabilities `json:"capabilities" yaml:"capabilities"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand() *cobra.Command {
	var reprobe bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Display service information",
		Long:  "Display version, build, and capability information for the targeted flow service",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			about, err := client.About(ctx)
			if err != nil {
				return fmt.Errorf("failed to get service info: %w", err)
			}

			var caps *flow.Capabilities
			if reprobe {
				caps, err = client.Reprobe(ctx)
			} else {
				caps, err = client.Capabilities(ctx)
			}

			if err != nil {
				// A failed probe still yields the conservative snapshot.
				fmt.Fprintf(os.Stderr, "Warning: capability probe failed: %v\n", err)
			}

			info := serviceInfo{About: about, Capabilities: caps}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(info)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(info)
			default:
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Property", "Value")

				_ = table.Append("Version", formatValue(about.Version))
				_ = table.Append("Title", formatValue(about.Title))
				_ = table.Append("Build", formatValue(about.BuildTag))

				if caps != nil {
					_ = table.Append("Capabilities Known", strconv.FormatBool(caps.Known))
					_ = table.Append("Service-Side Summaries", strconv.FormatBool(caps.GroupSummary))
					_ = table.Append("Disconnected-Node Acks", strconv.FormatBool(caps.DisconnectedAck))
				}

				err := table.Render()
				if err != nil {
					return fmt.Errorf("failed to render table: %w", err)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&reprobe, "reprobe", false, "force a fresh capability probe")

	return cmd
}

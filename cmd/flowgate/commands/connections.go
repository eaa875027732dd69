package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
	"gopkg.in/yaml.v3"
)

// NewConnectionsCommand creates the connections command group.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"connection", "conn"},
		Short:   "Manage flow connections",
		Long:    "Inspect queue-bearing connections and delete drained ones",
	}

	cmd.AddCommand(newConnectionsGetCommand())
	cmd.AddCommand(newConnectionsStatusCommand())
	cmd.AddCommand(newConnectionsDeleteCommand())

	return cmd
}

func newConnectionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get CONNECTION_ID",
		Short: "Get connection details",
		Long:  "Display detailed information about a specific connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectionID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			connection, err := client.Connections().Get(ctx, connectionID)
			if err != nil {
				return fmt.Errorf("failed to get connection: %w", err)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(connection)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(connection)
			default:
				fmt.Printf("Connection: %s\n", connectionDisplayName(connection))
				fmt.Printf("  ID:          %s\n", connection.ID)
				fmt.Printf("  Group:       %s\n", formatValue(connection.Component.GroupID))
				fmt.Printf("  Source:      %s\n", formatValue(connection.Component.SourceID))
				fmt.Printf("  Destination: %s\n", formatValue(connection.Component.DestinationID))
				fmt.Printf("  Revision:    %s\n", formatRevision(connection.Revision))

				if connection.Status != nil {
					fmt.Printf("  Queued:      %s\n", formatQueue(connection.Status))
				}
			}

			return nil
		},
	}
}

func newConnectionsStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status CONNECTION_ID",
		Short: "Show the connection queue",
		Long:  "Display a fresh queue snapshot for a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectionID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			status, err := client.Connections().Status(ctx, connectionID)
			if err != nil {
				return fmt.Errorf("failed to get connection status: %w", err)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(status)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(status)
			default:
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Property", "Value")

				_ = table.Append("Queued Count", fmt.Sprintf("%d", status.AggregateSnapshot.QueuedCount))
				_ = table.Append("Queued Size", formatValue(status.AggregateSnapshot.QueuedSize))
				_ = table.Append("Empty", fmt.Sprintf("%t", status.Empty()))

				err := table.Render()
				if err != nil {
					return fmt.Errorf("failed to render table: %w", err)
				}
			}

			return nil
		},
	}
}

func newConnectionsDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete CONNECTION_ID",
		Short: "Delete a drained connection",
		Long:  "Delete a connection whose queue is empty; a non-empty queue aborts the delete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectionID := args[0]

			if !confirmAction(force, fmt.Sprintf("Really delete connection '%s'?", connectionID)) {
				fmt.Println("Cancelled")

				return nil
			}

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			err = client.Connections().Delete(ctx, connectionID)
			if err != nil {
				if flow.IsPreconditionFailed(err) {
					return fmt.Errorf("%w. Drain or stop the source before deleting", err)
				}

				return describeMutationError(err, connectionID)
			}

			fmt.Printf("Successfully deleted connection '%s'\n", connectionID)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func connectionDisplayName(connection *flow.Connection) string {
	if connection.Component.Name != "" {
		return connection.Component.Name
	}

	return connection.ID
}

// formatQueue renders a queue snapshot as "count (size)".
func formatQueue(status *flow.ConnectionStatus) string {
	if status == nil {
		return constants.NotAvailable
	}

	if status.AggregateSnapshot.QueuedSize == "" {
		return fmt.Sprintf("%d", status.AggregateSnapshot.QueuedCount)
	}

	return fmt.Sprintf("%d (%s)", status.AggregateSnapshot.QueuedCount, status.AggregateSnapshot.QueuedSize)
}

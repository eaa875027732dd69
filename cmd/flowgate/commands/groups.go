package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
	"gopkg.in/yaml.v3"
)

// ErrBulkIncomplete is returned when a bulk verb leaves failures behind, so
// scripts see a non-zero exit alongside the per-member table.
var ErrBulkIncomplete = errors.New("bulk operation completed with failures")

// NewGroupsCommand creates the groups command group.
func NewGroupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group", "grp"},
		Short:   "Manage entity groups",
		Long:    "Inspect groups, roll up their state, and apply bulk verbs",
	}

	cmd.AddCommand(newGroupsGetCommand())
	cmd.AddCommand(newGroupsSummaryCommand())
	cmd.AddCommand(newGroupsConnectionsCommand())
	cmd.AddCommand(newGroupsBulkCommand())

	return cmd
}

func newGroupsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get GROUP_ID",
		Short: "Get group details",
		Long:  "Display detailed information about a specific group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			group, err := client.Groups().Get(ctx, groupID)
			if err != nil {
				return fmt.Errorf("failed to get group: %w", err)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(group)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(group)
			default:
				fmt.Printf("Group: %s\n", group.Component.Name)
				fmt.Printf("  ID:       %s\n", group.ID)
				fmt.Printf("  Parent:   %s\n", formatValue(group.Component.ParentGroupID))
				fmt.Printf("  Revision: %s\n", formatRevision(group.Revision))
			}

			return nil
		},
	}
}

func newGroupsSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary GROUP_ID",
		Short: "Roll up group state",
		Long:  "Display run-state and queue counts rolled up across one group",
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			summary, err := client.Groups().Summary(ctx, groupID)
			if err != nil {
				return fmt.Errorf("failed to summarize group: %w", err)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(summary)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(summary)
			default:
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Property", "Value")

				_ = table.Append("Group", summary.GroupID)
				_ = table.Append("Entities", strconv.Itoa(summary.EntityCount))
				_ = table.Append("Running", strconv.Itoa(summary.RunningCount))
				_ = table.Append("Stopped", strconv.Itoa(summary.StoppedCount))
				_ = table.Append("Disabled", strconv.Itoa(summary.DisabledCount))
				_ = table.Append("Queued", strconv.FormatInt(summary.QueuedCount, 10))

				err := table.Render()
				if err != nil {
					return fmt.Errorf("failed to render table: %w", err)
				}

				if summary.Degraded {
					fmt.Println("\nNote: rolled up client-side; counts reflect per-member reads, not one atomic snapshot")
				}
			}

			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

func newGroupsConnectionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connections GROUP_ID",
		Short: "List group connections",
		Long:  "List the queue-bearing connections inside one group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			connections, err := client.Groups().ListConnections(ctx, groupID)
			if err != nil {
				return fmt.Errorf("failed to list group connections: %w", err)
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(connections)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(connections)
			default:
				if len(connections) == 0 {
					fmt.Println("No connections found")

					return nil
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.Header("ID", "Name", "Source", "Destination", "Queued")

				for i := range connections {
					connection := &connections[i]
					_ = table.Append(
						connection.ID,
						connection.Component.Name,
						connection.Component.SourceID,
						connection.Component.DestinationID,
						formatQueue(connection.Status),
					)
				}

				err := table.Render()
				if err != nil {
					return fmt.Errorf("failed to render table: %w", err)
				}
			}

			return nil
		},
	}
}

func newGroupsBulkCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "bulk VERB GROUP_ID",
		Short: "Apply a verb to every entity in a group",
		Long: `Apply a run-state verb (start, stop, enable, disable) to every entity in a
group with bounded concurrency. Members are attempted independently; one
failure never aborts the rest, and the per-member outcomes are reported at
the end.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verb, err := parseVerb(args[0])
			if err != nil {
				return err
			}

			groupID := args[1]

			if !confirmAction(force, fmt.Sprintf("Really apply '%s' to every entity in group '%s'?", verb, groupID)) {
				fmt.Println("Cancelled")

				return nil
			}

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			job, err := client.Groups().Bulk(ctx, groupID, verb)
			if err != nil {
				return describeMutationError(err, groupID)
			}

			err = renderBulkJob(job)
			if err != nil {
				return err
			}

			if job.AggregateStatus != flow.BulkAllSucceeded {
				return fmt.Errorf("%w: %d of %d members failed", ErrBulkIncomplete, job.Failed, len(job.Results))
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func renderBulkJob(job *flow.BulkJob) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(job)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(job)
	default:
		fmt.Printf("Bulk %s on group '%s': %s\n", job.Verb, job.GroupID, job.AggregateStatus)
		fmt.Printf("  Succeeded: %d  Failed: %d  (conflicts: %d)\n\n", job.Succeeded, job.Failed, job.Conflicts)

		if len(job.Results) == 0 {
			fmt.Println("Group has no entities")

			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Entity", "Name", "Outcome", "Duration", "Error")

		for _, result := range job.Results {
			_ = table.Append(
				result.EntityID,
				result.Name,
				bulkOutcome(result),
				result.Duration.Round(time.Millisecond).String(),
				result.Error,
			)
		}

		err := table.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}

	return nil
}

func bulkOutcome(result flow.BulkResult) string {
	switch {
	case result.Success:
		return "ok"
	case result.Conflict:
		return "conflict"
	default:
		return "failed"
	}
}

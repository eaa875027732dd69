package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thammuio/flowgate/internal/constants"
	"github.com/thammuio/flowgate/pkg/flow"
	"gopkg.in/yaml.v3"
)

// ErrNothingToUpdate is returned when an update names no fields.
var ErrNothingToUpdate = errors.New("nothing to update, provide --name or --property")

// NewEntitiesCommand creates the entities command group.
func NewEntitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entities",
		Aliases: []string{"entity", "ent"},
		Short:   "Manage flow entities",
		Long:    "List, inspect, and mutate versioned flow entities",
	}

	cmd.AddCommand(newEntitiesListCommand())
	cmd.AddCommand(newEntitiesGetCommand())
	cmd.AddCommand(newEntityStateCommand(flow.VerbStart, "Start an entity", "Set the entity run state to RUNNING"))
	cmd.AddCommand(newEntityStateCommand(flow.VerbStop, "Stop an entity", "Set the entity run state to STOPPED"))
	cmd.AddCommand(newEntityStateCommand(flow.VerbEnable, "Enable an entity", "Re-enable a disabled entity, leaving it stopped"))
	cmd.AddCommand(newEntityStateCommand(flow.VerbDisable, "Disable an entity", "Set the entity run state to DISABLED"))
	cmd.AddCommand(newEntitiesUpdateCommand())
	cmd.AddCommand(newEntitiesDeleteCommand())

	return cmd
}

func newEntitiesListCommand() *cobra.Command {
	var (
		groupID string
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		Long:  "List flow entities, optionally scoped to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			var entities []flow.Entity

			if groupID != "" {
				entities, err = client.Groups().ListEntities(ctx, groupID)
				if err != nil {
					return fmt.Errorf("failed to list group entities: %w", err)
				}
			} else {
				params := flow.NewQueryParams()
				if page > 0 {
					params.WithPage(page)
				}
				if perPage > 0 {
					params.WithPerPage(perPage)
				}

				list, err := client.Entities().List(ctx, params)
				if err != nil {
					return fmt.Errorf("failed to list entities: %w", err)
				}
				entities = list.Entities
			}

			output := viper.GetString("output")
			switch output {
			case constants.FormatJSON:
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(entities)
			case constants.FormatYAML:
				encoder := yaml.NewEncoder(os.Stdout)

				return encoder.Encode(entities)
			default:
				if len(entities) == 0 {
					fmt.Println("No entities found")

					return nil
				}

				return renderEntityTable(entities)
			}
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "list only entities in this group")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "results per page")

	return cmd
}

func newEntitiesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ENTITY_ID",
		Short: "Get entity details",
		Long:  "Display detailed information about a specific entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			entity, err := client.Entities().Get(ctx, entityID)
			if err != nil {
				return fmt.Errorf("failed to get entity: %w", err)
			}

			return renderEntity(entity)
		},
	}
}

// newEntityStateCommand builds one run-state subcommand. All four verbs
// share the same shape.
func newEntityStateCommand(verb flow.Verb, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   string(verb) + " ENTITY_ID",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			entity, err := client.Entities().SetState(ctx, entityID, verb)
			if err != nil {
				return describeMutationError(err, entityID)
			}

			fmt.Printf("Entity '%s' is now %s\n", displayName(entity), entity.Component.State)

			return nil
		},
	}
}

func newEntitiesUpdateCommand() *cobra.Command {
	var (
		newName    string
		properties []string
	)

	cmd := &cobra.Command{
		Use:   "update ENTITY_ID",
		Short: "Update an entity",
		Long:  "Update entity component fields under optimistic locking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]

			if newName == "" && len(properties) == 0 {
				return ErrNothingToUpdate
			}

			propertyMap, err := parseProperties(properties)
			if err != nil {
				return err
			}

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			entity, err := client.Entities().Update(ctx, entityID, &flow.EntityUpdate{
				Name:       newName,
				Properties: propertyMap,
			})
			if err != nil {
				return describeMutationError(err, entityID)
			}

			fmt.Printf("Successfully updated entity '%s'\n", displayName(entity))
			fmt.Printf("  Revision: %s\n", formatRevision(entity.Revision))

			return nil
		},
	}

	cmd.Flags().StringVar(&newName, "name", "", "new entity name")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "component property as KEY=VALUE (repeatable)")

	return cmd
}

func newEntitiesDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete ENTITY_ID",
		Short: "Delete an entity",
		Long:  "Delete an entity, sending its freshly fetched revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := args[0]

			if !confirmAction(force, fmt.Sprintf("Really delete entity '%s'?", entityID)) {
				fmt.Println("Cancelled")

				return nil
			}

			client, err := createClient()
			if err != nil {
				return err
			}

			ctx := context.Background()

			err = client.Entities().Delete(ctx, entityID)
			if err != nil {
				return describeMutationError(err, entityID)
			}

			fmt.Printf("Successfully deleted entity '%s'\n", entityID)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

// describeMutationError augments mutation failures with actionable hints.
func describeMutationError(err error, entityID string) error {
	switch {
	case flow.IsReadOnly(err):
		return fmt.Errorf("%w. Re-run with --allow-writes or set allow_writes in the config", err)
	case flow.IsConflict(err):
		if latest := flow.ConflictSnapshot(err); latest != nil && latest.Revision != nil {
			return fmt.Errorf("%w. The entity moved to revision %d; inspect it and retry", err, latest.Revision.Version)
		}

		return fmt.Errorf("%w. Another client changed '%s'; inspect it and retry", err, entityID)
	default:
		return err
	}
}

func displayName(entity *flow.Entity) string {
	if entity.Component.Name != "" {
		return entity.Component.Name
	}

	return entity.ID
}

func renderEntityTable(entities []flow.Entity) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Type", "State", "Group", "Revision")

	for _, entity := range entities {
		_ = table.Append(
			entity.ID,
			entity.Component.Name,
			entity.Component.Type,
			entity.Component.State,
			entity.Component.GroupID,
			formatRevision(entity.Revision),
		)
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func renderEntity(entity *flow.Entity) error {
	output := viper.GetString("output")
	switch output {
	case constants.FormatJSON:
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(entity)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(os.Stdout)

		return encoder.Encode(entity)
	default:
		fmt.Printf("Entity: %s\n", displayName(entity))
		fmt.Printf("  ID:       %s\n", entity.ID)
		fmt.Printf("  Type:     %s\n", formatValue(entity.Component.Type))
		fmt.Printf("  State:    %s\n", formatValue(entity.Component.State))
		fmt.Printf("  Group:    %s\n", formatValue(entity.Component.GroupID))
		fmt.Printf("  Revision: %s\n", formatRevision(entity.Revision))

		if len(entity.Component.Properties) > 0 {
			fmt.Println("  Properties:")
			for key, value := range entity.Component.Properties {
				fmt.Printf("    %s: %s\n", key, value)
			}
		}
	}

	return nil
}

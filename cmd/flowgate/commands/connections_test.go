package commands_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thammuio/flowgate/cmd/flowgate/commands"
)

func TestNewConnectionsCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewConnectionsCommand()
	assert.Equal(t, "connections", cmd.Use)
	assert.Equal(t, []string{"connection", "conn"}, cmd.Aliases)
	assert.Equal(t, "Manage flow connections", cmd.Short)
	assert.Equal(t, "Inspect queue-bearing connections and delete drained ones", cmd.Long)

	// Check subcommands are added
	subcommands := cmd.Commands()
	assert.Len(t, subcommands, 3)

	commandNames := make([]string, 0, len(subcommands))
	for _, subcmd := range subcommands {
		commandNames = append(commandNames, subcmd.Name())
	}

	assert.Contains(t, commandNames, "get")
	assert.Contains(t, commandNames, "status")
	assert.Contains(t, commandNames, "delete")
}

func TestConnectionsGetCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConnectionsCommand()
	cmd := findSubcommand(root, "get")
	assert.Equal(t, "get CONNECTION_ID", cmd.Use)
	assert.Equal(t, "Get connection details", cmd.Short)
	assert.Equal(t, "Display detailed information about a specific connection", cmd.Long)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)
}

func TestConnectionsStatusCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConnectionsCommand()
	cmd := findSubcommand(root, "status")
	assert.Equal(t, "status CONNECTION_ID", cmd.Use)
	assert.Equal(t, "Show the connection queue", cmd.Short)
	assert.Equal(t, "Display a fresh queue snapshot for a connection", cmd.Long)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)
}

func TestConnectionsDeleteCommand(t *testing.T) {
	t.Parallel()

	root := commands.NewConnectionsCommand()
	cmd := findSubcommand(root, "delete")
	assert.Equal(t, "delete CONNECTION_ID", cmd.Use)
	assert.Equal(t, "Delete a drained connection", cmd.Short)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)

	// Check force flag
	forceFlag := cmd.Flags().Lookup("force")
	assert.NotNil(t, forceFlag)
	assert.Equal(t, "f", forceFlag.Shorthand)
	assert.Equal(t, "false", forceFlag.DefValue)
}

//go:build integration
// +build integration

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorkflow_ReadJourney walks the read-only surface end to end
func TestWorkflow_ReadJourney(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	// Setup
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	// 1. Service info including the capability probe
	stdout, stderr, err := runner.Run("info")
	require.NoError(t, err, "Failed to get service info: %s", stderr)
	assert.Contains(t, stdout, "Version")

	// 2. List entities
	stdout, stderr, err = runner.Run("entities", "list")
	require.NoError(t, err, "Failed to list entities: %s", stderr)

	// 3. Inspect a specific entity when one is named
	if config.EntityID != "" {
		stdout, stderr, err = runner.Run("entities", "get", config.EntityID)
		require.NoError(t, err, "Failed to get entity: %s", stderr)
		assert.Contains(t, stdout, config.EntityID)

		stdout, stderr, err = runner.Run("entities", "get", config.EntityID, "--output", "json")
		require.NoError(t, err, "Failed to get entity as JSON: %s", stderr)
		AssertJSONOutput(t, stdout)
		assert.Contains(t, stdout, "revision")
	}

	// 4. Roll up a group when one is named
	if config.GroupID != "" {
		stdout, stderr, err = runner.Run("groups", "summary", config.GroupID)
		require.NoError(t, err, "Failed to summarize group: %s", stderr)
		assert.Contains(t, stdout, "Entities")

		stdout, stderr, err = runner.Run("groups", "connections", config.GroupID)
		require.NoError(t, err, "Failed to list group connections: %s", stderr)
	}
}

// TestWorkflow_StateLifecycle stops and restarts one entity under optimistic
// locking
func TestWorkflow_StateLifecycle(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)
	config.SkipIfMissingWriteTarget(t)

	if config.EntityID == "" {
		t.Skip("FLOWGATE_TEST_ENTITY not set, skipping entity lifecycle test")
	}

	runner := NewCommandRunner(config, t)

	// Setup
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	// 1. Stop the entity
	stdout, stderr, err := runner.Run("--allow-writes", "entities", "stop", config.EntityID)
	require.NoError(t, err, "Failed to stop entity: %s", stderr)
	assert.Contains(t, stdout, "is now")

	require.NoError(t, runner.WaitForState(config.EntityID, "STOPPED", 30*time.Second))

	// 2. Start it again
	stdout, stderr, err = runner.Run("--allow-writes", "entities", "start", config.EntityID)
	require.NoError(t, err, "Failed to start entity: %s", stderr)

	require.NoError(t, runner.WaitForState(config.EntityID, "RUNNING", 30*time.Second))
}

// TestWorkflow_BulkVerbs applies a verb across a whole group and reads the
// per-member outcomes
func TestWorkflow_BulkVerbs(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	if config.GroupID == "" {
		t.Skip("FLOWGATE_TEST_GROUP not set, skipping bulk verb test")
	}

	runner := NewCommandRunner(config, t)

	// Setup
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	// 1. Bulk stop with the confirmation skipped
	stdout, stderr, err := runner.Run("--allow-writes", "groups", "bulk", "stop", config.GroupID, "--force")
	require.NoError(t, err, "Bulk stop failed: %s", stderr)
	assert.Contains(t, stdout, "Succeeded:")

	// 2. Summary reflects the stop
	stdout, stderr, err = runner.Run("groups", "summary", config.GroupID)
	require.NoError(t, err, "Failed to summarize group: %s", stderr)

	// 3. Bulk start to restore the group
	stdout, stderr, err = runner.Run("--allow-writes", "groups", "bulk", "start", config.GroupID, "--force")
	require.NoError(t, err, "Bulk start failed: %s", stderr)
	assert.Contains(t, stdout, "Succeeded:")
}

// TestWorkflow_OutputFormats tests all output formats work correctly
func TestWorkflow_OutputFormats(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	// Setup
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	formats := []string{"table", "json", "yaml"}

	for _, format := range formats {
		t.Run(fmt.Sprintf("info_%s_format", format), func(t *testing.T) {
			stdout, stderr, err := runner.Run("info", "--output", format)
			require.NoError(t, err, "Failed to get info with %s format: %s", format, stderr)

			switch format {
			case "json":
				AssertJSONOutput(t, stdout)
			case "yaml":
				AssertYAMLOutput(t, stdout)
			case "table":
				assert.Contains(t, stdout, "Property")
				assert.Contains(t, stdout, "Value")
			}
		})
	}
}

// TestWorkflow_ErrorScenarios tests error handling in real scenarios
func TestWorkflow_ErrorScenarios(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	// Setup gateway and session
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	testCases := []struct {
		name        string
		args        []string
		expectError bool
		errorText   string
	}{
		{
			name:        "mutation without allow-writes",
			args:        []string{"entities", "stop", "any-entity"},
			expectError: true,
			errorText:   "read-only",
		},
		{
			name:        "unknown bulk verb",
			args:        []string{"--allow-writes", "groups", "bulk", "restart", "any-group", "--force"},
			expectError: true,
			errorText:   "unknown verb",
		},
		{
			name:        "get non-existent entity",
			args:        []string{"entities", "get", "non-existent-entity-12345"},
			expectError: true,
			errorText:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := runner.Run(tc.args...)
			if tc.expectError {
				assert.Error(t, err, "Expected error for: %s", tc.name)

				if tc.errorText != "" {
					assert.Contains(t, stderr, tc.errorText, "Expected specific error text")
				}
			} else {
				assert.NoError(t, err, "Unexpected error for: %s\nStderr: %s", tc.name, stderr)
			}
		})
	}
}

// TestWorkflow_SessionLifecycle logs in, verifies the saved session, and logs
// out again
func TestWorkflow_SessionLifecycle(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	if config.Username == "" && config.Passcode == "" {
		t.Skip("no exchangeable credentials provided, skipping session test")
	}

	runner := NewCommandRunner(config, t)

	// 1. Register the gateway and log in
	require.NoError(t, runner.SetupGateway())
	require.NoError(t, runner.Login())

	// 2. The gateway list shows an active session
	stdout, stderr, err := runner.Run("gateways", "list")
	require.NoError(t, err, "Failed to list gateways: %s", stderr)
	assert.Contains(t, stdout, "active")

	// 3. Config show never prints the token itself
	stdout, stderr, err = runner.Run("config", "show", "--output", "json")
	require.NoError(t, err, "Failed to show config: %s", stderr)
	assert.Contains(t, stdout, "***")

	if config.Token != "" {
		assert.NotContains(t, stdout, config.Token)
	}

	// 4. Logout clears the session
	stdout, stderr, err = runner.Run("logout")
	require.NoError(t, err, "Failed to log out: %s", stderr)
	assert.Contains(t, stdout, "Successfully logged out")

	stdout, stderr, err = runner.Run("gateways", "list")
	require.NoError(t, err, "Failed to list gateways after logout: %s", stderr)
	assert.Contains(t, stdout, "none")
}

//go:build integration
// +build integration

package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	GatewayURL   string
	Username     string
	Password     string
	Passcode     string
	Token        string
	EntityID     string
	GroupID      string
	FlowgatePath string
	Verbose      bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		GatewayURL:   os.Getenv("FLOWGATE_TEST_GATEWAY"),
		Username:     os.Getenv("FLOWGATE_TEST_USERNAME"),
		Password:     os.Getenv("FLOWGATE_TEST_PASSWORD"),
		Passcode:     os.Getenv("FLOWGATE_TEST_PASSCODE"),
		Token:        os.Getenv("FLOWGATE_TEST_TOKEN"),
		EntityID:     os.Getenv("FLOWGATE_TEST_ENTITY"),
		GroupID:      os.Getenv("FLOWGATE_TEST_GROUP"),
		FlowgatePath: getFlowgatePath(),
		Verbose:      os.Getenv("FLOWGATE_VERBOSE") == "true",
	}
}

// getFlowgatePath determines the path to the flowgate binary
func getFlowgatePath() string {
	if path := os.Getenv("FLOWGATE_BINARY_PATH"); path != "" {
		return path
	}

	// Try common locations
	candidates := []string{
		"../../flowgate",
		"./flowgate",
		"../flowgate",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "flowgate" // Fallback to PATH
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	if config.GatewayURL == "" {
		t.Skip("FLOWGATE_TEST_GATEWAY not set, skipping integration test")
	}

	if _, err := os.Stat(config.FlowgatePath); os.IsNotExist(err) {
		t.Skipf("flowgate binary not found at %s, skipping integration test", config.FlowgatePath)
	}
}

// SkipIfMissingWriteTarget skips tests that mutate a real entity or group.
func (config *TestConfig) SkipIfMissingWriteTarget(t *testing.T) {
	if config.EntityID == "" && config.GroupID == "" {
		t.Skip("FLOWGATE_TEST_ENTITY / FLOWGATE_TEST_GROUP not set, skipping mutation test")
	}
}

// CommandRunner provides utilities for running flowgate commands. Each runner
// points HOME at a temporary directory so test runs never touch a real
// ~/.flowgate configuration.
type CommandRunner struct {
	config *TestConfig
	home   string
	t      *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		home:   t.TempDir(),
		t:      t,
	}
}

// Run executes a flowgate command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(runner.config.FlowgatePath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Env = append(os.Environ(), "HOME="+runner.home)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.FlowgatePath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// RunWithInput executes a flowgate command with stdin input
func (runner *CommandRunner) RunWithInput(input string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(runner.config.FlowgatePath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(), "HOME="+runner.home)

	if runner.config.Verbose {
		runner.t.Logf("Running with input: %s %s", runner.config.FlowgatePath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// SetupGateway registers and targets the test gateway
func (runner *CommandRunner) SetupGateway() error {
	_, stderr, err := runner.Run("gateways", "add", "test", runner.config.GatewayURL)
	if err != nil {
		return fmt.Errorf("failed to add test gateway: %s", stderr)
	}

	return nil
}

// Login authenticates against the test gateway with whatever credentials the
// environment provides
func (runner *CommandRunner) Login() error {
	switch {
	case runner.config.Token != "":
		_, stderr, err := runner.Run("--token", runner.config.Token, "login")
		if err != nil {
			return fmt.Errorf("failed to log in with token: %s", stderr)
		}
	case runner.config.Passcode != "":
		_, stderr, err := runner.Run("login", "--passcode", runner.config.Passcode)
		if err != nil {
			return fmt.Errorf("failed to log in with passcode: %s", stderr)
		}
	case runner.config.Username != "":
		_, stderr, err := runner.Run("login",
			"--username", runner.config.Username,
			"--password", runner.config.Password)
		if err != nil {
			return fmt.Errorf("failed to log in with password: %s", stderr)
		}
	default:
		return fmt.Errorf("no authentication credentials provided")
	}

	return nil
}

// WaitForState polls an entity until it reports the wanted run state
func (runner *CommandRunner) WaitForState(entityID, state string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		stdout, _, err := runner.Run("entities", "get", entityID)
		if err == nil && strings.Contains(stdout, state) {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("entity %s did not reach state %s within %s", entityID, state, timeout)
}

// AssertJSONOutput verifies command output is valid JSON
func AssertJSONOutput(t *testing.T, output string) {
	output = strings.TrimSpace(output)
	if !strings.HasPrefix(output, "{") && !strings.HasPrefix(output, "[") {
		t.Errorf("Output does not appear to be JSON: %s", output)
	}
}

// AssertYAMLOutput verifies command output is valid YAML
func AssertYAMLOutput(t *testing.T, output string) {
	output = strings.TrimSpace(output)
	if strings.Contains(output, "---") || strings.Contains(output, ":") {
		return // Looks like YAML
	}

	t.Errorf("Output does not appear to be YAML: %s", output)
}

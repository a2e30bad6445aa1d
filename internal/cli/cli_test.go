package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "clusterctl", cmd.Use, "Root command should be 'clusterctl'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 2, "Should have 2 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "", configFlag.DefValue, "Default config path should be empty, falling back to the built-in fixture")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd, "buildStatusCommand should return a non-nil command")
	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestLoadConfigEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Len(t, cfg.Workers, 8)
	assert.Equal(t, 2.0, cfg.JobGenerationRate)
	assert.Equal(t, 0.1, cfg.FailureRate)
	assert.Equal(t, 30, cfg.RecoveryTime)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadConfigValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
workers:
  - id: gpu-node-01
    failure_probability: 0.2
    recovery_time_seconds: 5
job_generation_rate: 10.0
recovery_time_seconds: 15
max_retries: 2
http:
  port: 9000
telemetry:
  mode: live
  synthetic_gpu_count: 4
metrics:
  enabled: true
  port: 9091
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Len(t, cfg.Workers, 1)
	assert.Equal(t, "gpu-node-01", cfg.Workers[0].ID)
	assert.Equal(t, 0.2, cfg.Workers[0].FailureProbability)
	assert.Equal(t, 10.0, cfg.JobGenerationRate)
	assert.Equal(t, 15, cfg.RecoveryTime)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "live", cfg.Telemetry.Mode)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9091, cfg.Metrics.Port)
}

func TestLoadConfigFileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := "workers:\n  - id: gpu-node-01\n  invalid yaml structure\n    broken indentation\n"
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestShowStatusDoesNotError(t *testing.T) {
	assert.NoError(t, showStatus())
}

func TestBuildWorkersFallsBackToClusterRecoveryTime(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	cfg.Workers[0].RecoveryTimeSeconds = 0

	workers := buildWorkers(cfg)
	require.NotEmpty(t, workers)
	assert.Equal(t, cfg.RecoveryTime, workers[0].RecoveryTimeSeconds)
}

// Package config loads the YAML configuration clusterctl reads at
// startup, falling back to a built-in reference fixture when no file is
// given.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkerSpec configures one simulated worker at startup.
type WorkerSpec struct {
	ID                  string  `yaml:"id"`
	FailureProbability  float64 `yaml:"failure_probability"`
	RecoveryTimeSeconds int     `yaml:"recovery_time_seconds"`
}

// Config is the complete clusterctl configuration.
type Config struct {
	Workers           []WorkerSpec `yaml:"workers"`
	JobGenerationRate float64      `yaml:"job_generation_rate"`
	FailureRate       float64      `yaml:"failure_rate"`
	RecoveryTime      int          `yaml:"recovery_time_seconds"`
	MaxRetries        int          `yaml:"max_retries"`

	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	Telemetry struct {
		Mode              string `yaml:"mode"` // "synthetic" | "live"
		SyntheticGPUCount int    `yaml:"synthetic_gpu_count"`
		TotalMemoryBytes  uint64 `yaml:"total_memory_bytes"`
	} `yaml:"telemetry"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Default returns the reference fixture from the configuration inputs
// table: eight workers gpu-node-01..08 with fixed failure probabilities,
// job_generation_rate=2.0, recovery_time=30s, max_retries=3, 8 synthetic
// GPUs.
func Default() *Config {
	probabilities := []float64{0.05, 0.08, 0.12, 0.06, 0.10, 0.07, 0.09, 0.11}
	workers := make([]WorkerSpec, len(probabilities))
	for i, p := range probabilities {
		workers[i] = WorkerSpec{
			ID:                  fmt.Sprintf("gpu-node-%02d", i+1),
			FailureProbability:  p,
			RecoveryTimeSeconds: 30,
		}
	}

	cfg := &Config{
		Workers:           workers,
		JobGenerationRate: 2.0,
		FailureRate:       0.1,
		RecoveryTime:      30,
		MaxRetries:        3,
	}
	cfg.HTTP.Port = 8080
	cfg.Telemetry.Mode = "synthetic"
	cfg.Telemetry.SyntheticGPUCount = 8
	cfg.Telemetry.TotalMemoryBytes = 8 * 1024 * 1024 * 1024
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 9090
	return cfg
}

// Load reads and parses a YAML config file. Fields the file omits keep
// their Default() value, since unmarshal starts from that base struct.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

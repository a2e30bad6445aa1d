// Package cli wires the cobra command tree for clusterctl: run starts
// the simulated cluster and its HTTP/WebSocket surface, status prints
// the configuration that run would use. There is no distributed run
// mode or job-file submission, since the simulator has no remote
// workers and generates its own jobs.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/autonomous-cluster/internal/config"
	"github.com/ChuLiYu/autonomous-cluster/internal/controller"
	"github.com/ChuLiYu/autonomous-cluster/internal/metrics"
	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
	"github.com/ChuLiYu/autonomous-cluster/internal/telemetry"
	"github.com/ChuLiYu/autonomous-cluster/internal/transport"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

var (
	configFile string
	log        = slog.Default()
)

// BuildCLI assembles the clusterctl root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clusterctl",
		Short: "clusterctl: an autonomous GPU cluster controller simulator",
		Long: `clusterctl runs a simulated GPU cluster: it generates jobs, schedules
them onto simulated workers, executes them, injects worker faults, and
recovers failed workers, all observable over HTTP and WebSocket.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults to the built-in reference fixture)")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the cluster controller and its HTTP/WebSocket surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
}

func runSystem() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rnd := simclock.NewLockedRand(time.Now().UnixNano())
	workers := buildWorkers(cfg)

	var metricsCollector *metrics.Collector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewCollector()
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctrl := controller.New(controller.Config{
		Workers:           workers,
		JobGenerationRate: cfg.JobGenerationRate,
		FailureRate:       cfg.FailureRate,
		RecoveryTime:      time.Duration(cfg.RecoveryTime) * time.Second,
		MaxRetries:        cfg.MaxRetries,
		Clock:             simclock.RealClock{},
		Rand:              rnd,
		Telemetry:         buildTelemetry(cfg, rnd),
		Metrics:           metricsCollector,
	})
	ctrl.Start()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: transport.NewRouter(ctrl),
	}
	go func() {
		log.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	log.Info("clusterctl started", "workers", len(workers), "job_generation_rate", cfg.JobGenerationRate)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("received shutdown signal, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", "error", err)
	}

	ctrl.Stop()
	log.Info("clusterctl stopped")
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configuration a run would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	source := configFile
	if source == "" {
		source = "(built-in reference fixture)"
	}

	fmt.Println("clusterctl configuration")
	fmt.Println("------------------------")
	fmt.Printf("config file:          %s\n", source)
	fmt.Printf("workers:               %d\n", len(cfg.Workers))
	for _, w := range cfg.Workers {
		fmt.Printf("  - %-14s failure_probability=%.2f recovery_time=%ds\n", w.ID, w.FailureProbability, w.RecoveryTimeSeconds)
	}
	fmt.Printf("job_generation_rate:   %.1f jobs/min\n", cfg.JobGenerationRate)
	fmt.Printf("failure_rate:          %.2f\n", cfg.FailureRate)
	fmt.Printf("recovery_time:         %ds\n", cfg.RecoveryTime)
	fmt.Printf("max_retries:           %d\n", cfg.MaxRetries)
	fmt.Printf("http port:             %d\n", cfg.HTTP.Port)
	fmt.Printf("telemetry mode:        %s (%d synthetic GPUs)\n", cfg.Telemetry.Mode, cfg.Telemetry.SyntheticGPUCount)
	if cfg.Metrics.Enabled {
		fmt.Printf("metrics:               enabled on :%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("metrics:               disabled")
	}
	fmt.Println()
	fmt.Println("live status is available at GET /api/status once 'clusterctl run' is active")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildWorkers(cfg *config.Config) []*types.Worker {
	workers := make([]*types.Worker, len(cfg.Workers))
	for i, w := range cfg.Workers {
		recovery := w.RecoveryTimeSeconds
		if recovery <= 0 {
			recovery = cfg.RecoveryTime
		}
		workers[i] = &types.Worker{
			ID:                  w.ID,
			Status:              types.WorkerOnline,
			FailureProbability:  w.FailureProbability,
			RecoveryTimeSeconds: recovery,
		}
	}
	return workers
}

func buildTelemetry(cfg *config.Config, rnd simclock.Rand) telemetry.Source {
	synthetic := telemetry.NewSyntheticSource(cfg.Telemetry.SyntheticGPUCount, cfg.Telemetry.TotalMemoryBytes, rnd)
	if cfg.Telemetry.Mode == "live" {
		return telemetry.NewLiveSource(cfg.Telemetry.SyntheticGPUCount, synthetic, log)
	}
	return synthetic
}

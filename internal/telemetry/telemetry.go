// Package telemetry supplies the gpu_info block of a cluster snapshot.
// A real deployment would read this from nvidia-smi/NVML; this simulator
// never assumes a GPU is present, so it offers a synthetic source and a
// host-telemetry-backed source that never errors out to the caller, only
// to its own internal fallback.
package telemetry

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

// Source reports the current system_info/gpu_info block.
type Source interface {
	Read() types.SystemInfo
}

// SyntheticSource fabricates plausible GPU telemetry for a fixed-size fleet
// of simulated GPUs, varying utilization and temperature each call.
type SyntheticSource struct {
	TotalGPUs   int
	TotalMemory uint64
	rnd         simclock.Rand
}

// NewSyntheticSource returns a Source that never touches the host.
func NewSyntheticSource(totalGPUs int, totalMemory uint64, rnd simclock.Rand) *SyntheticSource {
	return &SyntheticSource{TotalGPUs: totalGPUs, TotalMemory: totalMemory, rnd: rnd}
}

func (s *SyntheticSource) Read() types.SystemInfo {
	utilization := simclock.UniformFloat(s.rnd, 10, 95)
	temperature := simclock.UniformFloat(s.rnd, 45, 85)
	usedFraction := simclock.UniformFloat(s.rnd, 0.2, 0.9)
	usedMemory := uint64(float64(s.TotalMemory) * usedFraction)
	available := s.TotalGPUs - int(simclock.UniformFloat(s.rnd, 0, float64(s.TotalGPUs)/4))
	if available < 0 {
		available = 0
	}

	return types.SystemInfo{
		TotalGPUs:          s.TotalGPUs,
		AvailableGPUs:      available,
		TotalMemory:        s.TotalMemory,
		UsedMemory:         usedMemory,
		MemoryUsagePercent: usedFraction * 100,
		AvgUtilization:     utilization,
		AvgTemperature:     temperature,
		NVMLAvailable:      false,
	}
}

// LiveSource reports host memory and CPU usage as a stand-in for GPU
// telemetry when no NVML binding is available. Any probe failure falls
// back to a synthetic reading for that call only; Read never returns an
// error.
type LiveSource struct {
	TotalGPUs int
	fallback  *SyntheticSource
	log       *slog.Logger
}

// NewLiveSource returns a Source backed by gopsutil host probes.
func NewLiveSource(totalGPUs int, fallback *SyntheticSource, log *slog.Logger) *LiveSource {
	return &LiveSource{TotalGPUs: totalGPUs, fallback: fallback, log: log}
}

func (s *LiveSource) Read() types.SystemInfo {
	vm, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn("telemetry: memory probe failed, using synthetic reading", "error", err)
		return s.fallback.Read()
	}

	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		s.log.Warn("telemetry: cpu probe failed, using synthetic reading", "error", err)
		return s.fallback.Read()
	}

	utilization := percents[0]
	available := s.TotalGPUs
	if utilization > 80 {
		available = s.TotalGPUs / 2
	}

	return types.SystemInfo{
		TotalGPUs:          s.TotalGPUs,
		AvailableGPUs:      available,
		TotalMemory:        vm.Total,
		UsedMemory:         vm.Used,
		MemoryUsagePercent: vm.UsedPercent,
		AvgUtilization:     utilization,
		AvgTemperature:     45 + utilization/3,
		NVMLAvailable:      false,
	}
}

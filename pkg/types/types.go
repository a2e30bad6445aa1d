// Package types defines the core domain models shared across the cluster
// controller: jobs, workers, and the snapshot shape consumed by external
// observers.
package types

import (
	"encoding/json"
	"time"
)

// JobType identifies which executor a job's payload is routed to.
type JobType string

const (
	JobSleep           JobType = "sleep"
	JobCompute         JobType = "compute"
	JobMatrix          JobType = "matrix"
	JobFaultInjection  JobType = "fault_injection"
)

// Priority is an ordinal scheduling priority; higher sorts first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// JobStatus represents a job's position in its lifecycle.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// WorkerStatus represents a worker's current availability.
type WorkerStatus string

const (
	WorkerOnline  WorkerStatus = "online"
	WorkerBusy    WorkerStatus = "busy"
	WorkerFailed  WorkerStatus = "failed"
	WorkerOffline WorkerStatus = "offline" // reserved, unused by the simulator today
)

// DefaultMaxRetries is the standard per-job retry budget. Generated jobs
// take the controller's configured max_retries, which defaults to 3.
const DefaultMaxRetries = 3

// Job is a unit of simulated cluster work.
type Job struct {
	ID           string         `json:"job_id"`
	Type         JobType        `json:"job_type"`
	Priority     Priority       `json:"priority"`
	Status       JobStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	WorkerID     string         `json:"worker_id"`
	Parameters   map[string]any `json:"parameters"`
	Result       any            `json:"result"`
	ErrorMessage string         `json:"error_message"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
}

// Duration reports how long the job ran, nil unless both timestamps are set.
func (j *Job) Duration() *float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	d := j.CompletedAt.Sub(*j.StartedAt).Seconds()
	return &d
}

// jobJSON mirrors Job's fields for serialization, adding the computed
// duration alongside them. Aliasing Job directly would recurse into this
// same MarshalJSON, so the fields are restated here instead.
type jobJSON struct {
	ID           string         `json:"job_id"`
	Type         JobType        `json:"job_type"`
	Priority     Priority       `json:"priority"`
	Status       JobStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	WorkerID     *string        `json:"worker_id"`
	Parameters   map[string]any `json:"parameters"`
	Result       any            `json:"result"`
	ErrorMessage *string        `json:"error_message"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	Duration     *float64       `json:"duration"`
}

// nullableString returns nil (serializing as JSON null) for an unset
// field instead of an empty string, matching the original's to_dict().
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MarshalJSON emits Job's fields plus the computed duration, since
// Duration() is a method and encoding/json never invokes it on its own.
// worker_id and error_message render as null rather than being omitted
// when unset, matching the original's to_dict().
func (j *Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobJSON{
		ID:           j.ID,
		Type:         j.Type,
		Priority:     j.Priority,
		Status:       j.Status,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		WorkerID:     nullableString(j.WorkerID),
		Parameters:   j.Parameters,
		Result:       j.Result,
		ErrorMessage: nullableString(j.ErrorMessage),
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		Duration:     j.Duration(),
	})
}

// Clone returns a deep copy safe to hand to a caller outside the lock.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.Parameters != nil {
		clone.Parameters = make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			clone.Parameters[k] = v
		}
	}
	return &clone
}

// Worker is a simulated compute node.
type Worker struct {
	ID                  string       `json:"worker_id"`
	Status              WorkerStatus `json:"status"`
	CurrentJob          *Job         `json:"current_job"`
	LastHeartbeat       time.Time    `json:"last_heartbeat"`
	FailureProbability  float64      `json:"failure_probability"`
	RecoveryTimeSeconds int          `json:"-"`
}

// IsAvailable reports whether the worker can accept a new job.
func (w *Worker) IsAvailable() bool {
	return w.Status == WorkerOnline && w.CurrentJob == nil
}

// Clone returns a deep copy safe to hand to a caller outside the lock.
func (w *Worker) Clone() *Worker {
	if w == nil {
		return nil
	}
	clone := *w
	clone.CurrentJob = w.CurrentJob.Clone()
	return &clone
}

// Stats accumulates the cluster's lifetime and point-in-time counters.
type Stats struct {
	TotalJobs        int       `json:"total_jobs"`
	CompletedJobs    int       `json:"completed_jobs"`
	FailedJobs       int       `json:"failed_jobs"`
	WorkerFailures   int       `json:"worker_failures"`
	WorkerRecoveries int       `json:"worker_recoveries"`
	ActiveWorkers    int       `json:"active_workers"`
	SimulationStart  time.Time `json:"simulation_start"`
}

// SimulationInfo reports the rates governing the running simulation.
type SimulationInfo struct {
	UptimeSeconds      float64 `json:"uptime"`
	JobGenerationRate  float64 `json:"job_generation_rate"`
	FailureRate        float64 `json:"failure_rate"`
	RecoveryTime       int     `json:"recovery_time"`
}

// WorkerView is the JSON-facing projection of a Worker used in snapshots.
type WorkerView struct {
	WorkerID           string       `json:"worker_id"`
	Status             WorkerStatus `json:"status"`
	FailureProbability float64      `json:"failure_probability"`
	CurrentJob         *Job         `json:"current_job"`
	IsAvailable        bool         `json:"is_available"`
	LastHeartbeat      time.Time    `json:"last_heartbeat"`
}

// SystemInfo is the telemetry block embedded in every snapshot as
// gpu_info. It is produced by a telemetry.Source, not by the cluster.
type SystemInfo struct {
	TotalGPUs           int     `json:"total_gpus"`
	AvailableGPUs       int     `json:"available_gpus"`
	TotalMemory         uint64  `json:"total_memory"`
	UsedMemory          uint64  `json:"used_memory"`
	MemoryUsagePercent  float64 `json:"memory_usage_percent"`
	AvgUtilization      float64 `json:"avg_utilization"`
	AvgTemperature      float64 `json:"avg_temperature"`
	NVMLAvailable       bool    `json:"nvml_available"`
}

// Snapshot is the immutable, serialization-ready view of the whole
// controller produced under the cluster lock by the snapshot exporter.
type Snapshot struct {
	SimulationInfo SimulationInfo        `json:"simulation_info"`
	Workers        map[string]WorkerView `json:"workers"`
	Jobs           map[string]*Job       `json:"jobs"`
	JobQueue       []*Job                `json:"job_queue"`
	Stats          Stats                 `json:"stats"`
	GPUInfo        SystemInfo            `json:"gpu_info"`
}

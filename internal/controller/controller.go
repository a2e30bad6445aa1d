// Package controller runs the five cooperating activities that drive the
// simulated cluster: job generation, priority scheduling, execution,
// fault injection, and heartbeat monitoring, all sharing one
// lock-guarded cluster.State.
package controller

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/autonomous-cluster/internal/cluster"
	"github.com/ChuLiYu/autonomous-cluster/internal/executor"
	"github.com/ChuLiYu/autonomous-cluster/internal/metrics"
	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
	"github.com/ChuLiYu/autonomous-cluster/internal/telemetry"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

var log = slog.Default()

const (
	generatorTick     = 1 * time.Second
	schedulerTick     = 500 * time.Millisecond
	runnerTick        = 1 * time.Second
	faultInjectorTick = 5 * time.Second
	heartbeatTick     = 10 * time.Second
	heartbeatFailRisk = 0.001
)

var jobTypeWeights = []struct {
	jobType types.JobType
	weight  float64
}{
	{types.JobSleep, 0.3},
	{types.JobCompute, 0.4},
	{types.JobMatrix, 0.2},
	{types.JobFaultInjection, 0.1},
}

var priorityWeights = []struct {
	priority types.Priority
	weight   float64
}{
	{types.PriorityLow, 0.2},
	{types.PriorityNormal, 0.5},
	{types.PriorityHigh, 0.2},
	{types.PriorityCritical, 0.1},
}

// Config configures a Controller.
type Config struct {
	Workers           []*types.Worker
	JobGenerationRate float64
	FailureRate       float64
	RecoveryTime      time.Duration
	MaxRetries        int
	Clock             simclock.Clock
	Rand              simclock.Rand
	Telemetry         telemetry.Source
	Metrics           *metrics.Collector
}

// Controller runs the generator, scheduler, runner, fault injector, and
// heartbeat monitor loops against one shared cluster.State.
type Controller struct {
	cluster   *cluster.State
	registry  *executor.Registry
	telemetry telemetry.Source
	clock     simclock.Clock
	rnd       simclock.Rand
	metrics   *metrics.Collector

	stopCh  chan struct{}
	loopWg  sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// New constructs a Controller ready to Start.
func New(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = simclock.RealClock{}
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = simclock.NewLockedRand(time.Now().UnixNano())
	}

	state := cluster.New(cfg.Workers, cfg.JobGenerationRate, cfg.FailureRate, cfg.RecoveryTime, cfg.MaxRetries, clock.Now())

	return &Controller{
		cluster:   state,
		registry:  executor.NewRegistry(),
		telemetry: cfg.Telemetry,
		clock:     clock,
		rnd:       rnd,
		metrics:   cfg.Metrics,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the five controller activities as independent goroutines.
func (c *Controller) Start() {
	c.loopWg.Add(5)
	go c.generatorLoop()
	go c.schedulerLoop()
	go c.runnerLoop()
	go c.faultInjectorLoop()
	go c.heartbeatLoop()

	log.Info("controller started", "workers", len(c.cluster.OnlineWorkerIDs()))
}

// Stop signals every activity to exit on its next tick and waits for them.
// In-flight executor invocations are not preempted, so a job running when
// Stop is called may still complete or fail after this call returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	c.loopWg.Wait()
	log.Info("controller stopped")
}

// SetJobGenerationRate clamps rate into [0.1, 50.0] and applies it
// immediately; the new rate takes effect on the generator's next tick.
func (c *Controller) SetJobGenerationRate(rate float64) float64 {
	if rate < 0.1 {
		rate = 0.1
	}
	if rate > 50.0 {
		rate = 50.0
	}
	c.cluster.SetJobGenerationRate(rate)
	return rate
}

// Snapshot produces the immutable point-in-time view external observers
// consume, combining cluster state with a fresh telemetry reading.
func (c *Controller) Snapshot() types.Snapshot {
	var gpuInfo types.SystemInfo
	if c.telemetry != nil {
		gpuInfo = c.telemetry.Read()
	}
	return c.cluster.Snapshot(c.clock.Now(), gpuInfo)
}

// generatorLoop rolls, once a second, whether a new job is emitted this
// tick, scaling the per-minute job generation rate down to a per-second
// probability.
func (c *Controller) generatorLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(generatorTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.maybeGenerateJob()
		}
	}
}

func (c *Controller) maybeGenerateJob() {
	rate := c.cluster.JobGenerationRate()
	if c.rnd.Float64() >= rate/60.0 {
		return
	}

	jobType := weightedJobType(c.rnd)
	priority := weightedPriority(c.rnd)

	job := &types.Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Priority:   priority,
		Status:     types.StatusPending,
		CreatedAt:  c.clock.Now(),
		Parameters: generateParameters(jobType, c.rnd),
		MaxRetries: c.cluster.MaxRetries(),
	}

	c.cluster.AddJob(job)
	if c.metrics != nil {
		c.metrics.RecordGenerated()
	}
	log.Debug("job generated", "job_id", job.ID, "job_type", job.Type, "priority", job.Priority)
}

func weightedJobType(rnd simclock.Rand) types.JobType {
	weights := make([]float64, len(jobTypeWeights))
	for i, w := range jobTypeWeights {
		weights[i] = w.weight
	}
	return jobTypeWeights[simclock.WeightedChoice(rnd, weights)].jobType
}

func weightedPriority(rnd simclock.Rand) types.Priority {
	weights := make([]float64, len(priorityWeights))
	for i, w := range priorityWeights {
		weights[i] = w.weight
	}
	return priorityWeights[simclock.WeightedChoice(rnd, weights)].priority
}

func generateParameters(jobType types.JobType, rnd simclock.Rand) map[string]any {
	switch jobType {
	case types.JobSleep:
		return map[string]any{"duration": simclock.UniformInt(rnd, 1, 5)}
	case types.JobCompute:
		return map[string]any{"iterations": simclock.UniformInt(rnd, 100000, 1000000)}
	case types.JobMatrix:
		return map[string]any{"matrix_size": simclock.UniformInt(rnd, 500, 2000)}
	case types.JobFaultInjection:
		return map[string]any{
			"failure_rate": simclock.UniformFloat(rnd, 0.05, 0.2),
			"duration":     simclock.UniformInt(rnd, 2, 8),
		}
	default:
		return map[string]any{}
	}
}

// schedulerLoop dispatches queued jobs to available workers twice a
// second and refreshes the queue-depth/active-worker gauges.
func (c *Controller) schedulerLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			assignments := c.cluster.Schedule(c.rnd, c.clock.Now())
			for _, a := range assignments {
				log.Debug("job dispatched", "job_id", a.Job.ID, "worker_id", a.WorkerID)
			}
			if c.metrics != nil {
				c.metrics.UpdateGauges(c.cluster.QueueDepth(), c.cluster.ActiveWorkers())
			}
		}
	}
}

// runnerLoop, each tick, snapshots the running assignments under the
// lock, releases it, and dispatches each to its own goroutine so no
// executor body blocks another.
func (c *Controller) runnerLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(runnerTick)
	defer ticker.Stop()

	dispatched := make(map[string]bool)
	var dispatchedMu sync.Mutex

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for _, a := range c.cluster.RunningAssignments() {
				dispatchedMu.Lock()
				if dispatched[a.Job.ID] {
					dispatchedMu.Unlock()
					continue
				}
				dispatched[a.Job.ID] = true
				dispatchedMu.Unlock()

				go c.runJob(a, &dispatchedMu, dispatched)
			}
		}
	}
}

func (c *Controller) runJob(a cluster.Assignment, dispatchedMu *sync.Mutex, dispatched map[string]bool) {
	defer func() {
		dispatchedMu.Lock()
		delete(dispatched, a.Job.ID)
		dispatchedMu.Unlock()
	}()

	startedAt := c.clock.Now()
	result, err := c.registry.Execute(a.Job, c.rnd)
	now := c.clock.Now()
	latency := now.Sub(startedAt).Seconds()

	if err != nil {
		if cerr := c.cluster.FailJob(a.Job.ID, now, err.Error()); cerr == nil {
			if c.metrics != nil {
				c.metrics.RecordFailed()
			}
			log.Debug("job failed", "job_id", a.Job.ID, "error", err)
		}
		return
	}

	if cerr := c.cluster.CompleteJob(a.Job.ID, now, result); cerr == nil {
		if c.metrics != nil {
			c.metrics.RecordCompleted(latency)
		}
		log.Debug("job completed", "job_id", a.Job.ID, "latency_seconds", latency)
	}
}

// faultInjectorLoop scans online workers every five seconds, rolling
// each against its per-minute failure probability scaled to this tick.
func (c *Controller) faultInjectorLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(faultInjectorTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for _, id := range c.cluster.OnlineWorkerIDs() {
				prob, err := c.cluster.FailureProbability(id)
				if err != nil {
					continue
				}
				if c.rnd.Float64() < prob/60.0 {
					c.failAndScheduleRecovery(id)
				}
			}
		}
	}
}

// heartbeatLoop refreshes every online worker's last-heartbeat timestamp
// every ten seconds, with a small independent chance of flagging a
// worker as failed before its heartbeat lands (a silent-death scenario
// distinct from the fault injector's explicit failures).
func (c *Controller) heartbeatLoop() {
	defer c.loopWg.Done()
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := c.clock.Now()
			for _, id := range c.cluster.OnlineWorkerIDs() {
				if c.rnd.Float64() < heartbeatFailRisk {
					c.failAndScheduleRecovery(id)
					continue
				}
				c.cluster.RefreshHeartbeat(id, now)
			}
		}
	}
}

// failAndScheduleRecovery fails the worker now, then schedules a
// one-shot recovery after its configured recovery time.
func (c *Controller) failAndScheduleRecovery(workerID string) {
	now := c.clock.Now()
	ok, jobExhausted := c.cluster.FailWorker(workerID, now)
	if !ok {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordWorkerFailure()
		if jobExhausted {
			c.metrics.RecordFailed()
		}
	}
	log.Debug("worker failed", "worker_id", workerID)

	recoveryTime, err := c.cluster.RecoveryTimeFor(workerID)
	if err != nil {
		return
	}
	time.AfterFunc(recoveryTime, func() {
		c.cluster.RecoverWorker(workerID, c.clock.Now())
		if c.metrics != nil {
			c.metrics.RecordWorkerRecovery()
		}
		log.Debug("worker recovered", "worker_id", workerID)
	})
}

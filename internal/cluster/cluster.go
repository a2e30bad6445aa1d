// Package cluster holds the single authoritative in-memory store of
// workers, jobs, and the pending queue, protected by one mutex: a
// hybrid map+index design extended with worker entities alongside the
// job lifecycle.
package cluster

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

var (
	// ErrJobNotFound indicates a job ID has no entry in the store.
	ErrJobNotFound = errors.New("cluster: job not found")
	// ErrWorkerNotFound indicates a worker ID has no entry in the store.
	ErrWorkerNotFound = errors.New("cluster: worker not found")
	// ErrJobNotRunning indicates a completion was reported for a job that
	// is not currently RUNNING (already handled by a concurrent failure).
	ErrJobNotRunning = errors.New("cluster: job not running")
)

// Assignment is a (worker, job) pair the scheduler has just dispatched;
// the runner uses it to invoke the executor outside the cluster lock.
type Assignment struct {
	WorkerID string
	Job      *types.Job
}

// State is the cluster's single mutex-guarded store of jobs, the pending
// queue, workers, and stats.
type State struct {
	mu sync.Mutex

	jobs    map[string]*types.Job
	queue   []*types.Job
	workers map[string]*types.Worker
	stats   types.Stats

	jobGenerationRate float64
	failureRate       float64
	recoveryTime      time.Duration
	maxRetries        int
}

// New builds a cluster store seeded with the given workers.
func New(workers []*types.Worker, jobGenerationRate float64, failureRate float64, recoveryTime time.Duration, maxRetries int, startedAt time.Time) *State {
	s := &State{
		jobs:              make(map[string]*types.Job),
		queue:             make([]*types.Job, 0),
		workers:           make(map[string]*types.Worker, len(workers)),
		jobGenerationRate: jobGenerationRate,
		failureRate:       failureRate,
		recoveryTime:      recoveryTime,
		maxRetries:        maxRetries,
	}
	for _, w := range workers {
		if w.LastHeartbeat.IsZero() {
			w.LastHeartbeat = startedAt
		}
		s.workers[w.ID] = w
	}
	s.stats = types.Stats{
		ActiveWorkers:   len(workers),
		SimulationStart: startedAt,
	}
	return s
}

// JobGenerationRate returns the current job-emission rate (jobs/minute).
func (s *State) JobGenerationRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobGenerationRate
}

// SetJobGenerationRate updates the rate; callers are responsible for
// clamping it into the accepted range before calling.
func (s *State) SetJobGenerationRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobGenerationRate = rate
}

// MaxRetries returns the cluster-wide default retry budget assigned to
// freshly generated jobs.
func (s *State) MaxRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxRetries
}

// AddJob inserts a freshly generated PENDING job and bumps stats.total_jobs.
func (s *State) AddJob(job *types.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	s.queue = append(s.queue, job)
	s.stats.TotalJobs++
}

// Schedule stable-sorts the queue by priority descending, then while both
// a queued job and an available worker remain, picks a worker uniformly
// at random and assigns. Returns every assignment made this tick.
func (s *State) Schedule(rnd simclock.Rand, now time.Time) []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}

	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].Priority > s.queue[j].Priority
	})

	var assignments []Assignment
	for len(s.queue) > 0 {
		available := s.availableWorkerIDsLocked()
		if len(available) == 0 {
			break
		}

		job := s.queue[0]
		s.queue = s.queue[1:]

		pick := available[simclock.UniformInt(rnd, 0, len(available)-1)]
		worker := s.workers[pick]

		startedAt := now
		job.Status = types.StatusRunning
		job.StartedAt = &startedAt
		job.WorkerID = worker.ID
		worker.CurrentJob = job
		worker.Status = types.WorkerBusy

		assignments = append(assignments, Assignment{WorkerID: worker.ID, Job: job})
	}

	return assignments
}

func (s *State) availableWorkerIDsLocked() []string {
	var ids []string
	for id, w := range s.workers {
		if w.IsAvailable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids) // deterministic ordering before the random pick
	return ids
}

// RunningAssignments returns the (worker, job) pairs currently RUNNING,
// for the executor runner to dispatch outside the lock.
func (s *State) RunningAssignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Assignment
	for id, w := range s.workers {
		if w.Status == types.WorkerBusy && w.CurrentJob != nil && w.CurrentJob.Status == types.StatusRunning {
			out = append(out, Assignment{WorkerID: id, Job: w.CurrentJob})
		}
	}
	return out
}

// CompleteJob records a successful execution. A no-op if the job is no
// longer RUNNING (it was already reassigned by a concurrent failure).
func (s *State) CompleteJob(jobID string, now time.Time, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != types.StatusRunning {
		return ErrJobNotRunning
	}

	job.Status = types.StatusCompleted
	job.Result = result
	job.CompletedAt = &now
	s.stats.CompletedJobs++

	if w, ok := s.workers[job.WorkerID]; ok && w.CurrentJob == job {
		w.CurrentJob = nil
		if w.Status != types.WorkerFailed {
			w.Status = types.WorkerOnline
		}
	}
	return nil
}

// FailJob records an execution failure (not a worker failure). A no-op
// if the job is no longer RUNNING.
func (s *State) FailJob(jobID string, now time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != types.StatusRunning {
		return ErrJobNotRunning
	}

	job.Status = types.StatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	s.stats.FailedJobs++

	if w, ok := s.workers[job.WorkerID]; ok && w.CurrentJob == job {
		w.CurrentJob = nil
		if w.Status != types.WorkerFailed {
			w.Status = types.WorkerOnline
		}
	}
	return nil
}

// FailWorker marks a worker FAILED, requeues its in-flight job if retries
// remain (otherwise fails the job outright), and reports whether the
// worker transitioned and whether that transition exhausted a job's
// retry budget. It returns ok=false if the worker does not exist or is
// already FAILED (idempotent against a concurrent failure of the same
// worker).
func (s *State) FailWorker(workerID string, now time.Time) (ok bool, jobExhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.workers[workerID]
	if !exists || w.Status == types.WorkerFailed {
		return false, false
	}

	wasActive := w.Status == types.WorkerOnline || w.Status == types.WorkerBusy
	w.Status = types.WorkerFailed
	if wasActive {
		s.stats.ActiveWorkers--
	}
	s.stats.WorkerFailures++

	job := w.CurrentJob
	w.CurrentJob = nil
	if job == nil || job.Status != types.StatusRunning {
		// Already completed/failed in this critical section: no-op for the job.
		return true, false
	}

	job.Status = types.StatusPending
	job.WorkerID = ""
	job.StartedAt = nil
	job.RetryCount++

	if job.RetryCount <= job.MaxRetries {
		s.queue = append(s.queue, job)
		return true, false
	}

	job.Status = types.StatusFailed
	job.ErrorMessage = "Max retries exceeded due to worker failures"
	completedAt := now
	job.CompletedAt = &completedAt
	s.stats.FailedJobs++
	return true, true
}

// RecoverWorker transitions a FAILED worker back to ONLINE. Idempotent:
// recovering a worker that is no longer FAILED is a no-op.
func (s *State) RecoverWorker(workerID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.workers[workerID]
	if !exists || w.Status != types.WorkerFailed {
		return
	}

	w.Status = types.WorkerOnline
	w.LastHeartbeat = now
	s.stats.WorkerRecoveries++
	s.stats.ActiveWorkers++
}

// OnlineWorkerIDs returns the IDs of all workers currently ONLINE, the
// pool the fault injector and heartbeat monitor scan for failure
// candidates. BUSY and FAILED workers are excluded.
func (s *State) OnlineWorkerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, w := range s.workers {
		if w.Status == types.WorkerOnline {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// FailureProbability returns a worker's per-minute hazard rate, or
// ErrWorkerNotFound if workerID names no worker.
func (s *State) FailureProbability(workerID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return 0, ErrWorkerNotFound
	}
	return w.FailureProbability, nil
}

// RecoveryTimeFor returns the recovery delay configured for a worker,
// falling back to the cluster-wide default when the worker has none set,
// or ErrWorkerNotFound if workerID names no worker.
func (s *State) RecoveryTimeFor(workerID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return 0, ErrWorkerNotFound
	}
	if w.RecoveryTimeSeconds > 0 {
		return time.Duration(w.RecoveryTimeSeconds) * time.Second, nil
	}
	return s.recoveryTime, nil
}

// RefreshHeartbeat sets a worker's last_heartbeat to now.
func (s *State) RefreshHeartbeat(workerID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[workerID]; ok {
		w.LastHeartbeat = now
	}
}

// QueueDepth returns the number of jobs currently waiting to be scheduled.
func (s *State) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ActiveWorkers returns the count of workers not currently FAILED.
func (s *State) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.ActiveWorkers
}

// Snapshot produces a deeply-copied, immutable view of the cluster,
// combined with a telemetry reading taken by the caller (telemetry is an
// independent component, not cluster state).
func (s *State) Snapshot(now time.Time, gpuInfo types.SystemInfo) types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobsCopy := make(map[string]*types.Job, len(s.jobs))
	for id, j := range s.jobs {
		jobsCopy[id] = j.Clone()
	}

	queueCopy := make([]*types.Job, len(s.queue))
	for i, j := range s.queue {
		queueCopy[i] = j.Clone()
	}

	workersCopy := make(map[string]types.WorkerView, len(s.workers))
	for id, w := range s.workers {
		workersCopy[id] = types.WorkerView{
			WorkerID:           w.ID,
			Status:             w.Status,
			FailureProbability: w.FailureProbability,
			CurrentJob:         w.CurrentJob.Clone(),
			IsAvailable:        w.IsAvailable(),
			LastHeartbeat:      w.LastHeartbeat,
		}
	}

	return types.Snapshot{
		SimulationInfo: types.SimulationInfo{
			UptimeSeconds:     now.Sub(s.stats.SimulationStart).Seconds(),
			JobGenerationRate: s.jobGenerationRate,
			FailureRate:       s.failureRate,
			RecoveryTime:      int(s.recoveryTime.Seconds()),
		},
		Workers:  workersCopy,
		Jobs:     jobsCopy,
		JobQueue: queueCopy,
		Stats:    s.stats,
		GPUInfo:  gpuInfo,
	}
}

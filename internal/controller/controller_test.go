package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/autonomous-cluster/internal/cluster"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

// fakeClock reports a settable time, advanced explicitly by tests instead
// of tracking real wall-clock time.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

// scriptedRand returns a fixed sequence of floats/ints, then falls back to
// zero once exhausted, so tests can force a specific probabilistic branch.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (s *scriptedRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

func newWorker(id string, failureProbability float64) *types.Worker {
	return &types.Worker{
		ID:                  id,
		Status:              types.WorkerOnline,
		FailureProbability:  failureProbability,
		RecoveryTimeSeconds: 30,
	}
}

func TestNewControllerSeedsClusterState(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 2.0,
		FailureRate:       0.1,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{},
	})

	snap := c.Snapshot()
	require.Contains(t, snap.Workers, "w1")
	assert.Equal(t, types.WorkerOnline, snap.Workers["w1"].Status)
	assert.Equal(t, 1, snap.Stats.ActiveWorkers)
	assert.Equal(t, 0.1, snap.SimulationInfo.FailureRate)
}

func TestMaybeGenerateJobEmitsWhenRollBelowThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 60.0, // rate/60 == 1.0, any roll qualifies
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{floats: []float64{0.0, 0.1, 0.2}},
	})

	c.maybeGenerateJob()

	snap := c.Snapshot()
	assert.Equal(t, 1, snap.Stats.TotalJobs)
	require.Len(t, snap.JobQueue, 1)
}

func TestMaybeGenerateJobSkipsWhenRollAboveThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 0.1,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{floats: []float64{0.99}},
	})

	c.maybeGenerateJob()

	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Stats.TotalJobs)
}

func TestSchedulerDispatchesHighestPriorityFirst(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0), newWorker("w2", 0)},
		JobGenerationRate: 2.0,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{ints: []int{0, 0}},
	})

	c.cluster.AddJob(&types.Job{ID: "j1-low", Priority: types.PriorityLow, Status: types.StatusPending, MaxRetries: 3})
	c.cluster.AddJob(&types.Job{ID: "j2-critical", Priority: types.PriorityCritical, Status: types.StatusPending, MaxRetries: 3})
	c.cluster.AddJob(&types.Job{ID: "j3-normal", Priority: types.PriorityNormal, Status: types.StatusPending, MaxRetries: 3})

	assignments := c.cluster.Schedule(c.rnd, clock.Now())

	require.Len(t, assignments, 2)
	dispatched := map[string]bool{}
	for _, a := range assignments {
		dispatched[a.Job.ID] = true
	}
	assert.True(t, dispatched["j2-critical"])
	assert.True(t, dispatched["j3-normal"])
	assert.False(t, dispatched["j1-low"])
}

func TestRunJobCompletesSleepJobSynchronously(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 2.0,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{},
	})

	job := &types.Job{
		ID:         "j1",
		Type:       types.JobSleep,
		Status:     types.StatusRunning,
		WorkerID:   "w1",
		MaxRetries: 3,
		Parameters: map[string]any{"duration": 0},
	}
	c.cluster.AddJob(job)
	c.cluster.Schedule(c.rnd, clock.Now())

	var mu sync.Mutex
	c.runJob(cluster.Assignment{WorkerID: "w1", Job: job}, &mu, map[string]bool{})

	snap := c.Snapshot()
	assert.Equal(t, types.StatusCompleted, snap.Jobs["j1"].Status)
	assert.Equal(t, 1, snap.Stats.CompletedJobs)
}

func TestRunJobExecutorFailureMarksJobFailed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 2.0,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{floats: []float64{0.0}}, // failure_rate=1.0 always triggers
	})

	job := &types.Job{
		ID:         "j1",
		Type:       types.JobFaultInjection,
		Status:     types.StatusRunning,
		WorkerID:   "w1",
		MaxRetries: 3,
		Parameters: map[string]any{"failure_rate": 1.0, "duration": 0},
	}
	c.cluster.AddJob(job)
	c.cluster.Schedule(c.rnd, clock.Now())

	var mu sync.Mutex
	c.runJob(cluster.Assignment{WorkerID: "w1", Job: job}, &mu, map[string]bool{})

	snap := c.Snapshot()
	assert.Equal(t, types.StatusFailed, snap.Jobs["j1"].Status)
	assert.Contains(t, snap.Jobs["j1"].ErrorMessage, "j1")
}

func TestFailAndScheduleRecoveryRequeuesThenRecovers(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	// No per-worker recovery time, so the cluster-wide 10ms applies.
	worker := newWorker("w1", 1.0)
	worker.RecoveryTimeSeconds = 0
	c := New(Config{
		Workers:           []*types.Worker{worker},
		JobGenerationRate: 2.0,
		RecoveryTime:      10 * time.Millisecond,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{},
	})

	job := &types.Job{
		ID:         "j1",
		Type:       types.JobSleep,
		Status:     types.StatusRunning,
		WorkerID:   "w1",
		MaxRetries: 3,
		Parameters: map[string]any{"duration": 100},
	}
	c.cluster.AddJob(job)
	c.cluster.Schedule(c.rnd, clock.Now())

	c.failAndScheduleRecovery("w1")

	snap := c.Snapshot()
	assert.Equal(t, types.StatusPending, snap.Jobs["j1"].Status)
	assert.Equal(t, 1, snap.Jobs["j1"].RetryCount)
	assert.Equal(t, types.WorkerFailed, snap.Workers["w1"].Status)

	require.Eventually(t, func() bool {
		return c.Snapshot().Workers["w1"].Status == types.WorkerOnline
	}, time.Second, 5*time.Millisecond, "worker should recover after the cluster-wide recovery time")
}

func TestSetJobGenerationRateClampsToBounds(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 2.0,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{},
	})

	assert.Equal(t, 50.0, c.SetJobGenerationRate(999))
	assert.Equal(t, 0.1, c.SetJobGenerationRate(0))
	assert.Equal(t, 10.0, c.SetJobGenerationRate(10))
}

func TestStartStopShutsDownAllLoops(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{
		Workers:           []*types.Worker{newWorker("w1", 0)},
		JobGenerationRate: 0.1,
		RecoveryTime:      30 * time.Second,
		MaxRetries:        3,
		Clock:             clock,
		Rand:              &scriptedRand{},
	})

	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	c.Stop() // idempotent
}

// Package executor implements the job-type capability registry: given a
// Job, produce a result value or fail with a typed execution error,
// entirely synchronously from the caller's point of view.
//
// Executors are pure with respect to cluster state — they never touch a
// ClusterState or Worker, only the Job's own parameters — so the
// controller can safely invoke them outside its lock.
package executor

import (
	"fmt"
	"time"

	"github.com/ChuLiYu/autonomous-cluster/internal/simclock"
	"github.com/ChuLiYu/autonomous-cluster/pkg/types"
)

// ExecutionError is returned by an executor when the simulated job itself
// fails (as opposed to a registry lookup failure).
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// NoExecutorError indicates no registered executor claims a job's type.
// Treated as a programmer error: the job is marked FAILED and the
// controller continues.
type NoExecutorError struct {
	JobType types.JobType
}

func (e *NoExecutorError) Error() string {
	return fmt.Sprintf("no executor registered for job type %q", e.JobType)
}

// Executor is a job-type capability: it claims jobs by exact type match and
// executes them synchronously.
type Executor interface {
	CanExecute(job *types.Job) bool
	Execute(job *types.Job, rnd simclock.Rand) (any, error)
}

// Registry holds the registered executors and dispatches by first match,
// in registration order.
type Registry struct {
	executors []Executor
}

// NewRegistry returns a Registry pre-loaded with the four built-in
// job-type executors.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(sleepExecutor{})
	r.Register(computeExecutor{})
	r.Register(matrixExecutor{})
	r.Register(faultInjectionExecutor{})
	return r
}

// Register appends an executor to the lookup chain.
func (r *Registry) Register(e Executor) {
	r.executors = append(r.executors, e)
}

// Execute finds the first executor that claims job and runs it.
func (r *Registry) Execute(job *types.Job, rnd simclock.Rand) (any, error) {
	for _, e := range r.executors {
		if e.CanExecute(job) {
			return e.Execute(job, rnd)
		}
	}
	return nil, &NoExecutorError{JobType: job.Type}
}

func paramFloat(job *types.Job, key string, fallback float64) float64 {
	v, ok := job.Parameters[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

func paramInt(job *types.Job, key string, fallback int) int {
	v, ok := job.Parameters[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// sleepExecutor blocks for parameters.duration seconds, simulating GPU work.
type sleepExecutor struct{}

func (sleepExecutor) CanExecute(job *types.Job) bool { return job.Type == types.JobSleep }

func (sleepExecutor) Execute(job *types.Job, _ simclock.Rand) (any, error) {
	duration := paramFloat(job, "duration", 5)
	time.Sleep(time.Duration(duration * float64(time.Second)))
	return fmt.Sprintf("Sleep job completed after %v seconds", duration), nil
}

// computeExecutor performs parameters.iterations accumulations of i*rand().
// It has no failure path.
type computeExecutor struct{}

func (computeExecutor) CanExecute(job *types.Job) bool { return job.Type == types.JobCompute }

func (computeExecutor) Execute(job *types.Job, rnd simclock.Rand) (any, error) {
	iterations := paramInt(job, "iterations", 1000000)
	result := 0.0
	for i := 0; i < iterations; i++ {
		result += float64(i) * rnd.Float64()
	}
	return fmt.Sprintf("Compute job completed: %.2f", result), nil
}

// matrixExecutor performs a dense size x size matrix multiplication. It
// fails only for a non-positive matrix_size; a panic during the
// multiplication falls back to a bounded loop that always succeeds.
type matrixExecutor struct{}

func (matrixExecutor) CanExecute(job *types.Job) bool { return job.Type == types.JobMatrix }

func (matrixExecutor) Execute(job *types.Job, rnd simclock.Rand) (result any, err error) {
	size := paramInt(job, "matrix_size", 1000)

	defer func() {
		if r := recover(); r != nil {
			result, err = matrixFallback(size)
		}
	}()

	return multiplyRandomMatrices(size, rnd)
}

// faultInjectionExecutor fails immediately with parameters.failure_rate
// probability; otherwise sleeps parameters.duration seconds and succeeds.
type faultInjectionExecutor struct{}

func (faultInjectionExecutor) CanExecute(job *types.Job) bool {
	return job.Type == types.JobFaultInjection
}

func (faultInjectionExecutor) Execute(job *types.Job, rnd simclock.Rand) (any, error) {
	failureRate := paramFloat(job, "failure_rate", 0.1)
	if rnd.Float64() < failureRate {
		return nil, &ExecutionError{Message: fmt.Sprintf("Simulated failure in job %s", job.ID)}
	}

	duration := paramFloat(job, "duration", 3)
	time.Sleep(time.Duration(duration * float64(time.Second)))
	return fmt.Sprintf("Fault injection job completed after %v seconds", duration), nil
}

// matrixFallback performs a bounded nested-loop sum plus a 100ms sleep,
// standing in for the multiplication when the matrix is too large or the
// linear-algebra call itself panics.
func matrixFallback(size int) (any, error) {
	iterations := size
	if iterations > 100 {
		iterations = 100
	}

	result := 0
	for i := 0; i < iterations; i++ {
		for j := 0; j < iterations; j++ {
			result += (i * j) % 1000
		}
	}
	time.Sleep(100 * time.Millisecond)

	return fmt.Sprintf("Matrix simulation completed (fallback): %d (size: %dx%d)", result, iterations, iterations), nil
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/atelierhq/atelier-api/internal/domain"
	"github.com/atelierhq/atelier-api/internal/platform/logger"
	"github.com/atelierhq/atelier-api/internal/queue"
)

// TickConfig bounds a single processing tick. Both limits exist because
// the tick runs inside a short-lived scheduled invocation, not a
// long-running worker process.
type TickConfig struct {
	// MaxJobs caps how many jobs one tick may claim.
	MaxJobs int

	// MaxDuration caps the tick's wall-clock budget, including store
	// round-trip latency. The budget is re-checked after every job, so a
	// slow store shortens the tick rather than overrunning it.
	MaxDuration time.Duration
}

// DefaultTickConfig returns a TickConfig with reasonable defaults.
func DefaultTickConfig() TickConfig {
	return TickConfig{
		MaxJobs:     10,
		MaxDuration: 50 * time.Second,
	}
}

// TickResult summarizes one tick invocation.
type TickResult struct {
	// Processed is the number of jobs claimed and dispatched.
	Processed int `json:"processed"`

	// Completed is how many of those succeeded.
	Completed int `json:"completed"`

	// Failed is how many were reported to Fail (retry or escalation).
	Failed int `json:"failed"`

	// Drained is true when the tick stopped because no eligible job
	// remained, rather than hitting a budget limit.
	Drained bool `json:"drained"`
}

// Tick claims jobs one at a time and dispatches each to its registered
// processor. Claiming is the sole atomic gate: overlapping ticks
// (a slow invocation still running when the next fires) can never
// double-claim a job, so no coordination between ticks is needed.
type Tick struct {
	queue    *queue.JobQueue
	registry *Registry
	config   TickConfig
	now      func() time.Time
}

// NewTick creates a Tick over the given queue and registry.
func NewTick(jobQueue *queue.JobQueue, registry *Registry, config TickConfig) *Tick {
	if config.MaxJobs <= 0 {
		config.MaxJobs = DefaultTickConfig().MaxJobs
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = DefaultTickConfig().MaxDuration
	}
	return &Tick{
		queue:    jobQueue,
		registry: registry,
		config:   config,
		now:      time.Now,
	}
}

// SetClock overrides the tick's clock. Tests use this to simulate an
// exhausted budget without sleeping.
func (t *Tick) SetClock(now func() time.Time) {
	t.now = now
}

// Run executes one bounded tick. A store failure aborts the loop and
// returns the counts accumulated so far along with the error; each
// job's own mutations were committed independently, so nothing is left
// half-applied.
func (t *Tick) Run(ctx context.Context) (*TickResult, error) {
	log := logger.FromContext(ctx)
	start := t.now()
	result := &TickResult{}

	for result.Processed < t.config.MaxJobs {
		if t.now().Sub(start) >= t.config.MaxDuration {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		job, err := t.queue.NextJob(ctx)
		if err != nil {
			log.Error("tick aborted: failed to claim next job",
				"processed", result.Processed,
				"error", err)
			return result, err
		}
		if job == nil {
			result.Drained = true
			break
		}

		result.Processed++
		if err := t.dispatch(ctx, job, result); err != nil {
			log.Error("tick aborted: failed to record job outcome",
				"job_id", job.ID,
				"processed", result.Processed,
				"error", err)
			return result, err
		}
	}

	log.Info("tick finished",
		"processed", result.Processed,
		"completed", result.Completed,
		"failed", result.Failed,
		"drained", result.Drained,
		"elapsed", t.now().Sub(start).String())

	return result, nil
}

// dispatch runs one claimed job through its processor and reports the
// outcome. An unknown job type is an immediate permanent-style failure:
// it goes through the normal Fail path so attempts still count toward
// dead-letter escalation instead of looping forever.
//
// A processor failure is a normal outcome; the returned error is
// reserved for store failures while recording the outcome, which must
// abort the whole tick.
func (t *Tick) dispatch(ctx context.Context, job *domain.Job, result *TickResult) error {
	log := logger.FromContext(ctx).With(
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.Attempts,
	)

	processor, ok := t.registry.Lookup(job.Type)
	if !ok {
		log.Error("no processor registered for job type")
		return t.reportFailure(ctx, job, fmt.Sprintf("unknown job type: %s", job.Type), result)
	}

	output, err := t.execute(ctx, processor, job)
	if err != nil {
		log.Error("job execution failed", "error", err)
		return t.reportFailure(ctx, job, err.Error(), result)
	}

	if err := t.queue.Complete(ctx, job.ID, output); err != nil {
		log.Error("failed to record job completion", "error", err)
		return err
	}

	log.Info("job completed")
	result.Completed++
	return nil
}

// execute invokes the processor, converting a panic into an error so a
// misbehaving processor fails its job instead of killing the tick.
func (t *Tick) execute(ctx context.Context, processor ProcessorFunc, job *domain.Job) (output []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processor panic: %v", p)
		}
	}()
	return processor(ctx, job.Payload, job.UserID)
}

// reportFailure hands the failure to the queue, which decides between
// retry with backoff and dead-letter escalation. A store error while
// recording the failure is returned to abort the tick.
func (t *Tick) reportFailure(ctx context.Context, job *domain.Job, errMsg string, result *TickResult) error {
	if err := t.queue.Fail(ctx, job.ID, errMsg); err != nil {
		logger.FromContext(ctx).Error("failed to record job failure",
			"job_id", job.ID,
			"error", err)
		return err
	}
	result.Failed++
	return nil
}

// Package dispatch materializes due scheduled jobs into prompts and feeds
// them to the task queue. The claim is a conditional advance of the job's
// next_run_at, so concurrent sweeps agree on exactly one winner per run.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/counselhq/counsel/internal/schedule"
	"github.com/counselhq/counsel/internal/status"
	"github.com/counselhq/counsel/internal/storage"
)

const defaultSweepInterval = 30 * time.Second

// Store is the subset of storage the dispatcher needs.
type Store interface {
	ListDueScheduledJobs(now time.Time) ([]storage.ScheduledJob, error)
	GetScheduledJob(id int64) (storage.ScheduledJob, error)
	ClaimScheduledJob(id int64, seenNextRun, newNextRun, now time.Time) (bool, error)
	CreatePrompt(text string, scheduledJobID, agentID *int64) (storage.Prompt, error)
	EnqueueTask(taskType string, promptID int64) (storage.Task, error)
	RecordRunDispatched(id, promptID int64, now time.Time, tag string) error
	RecordRunFailure(id int64, tag string, now time.Time) error
}

// Clock supplies the current time; swapped in tests.
type Clock func() time.Time

// Dispatcher periodically sweeps for due scheduled jobs.
type Dispatcher struct {
	store    Store
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. An interval <= 0 defaults to 30s; a
// nil clock uses the wall clock.
func NewDispatcher(store Store, interval time.Duration, clock Clock) *Dispatcher {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   slog.Default(),
	}
}

// Run sweeps on a ticker until ctx is cancelled. An initial sweep happens
// immediately so restarts pick up overdue jobs without waiting a full
// interval.
func (d *Dispatcher) Run(ctx context.Context) {
	d.sweepAndLog(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepAndLog(ctx)
		}
	}
}

func (d *Dispatcher) sweepAndLog(ctx context.Context) {
	n, err := d.Sweep(ctx, d.clock())
	if err != nil {
		d.logger.Error("scheduler sweep failed", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("scheduler sweep dispatched prompts", "count", n)
	}
}

// Sweep processes every active job whose next_run_at has arrived and
// returns how many prompts it dispatched. A failure on one job is recorded
// on that job and never stops the sweep; only the initial listing can fail
// the whole pass.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) (int, error) {
	due, err := d.store.ListDueScheduledJobs(now)
	if err != nil {
		return 0, fmt.Errorf("listing due scheduled jobs: %w", err)
	}

	dispatched := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}

		next, err := schedule.Advance(job.NextRunAt, job.Policy, now)
		if err != nil {
			d.logger.Error("scheduled job has unusable policy, skipping",
				"scheduled_job_id", job.ID, "policy", job.Policy, "error", err)
			d.recordFailure(job.ID, now)
			continue
		}

		ok, err := d.store.ClaimScheduledJob(job.ID, job.NextRunAt, next, now)
		if err != nil {
			d.logger.Error("failed to claim scheduled job", "scheduled_job_id", job.ID, "error", err)
			continue
		}
		if !ok {
			// Another sweep already advanced this run.
			continue
		}

		if err := d.dispatch(job, now); err != nil {
			d.logger.Error("failed to dispatch scheduled job",
				"scheduled_job_id", job.ID, "error", err)
			d.recordFailure(job.ID, now)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// ForceRun dispatches a job immediately without touching its regular
// schedule. Paused jobs can be force-run too. Returns the spawned prompt.
func (d *Dispatcher) ForceRun(ctx context.Context, id int64, now time.Time) (storage.Prompt, error) {
	job, err := d.store.GetScheduledJob(id)
	if err != nil {
		return storage.Prompt{}, fmt.Errorf("loading scheduled job %d: %w", id, err)
	}

	p, err := d.spawn(job, now)
	if err != nil {
		d.recordFailure(job.ID, now)
		return storage.Prompt{}, err
	}
	return p, nil
}

// dispatch materializes one claimed run.
func (d *Dispatcher) dispatch(job storage.ScheduledJob, now time.Time) error {
	_, err := d.spawn(job, now)
	return err
}

// spawn creates the prompt, enqueues its retrieval task, and records the
// run on the job.
func (d *Dispatcher) spawn(job storage.ScheduledJob, now time.Time) (storage.Prompt, error) {
	p, err := d.store.CreatePrompt(job.PromptTemplate, &job.ID, job.AgentID)
	if err != nil {
		return storage.Prompt{}, fmt.Errorf("materializing prompt: %w", err)
	}

	if _, err := d.store.EnqueueTask(storage.TaskRetrieve, p.ID); err != nil {
		return storage.Prompt{}, fmt.Errorf("enqueueing retrieval for prompt %d: %w", p.ID, err)
	}

	if err := d.store.RecordRunDispatched(job.ID, p.ID, now, status.OutcomeTriggered); err != nil {
		d.logger.Warn("failed to record dispatch bookkeeping",
			"scheduled_job_id", job.ID, "prompt_id", p.ID, "error", err)
	}
	return p, nil
}

func (d *Dispatcher) recordFailure(id int64, now time.Time) {
	if err := d.store.RecordRunFailure(id, status.OutcomeFailedDispatch, now); err != nil {
		d.logger.Error("failed to record dispatch failure", "scheduled_job_id", id, "error", err)
	}
}

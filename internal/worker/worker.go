// Package worker drains the SQLite task queue and drives the pipeline
// stages. Delivery is at-least-once; the stages' conditional status entry
// makes redelivered tasks harmless.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/counselhq/counsel/internal/storage"
)

// TaskStore abstracts the task queue operations.
type TaskStore interface {
	ClaimNextTask(types []string) (*storage.Task, error)
	CompleteTask(id string) error
	FailTask(id string, errMsg string) error
	EnqueueTask(taskType string, promptID int64) (storage.Task, error)
}

// Runner executes one pipeline stage for a prompt.
type Runner interface {
	Run(ctx context.Context, promptID int64) error
}

// Worker claims stage tasks and dispatches them to the registered runners.
// The enrich runner is optional; when absent, retrieval completion feeds the
// summarize task only.
type Worker struct {
	store     TaskStore
	retriever Runner
	summarize Runner
	enricher  Runner
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. enricher may be
// nil to disable the enrichment branch. If pollInterval is <= 0, it
// defaults to 500ms.
func NewWorker(store TaskStore, retriever, summarizer, enricher Runner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		retriever: retriever,
		summarize: summarizer,
		enricher:  enricher,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// taskTypes returns the queue types this worker handles, in claim order.
func (w *Worker) taskTypes() []string {
	types := []string{storage.TaskRetrieve, storage.TaskSummarize}
	if w.enricher != nil {
		types = append(types, storage.TaskEnrich)
	}
	return types
}

// RunOnce claims and processes a single stage task. Returns true if a task
// was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.store.ClaimNextTask(w.taskTypes())
	if err != nil {
		return false, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	if err := w.processTask(ctx, task); err != nil {
		w.logger.Warn("task failed", "task_id", task.ID, "type", task.Type, "error", err)
		if failErr := w.store.FailTask(task.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark task as failed", "task_id", task.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteTask(task.ID); err != nil {
		return true, fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	return true, nil
}

func (w *Worker) processTask(ctx context.Context, task *storage.Task) error {
	var payload storage.TaskPayload
	if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	switch task.Type {
	case storage.TaskRetrieve:
		if err := w.retriever.Run(ctx, payload.PromptID); err != nil {
			return fmt.Errorf("retrieval stage: %w", err)
		}
		return w.enqueueFollowups(payload.PromptID)
	case storage.TaskSummarize:
		if err := w.summarize.Run(ctx, payload.PromptID); err != nil {
			return fmt.Errorf("summary stage: %w", err)
		}
		return nil
	case storage.TaskEnrich:
		if w.enricher == nil {
			return fmt.Errorf("enrichment disabled")
		}
		if err := w.enricher.Run(ctx, payload.PromptID); err != nil {
			return fmt.Errorf("enrichment stage: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

// enqueueFollowups schedules the work that fans out from a finished
// retrieval: the summarization stage, plus the enrichment branch when one
// is configured.
func (w *Worker) enqueueFollowups(promptID int64) error {
	if _, err := w.store.EnqueueTask(storage.TaskSummarize, promptID); err != nil {
		return fmt.Errorf("enqueueing summary task: %w", err)
	}
	if w.enricher != nil {
		if _, err := w.store.EnqueueTask(storage.TaskEnrich, promptID); err != nil {
			w.logger.Warn("failed to enqueue enrichment task", "prompt_id", promptID, "error", err)
		}
	}
	return nil
}

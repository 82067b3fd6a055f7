// Package worker drains the SQLite job queue. Each job type is served by a
// registered handler; failures are retried by the queue with backoff.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kalambet/shortlist/internal/storage"
)

// JobCurateRun asks for a crawl (optional) followed by a curate run.
const JobCurateRun = "curate_run"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Handler processes one claimed job. A returned error fails the attempt.
type Handler func(ctx context.Context, job *storage.Job) error

// RunRequest is the payload of a curate_run job.
type RunRequest struct {
	Crawl  bool     `json:"crawl"`
	Inputs []string `json:"inputs,omitempty"`
}

// RunFunc executes a curate run.
type RunFunc func(ctx context.Context, req RunRequest) error

// CurateRunHandler decodes a RunRequest payload and passes it to run.
func CurateRunHandler(run RunFunc) Handler {
	return func(ctx context.Context, job *storage.Job) error {
		var req RunRequest
		if err := json.Unmarshal([]byte(job.PayloadJSON), &req); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		return run(ctx, req)
	}
}

// NewRunJob builds a curate_run job for the queue.
func NewRunJob(req RunRequest) (storage.Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding run request: %w", err)
	}
	return storage.Job{Type: JobCurateRun, PayloadJSON: string(body), MaxAttempts: 2}, nil
}

// Worker polls the queue and dispatches jobs to handlers.
type Worker struct {
	store    JobStore
	handlers map[string]Handler
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]Handler),
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Handle registers h for jobs of the given type.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

func (w *Worker) types() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Run polls for jobs until ctx is cancelled.
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

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, w.types())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	h, ok := w.handlers[job.Type]
	if !ok {
		err = fmt.Errorf("no handler for job type %q", job.Type)
	} else {
		w.logger.Info("job started", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1)
		err = h(ctx, job)
	}
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		// Record the failure even when ctx was cancelled mid-job.
		if failErr := w.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Info("job completed", "job_id", job.ID)
	return true, nil
}

// Package ingest triggers knowledge-base refresh jobs and monitors them to
// completion, surfacing every observed status to the caller.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mskwm/briefd/internal/kb"
)

// DefaultPollInterval is the fixed delay between status checks.
const DefaultPollInterval = 3 * time.Second

// Event is one observed snapshot of a sync job. Exactly one of Status or Err
// is meaningful: events with a non-nil Err are terminal.
type Event struct {
	JobID  string
	Status kb.JobStatus
	Err    error
}

// Message renders the event as the user-facing status line shown in the
// admin surface.
func (e Event) Message() string {
	if e.Err != nil {
		if e.JobID == "" {
			return fmt.Sprintf("Sync failed to start: %v", e.Err)
		}
		return fmt.Sprintf("Sync job %s failed: %v", e.JobID, e.Err)
	}
	switch e.Status {
	case kb.JobComplete:
		return fmt.Sprintf("Sync job %s complete. The assistant now reflects the latest documents.", e.JobID)
	case kb.JobFailed, kb.JobStopped:
		return fmt.Sprintf("Sync job %s ended with status %s.", e.JobID, e.Status)
	default:
		return fmt.Sprintf("Sync job %s: %s...", e.JobID, e.Status)
	}
}

// JobService is the remote ingestion API the monitor drives.
type JobService interface {
	StartIngestionJob(ctx context.Context) (kb.IngestionJob, error)
	GetIngestionJob(ctx context.Context, jobID string) (kb.JobStatus, error)
}

// Monitor triggers one ingestion job per Run and polls it to a terminal
// state at a fixed interval.
type Monitor struct {
	jobs     JobService
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor. interval <= 0 selects DefaultPollInterval.
func NewMonitor(jobs JobService, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{jobs: jobs, interval: interval, logger: slog.Default()}
}

// Run triggers a job and streams one Event per observed status on the
// returned channel, closing it when the job reaches COMPLETE, FAILED, or
// STOPPED, when a poll fails, or when ctx is cancelled.
//
// Failure policy: a trigger failure produces a single error event and zero
// polls. A poll failure is surfaced as a terminal error event rather than
// retried, since an unbounded retry on a monitoring loop leaks goroutines on a
// dead backend. Cancelling ctx stops local polling only; the remote job
// keeps running and is never cancelled from here.
func (m *Monitor) Run(ctx context.Context) <-chan Event {
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		m.run(ctx, events)
	}()
	return events
}

func (m *Monitor) run(ctx context.Context, events chan<- Event) {
	job, err := m.jobs.StartIngestionJob(ctx)
	if err != nil {
		m.logger.Error("ingestion trigger failed", "error", err)
		m.emit(ctx, events, Event{Err: err})
		return
	}

	m.logger.Info("ingestion job started", "job_id", job.ID, "status", job.Status)
	if !m.emit(ctx, events, Event{JobID: job.ID, Status: job.Status}) {
		return
	}

	status := job.Status
	for !status.Terminal() {
		select {
		case <-ctx.Done():
			m.logger.Info("sync monitoring cancelled, remote job unaffected", "job_id", job.ID)
			return
		case <-time.After(m.interval):
		}

		status, err = m.jobs.GetIngestionJob(ctx, job.ID)
		if err != nil {
			m.logger.Error("ingestion status check failed", "job_id", job.ID, "error", err)
			m.emit(ctx, events, Event{JobID: job.ID, Err: err})
			return
		}

		if !m.emit(ctx, events, Event{JobID: job.ID, Status: status}) {
			return
		}
	}

	m.logger.Info("ingestion job finished", "job_id", job.ID, "status", status)
}

// emit delivers an event unless the caller has gone away. Returns false when
// ctx is done.
func (m *Monitor) emit(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

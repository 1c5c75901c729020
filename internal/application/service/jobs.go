package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// JobStatus represents the current state of an async pass.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job retention
const (
	// DefaultJobMaxDuration is the maximum time a pass may run before it is
	// cancelled and marked as failed.
	DefaultJobMaxDuration = 30 * time.Minute

	// DefaultJobRetention is how long finished jobs stay queryable
	DefaultJobRetention = 24 * time.Hour
)

// ErrPassRunning is returned when an async pass is already in flight
var ErrPassRunning = errors.New("reconcile pass already running")

// PassRequest holds parameters for an async pass.
type PassRequest struct {
	Window    ledger.Window
	Threshold float64
}

// PassJob represents a running or completed async pass.
type PassJob struct {
	ID          string
	Status      JobStatus
	Request     PassRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Summary     *Summary
	Error       error
	cancelFunc  context.CancelFunc
}

// StartAutoReconcile starts a pass in the background.
// The passed context is NOT used as the parent for the job, so the pass
// outlives the HTTP request that started it. Use CancelJob to stop it.
func (s *ReconcileService) StartAutoReconcile(_ context.Context, req PassRequest) (string, error) {
	if err := req.Window.Validate(); err != nil {
		return "", err
	}
	if err := ledger.ValidateThreshold(req.Threshold); err != nil {
		return "", err
	}

	if !s.passMutex.TryLock() {
		return "", ErrPassRunning
	}

	jobID := fmt.Sprintf("pass-%d", time.Now().UnixNano())
	jobCtx, cancel := context.WithTimeout(context.Background(), DefaultJobMaxDuration)

	job := &PassJob{
		ID:         jobID,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  time.Now(),
		cancelFunc: cancel,
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	go s.runPassJob(jobCtx, job)

	s.logger.Info("reconcile job started", "job_id", jobID)
	return jobID, nil
}

// runPassJob executes the pass in a background goroutine.
func (s *ReconcileService) runPassJob(ctx context.Context, job *PassJob) {
	defer s.passMutex.Unlock()
	defer job.cancelFunc()

	s.setJobStatus(job.ID, StatusRunning)

	summary, err := s.RunAutoReconcile(ctx, job.Request.Window, job.Request.Threshold)

	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	job.CompletedAt = &now
	job.Summary = summary

	switch {
	case err == nil:
		job.Status = StatusCompleted
		s.logger.Info("reconcile job completed", "job_id", job.ID, "confirmed", summary.Confirmed)
	case job.Status == StatusCancelled || errors.Is(err, context.Canceled):
		// Already marked in CancelJob
		job.Status = StatusCancelled
		job.Error = err
	default:
		job.Status = StatusFailed
		job.Error = err
		s.logger.Error("reconcile job failed", "job_id", job.ID, "error", err)
	}
}

func (s *ReconcileService) setJobStatus(jobID string, status JobStatus) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists && job.Status == StatusPending {
		job.Status = status
	}
}

// GetJob retrieves a copy of a job by ID.
func (s *ReconcileService) GetJob(jobID string) (*PassJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, &ledger.NotFoundError{Resource: "job", ID: jobID}
	}

	copied := *job
	return &copied, nil
}

// ListJobs returns copies of all known jobs.
func (s *ReconcileService) ListJobs() []*PassJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*PassJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs
}

// CancelJob cancels a running pass. Matches confirmed before the
// cancellation stay committed.
func (s *ReconcileService) CancelJob(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return &ledger.NotFoundError{Resource: "job", ID: jobID}
	}

	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled

	s.logger.Info("reconcile job cancelled", "job_id", jobID)
	return nil
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *ReconcileService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, job := range s.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old reconcile jobs", "removed", removed)
	}
	return removed
}

// StartBackgroundCleanup periodically drops old finished jobs.
// Call StopBackgroundCleanup to stop it.
func (s *ReconcileService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.cleanupStop:
				return
			case <-ticker.C:
				s.CleanupOldJobs(DefaultJobRetention)
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it.
func (s *ReconcileService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}

	close(s.cleanupStop)
	<-s.cleanupDone
	s.cleanupStop = nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/examparser"
	"github.com/sahilchouksey/exam-parser/utils/cache"
)

// TTL configurations for job states
const (
	JobStateTTLSuccess = 1 * time.Hour    // 1 hour for successful jobs
	JobStateTTLFailure = 24 * time.Hour   // 24 hours for failed jobs
	JobStateTTLPending = 24 * time.Hour   // 24 hours for pending/processing jobs
	JobLockTTL         = 30 * time.Minute // Upper bound on one run, OCR included
)

var (
	// ErrJobNotFound is returned when no live job state exists for an exam
	ErrJobNotFound = errors.New("job not found or expired")
	// ErrJobLocked is returned when another run holds the exam's lock
	ErrJobLocked = errors.New("exam already has a run in progress")
)

// JobCache is the subset of the Redis cache the tracker needs
type JobCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// ProgressTracker manages extraction job state and progress updates
type ProgressTracker struct {
	cache JobCache
	locks sync.Map // examID -> lock token held by this process
}

// NewProgressTracker creates a new progress tracker instance
func NewProgressTracker(jobCache JobCache) *ProgressTracker {
	return &ProgressTracker{cache: jobCache}
}

// StartJob takes the exam's run lock and records a fresh processing job
func (pt *ProgressTracker) StartJob(ctx context.Context, examID string) (*model.ExtractionJob, error) {
	lockKey := fmt.Sprintf(model.RedisKeyJobLock, examID)
	token := uuid.New().String()
	acquired, err := pt.cache.SetNX(ctx, lockKey, token, JobLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, examID)
	}
	pt.locks.Store(examID, token)

	now := time.Now()
	job := &model.ExtractionJob{
		ExamID:       examID,
		Status:       model.JobStatusProcessing,
		Progress:     0,
		CurrentPhase: "initializing",
		Message:      "Extraction started",
		StartedAt:    now,
		UpdatedAt:    now,
	}

	if err := pt.save(ctx, job); err != nil {
		pt.ReleaseLock(ctx, examID)
		return nil, err
	}
	return job, nil
}

// SetPhase records a phase transition outside the extraction pipeline
func (pt *ProgressTracker) SetPhase(ctx context.Context, examID, phase, message string) error {
	job, err := pt.GetJob(ctx, examID)
	if err != nil {
		return err
	}
	job.CurrentPhase = phase
	job.Message = message
	job.Progress = CalculateProgress(phase, 0, 0)
	return pt.save(ctx, job)
}

// Report applies a pipeline progress update to the job
func (pt *ProgressTracker) Report(ctx context.Context, examID string, update examparser.ProgressUpdate) error {
	job, err := pt.GetJob(ctx, examID)
	if err != nil {
		return err
	}

	job.CurrentPhase = update.Phase
	job.Strategy = string(update.Strategy)
	job.TotalChunks = update.TotalChunks
	job.CompletedChunks = update.CompletedChunks
	job.FailedChunks = update.FailedChunks
	if update.Message != "" {
		job.Message = update.Message
	}
	job.Progress = CalculateProgress(update.Phase, update.CompletedChunks, update.TotalChunks)

	return pt.save(ctx, job)
}

// CompleteJob marks the job completed and releases the run lock
func (pt *ProgressTracker) CompleteJob(ctx context.Context, examID string, questionCount int) error {
	return pt.finish(ctx, examID, func(job *model.ExtractionJob) {
		job.Status = model.JobStatusCompleted
		job.CurrentPhase = "complete"
		job.Progress = 100
		job.Message = fmt.Sprintf("Extracted %d questions", questionCount)
	})
}

// FailJob marks the job failed and releases the run lock
func (pt *ProgressTracker) FailJob(ctx context.Context, examID string, cause error) error {
	return pt.finish(ctx, examID, func(job *model.ExtractionJob) {
		job.Status = model.JobStatusFailed
		job.Message = "Extraction failed"
		if cause != nil {
			job.Error = cause.Error()
		}
	})
}

func (pt *ProgressTracker) finish(ctx context.Context, examID string, apply func(*model.ExtractionJob)) error {
	defer pt.ReleaseLock(ctx, examID)

	job, err := pt.GetJob(ctx, examID)
	if err != nil {
		return err
	}
	apply(job)
	now := time.Now()
	job.CompletedAt = &now
	return pt.save(ctx, job)
}

// ReleaseLock drops the exam's run lock if this process still owns it
func (pt *ProgressTracker) ReleaseLock(ctx context.Context, examID string) {
	token, ok := pt.locks.LoadAndDelete(examID)
	if !ok {
		return
	}
	released, err := pt.cache.CompareAndDelete(ctx, fmt.Sprintf(model.RedisKeyJobLock, examID), token.(string))
	if err != nil {
		log.Printf("ProgressTracker: Failed to release lock for exam %s: %v", examID, err)
		return
	}
	if !released {
		log.Printf("ProgressTracker: Lock for exam %s expired before the run finished", examID)
	}
}

// GetJob retrieves job state from Redis
func (pt *ProgressTracker) GetJob(ctx context.Context, examID string) (*model.ExtractionJob, error) {
	jobKey := fmt.Sprintf(model.RedisKeyJobState, examID)

	var job model.ExtractionJob
	if err := pt.cache.GetJSON(ctx, jobKey, &job); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, examID)
		}
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}

	return &job, nil
}

// DeleteJob removes the job state and lock of an exam
func (pt *ProgressTracker) DeleteJob(ctx context.Context, examID string) error {
	return pt.cache.Delete(ctx,
		fmt.Sprintf(model.RedisKeyJobState, examID),
		fmt.Sprintf(model.RedisKeyJobLock, examID),
	)
}

func (pt *ProgressTracker) save(ctx context.Context, job *model.ExtractionJob) error {
	ttl := JobStateTTLPending
	switch job.Status {
	case model.JobStatusCompleted:
		ttl = JobStateTTLSuccess
	case model.JobStatusFailed:
		ttl = JobStateTTLFailure
	}

	job.UpdatedAt = time.Now()
	jobKey := fmt.Sprintf(model.RedisKeyJobState, job.ExamID)
	if err := pt.cache.SetJSON(ctx, jobKey, job, ttl); err != nil {
		return fmt.Errorf("failed to save job state: %w", err)
	}
	return nil
}

// CalculateProgress calculates the overall progress percentage based on phase and chunk completion
func CalculateProgress(phase string, completedChunks, totalChunks int) int {
	switch phase {
	case "initializing":
		return 0
	case model.PhaseOCR:
		return 5
	case model.PhaseCleaning:
		return 10
	case model.PhasePlanning, model.PhaseFallback:
		return 15
	case model.PhaseExtraction:
		if totalChunks == 0 {
			return 20
		}
		// Extraction phase: 20% - 85%
		progress := 20 + int(float64(completedChunks)*65.0/float64(totalChunks))
		if progress > 85 {
			progress = 85
		}
		return progress
	case model.PhaseAssembling:
		return 90
	case model.PhaseSaving:
		return 95
	case "complete":
		return 100
	default:
		return 0
	}
}

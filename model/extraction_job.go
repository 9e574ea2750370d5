package model

import "time"

// ExtractionJobStatus represents the status of an extraction job
type ExtractionJobStatus string

const (
	JobStatusPending    ExtractionJobStatus = "pending"
	JobStatusProcessing ExtractionJobStatus = "processing"
	JobStatusCompleted  ExtractionJobStatus = "completed"
	JobStatusFailed     ExtractionJobStatus = "failed"
)

// Extraction phases reported while a run is in flight
const (
	PhaseOCR        = "ocr"
	PhaseCleaning   = "cleaning"
	PhasePlanning   = "planning"
	PhaseExtraction = "extraction"
	PhaseFallback   = "fallback"
	PhaseAssembling = "assembling"
	PhaseSaving     = "saving"
)

// ExtractionJob is the live progress of one exam parse run, stored in Redis
type ExtractionJob struct {
	ExamID       string              `json:"exam_id"`
	Status       ExtractionJobStatus `json:"status"`
	Progress     int                 `json:"progress"` // 0-100
	CurrentPhase string              `json:"current_phase"`
	Message      string              `json:"message"`
	Strategy     string              `json:"strategy,omitempty"`

	// Chunk tracking
	TotalChunks     int `json:"total_chunks,omitempty"`
	CompletedChunks int `json:"completed_chunks,omitempty"`
	FailedChunks    int `json:"failed_chunks,omitempty"`

	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Redis key patterns for extraction jobs
const (
	// RedisKeyJobState stores the full job state as JSON
	// Usage: fmt.Sprintf(RedisKeyJobState, examID)
	RedisKeyJobState = "exam:job:%s"

	// RedisKeyJobLock guards a single in-flight run per exam
	// Usage: fmt.Sprintf(RedisKeyJobLock, examID)
	RedisKeyJobLock = "exam:lock:%s"
)

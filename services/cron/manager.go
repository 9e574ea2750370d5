package cron

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// jobTimeout bounds a single job execution
const jobTimeout = 10 * time.Minute

// ExamProcessor restarts extraction runs that never started
type ExamProcessor interface {
	StartProcessing(examID string, reparse bool)
}

// jobResult summarizes one job execution for the cron log
type jobResult struct {
	Message  string
	Affected int64
}

type scheduledJob struct {
	Name string
	Spec string // six-field spec, seconds first
	Run  func(ctx context.Context) (jobResult, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron      *cron.Cron
	db        *gorm.DB
	store     artifacts.Store
	processor ExamProcessor
}

// NewCronManager creates a new cron manager; store and processor may be nil
func NewCronManager(db *gorm.DB, store artifacts.Store, processor ExamProcessor) *CronManager {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	return &CronManager{
		cron:      c,
		db:        db,
		store:     store,
		processor: processor,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

func (m *CronManager) jobs() []scheduledJob {
	return []scheduledJob{
		// Every 10 minutes: fail runs that outlived their budget, requeue lost pending exams
		{Name: jobSweepStaleRuns, Spec: "0 */10 * * * *", Run: m.SweepStaleRuns},
		// Daily at 2 AM: drop old cron logs
		{Name: jobCleanupOldData, Spec: "0 0 2 * * *", Run: m.CleanupOldData},
		// Daily at 3 AM: purge soft-deleted exams and their files
		{Name: jobPurgeDeletedExams, Spec: "0 0 3 * * *", Run: m.PurgeDeletedExams},
	}
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	for _, job := range m.jobs() {
		job := job
		if _, err := m.cron.AddFunc(job.Spec, func() { m.runJob(job) }); err != nil {
			return err
		}
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// runJob executes job and records it in cron_job_logs
func (m *CronManager) runJob(job scheduledJob) error {
	startedAt := time.Now()
	log.Printf("[CRON] Starting job: %s at %s", job.Name, startedAt.Format(time.RFC3339))

	meta, _ := json.Marshal(map[string]string{"schedule": job.Spec})
	entry := &model.CronJobLog{
		JobName:   job.Name,
		Status:    model.CronJobRunning,
		StartedAt: startedAt,
		Metadata:  datatypes.JSON(meta),
	}
	if m.db != nil {
		if err := m.db.Create(entry).Error; err != nil {
			log.Printf("[CRON] Failed to record start of %s: %v", job.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	result, err := job.Run(ctx)

	completedAt := time.Now()
	updates := map[string]interface{}{
		"completed_at": completedAt,
		"duration_ms":  completedAt.Sub(startedAt).Milliseconds(),
		"affected":     result.Affected,
		"message":      result.Message,
	}
	if err != nil {
		log.Printf("[CRON] Error in job: %s - %v", job.Name, err)
		updates["status"] = model.CronJobFailed
		updates["error_msg"] = err.Error()
	} else {
		log.Printf("[CRON] Completed job: %s - %s", job.Name, result.Message)
		updates["status"] = model.CronJobCompleted
	}

	if m.db != nil && entry.ID != 0 {
		if dbErr := m.db.Model(entry).Updates(updates).Error; dbErr != nil {
			log.Printf("[CRON] Failed to record result of %s: %v", job.Name, dbErr)
		}
	}
	return err
}

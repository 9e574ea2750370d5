package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
)

const (
	jobSweepStaleRuns    = "sweep_stale_runs"
	jobCleanupOldData    = "cleanup_old_data"
	jobPurgeDeletedExams = "purge_deleted_exams"
)

// Thresholds used by the housekeeping jobs
const (
	StaleProcessingAfter = 45 * time.Minute    // longer than any run's lock
	LostPendingAfter     = 15 * time.Minute    // pending exams whose run never started
	PurgeDeletedAfter    = 30 * 24 * time.Hour // soft-deleted exams kept this long
	CronLogRetention     = 90 * 24 * time.Hour
	maxRequeuePerSweep   = 20
)

// SweepStaleRuns fails exams stuck in processing, typically after a restart
// mid-run, and requeues pending exams whose run never started
func (m *CronManager) SweepStaleRuns(ctx context.Context) (jobResult, error) {
	result := m.db.WithContext(ctx).Model(&model.ExamPaper{}).
		Where("status = ? AND updated_at < ?", model.ExamStatusProcessing, time.Now().Add(-StaleProcessingAfter)).
		Updates(map[string]interface{}{
			"status":        model.ExamStatusFailed,
			"error_message": "processing timed out",
		})
	if result.Error != nil {
		return jobResult{}, fmt.Errorf("failed to fail stale runs: %w", result.Error)
	}
	failed := result.RowsAffected

	var requeued int64
	if m.processor != nil {
		var lost []model.ExamPaper
		err := m.db.WithContext(ctx).Select("id").
			Where("status = ? AND created_at < ?", model.ExamStatusPending, time.Now().Add(-LostPendingAfter)).
			Order("created_at").
			Limit(maxRequeuePerSweep).
			Find(&lost).Error
		if err != nil {
			return jobResult{Affected: failed}, fmt.Errorf("failed to query pending exams: %w", err)
		}
		for _, exam := range lost {
			log.Printf("[CRON] Requeueing pending exam %s", exam.ID)
			m.processor.StartProcessing(exam.ID, false)
			requeued++
		}
	}

	return jobResult{
		Message:  fmt.Sprintf("Failed %d stale runs, requeued %d pending exams", failed, requeued),
		Affected: failed + requeued,
	}, nil
}

// CleanupOldData removes cron job logs past their retention
func (m *CronManager) CleanupOldData(ctx context.Context) (jobResult, error) {
	result := m.db.WithContext(ctx).
		Where("created_at < ?", time.Now().Add(-CronLogRetention)).
		Delete(&model.CronJobLog{})
	if result.Error != nil {
		return jobResult{}, fmt.Errorf("failed to clean cron logs: %w", result.Error)
	}

	return jobResult{
		Message:  fmt.Sprintf("Cleaned %d old cron logs", result.RowsAffected),
		Affected: result.RowsAffected,
	}, nil
}

// PurgeDeletedExams hard-deletes exams soft-deleted long ago, with any files
// left in storage
func (m *CronManager) PurgeDeletedExams(ctx context.Context) (jobResult, error) {
	var exams []model.ExamPaper
	err := m.db.WithContext(ctx).Unscoped().Select("id").
		Where("deleted_at IS NOT NULL AND deleted_at < ?", time.Now().Add(-PurgeDeletedAfter)).
		Find(&exams).Error
	if err != nil {
		return jobResult{}, fmt.Errorf("failed to query deleted exams: %w", err)
	}
	if len(exams) == 0 {
		return jobResult{Message: "No exams to purge"}, nil
	}

	var purged int64
	for _, exam := range exams {
		if m.store != nil {
			if err := m.store.DeletePrefix(ctx, artifacts.ExamPrefix(exam.ID)); err != nil {
				log.Printf("[CRON] Failed to delete files of exam %s: %v", exam.ID, err)
				continue
			}
		}
		if err := m.db.WithContext(ctx).Unscoped().Delete(&model.ExamPaper{}, "id = ?", exam.ID).Error; err != nil {
			log.Printf("[CRON] Failed to purge exam %s: %v", exam.ID, err)
			continue
		}
		purged++
	}

	return jobResult{
		Message:  fmt.Sprintf("Purged %d of %d deleted exams", purged, len(exams)),
		Affected: purged,
	}, nil
}

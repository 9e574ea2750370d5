package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
	"github.com/sahilchouksey/exam-parser/services/examparser"
	"gorm.io/gorm"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrExamBusy        = errors.New("exam is being processed")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNoSourceText    = errors.New("exam has no text to parse")
)

// Upload types accepted by CreateExam
var supportedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".md": true, ".txt": true,
}

// CreateExamInput describes an uploaded exam file
type CreateExamInput struct {
	Year     int
	Title    string
	Subject  string
	Filename string
	Content  []byte
}

// CreateTextExamInput describes an exam submitted as markdown text
type CreateTextExamInput struct {
	Year    int
	Title   string
	Subject string
	Text    string
}

// ExamFilter narrows ListExams
type ExamFilter struct {
	Year    int
	Subject string
	Status  model.ExamStatus
	Limit   int
	Offset  int
}

// ExamStatusView merges the stored status with live job progress
type ExamStatusView struct {
	ExamID        string               `json:"exam_id"`
	Status        model.ExamStatus     `json:"status"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	QuestionCount int                  `json:"question_count"`
	ParseStrategy string               `json:"parse_strategy,omitempty"`
	Job           *model.ExtractionJob `json:"job,omitempty"`
}

// ExamService owns the exam lifecycle: upload, OCR, extraction and storage
type ExamService struct {
	db        *gorm.DB
	parser    *examparser.Parser
	store     artifacts.Store
	ocr       *OCRClient
	pdf       *PDFExtractor
	tracker   *ProgressTracker
	cleaner   *TextCleaner
	inFlight  sync.Map
	wg        sync.WaitGroup
	runBudget time.Duration

	// MaxPDFPages rejects longer PDF uploads; <= 0 disables the check
	MaxPDFPages int
}

// NewExamService wires the exam service; ocr and tracker may be nil
func NewExamService(db *gorm.DB, parser *examparser.Parser, store artifacts.Store, ocr *OCRClient, tracker *ProgressTracker) *ExamService {
	return &ExamService{
		db:        db,
		parser:    parser,
		store:     store,
		ocr:       ocr,
		pdf:       NewPDFExtractor(),
		tracker:   tracker,
		cleaner:   NewTextCleaner("images"),
		runBudget: JobLockTTL,

		MaxPDFPages: DefaultMaxPDFPages,
	}
}

// CreateExam stores the uploaded file, records a pending exam and starts processing
func (s *ExamService) CreateExam(ctx context.Context, input CreateExamInput) (*model.ExamPaper, error) {
	ext := strings.ToLower(filepath.Ext(input.Filename))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedFile)
	}
	if ext == ".pdf" {
		if _, err := s.pdf.Validate(input.Content, s.MaxPDFPages); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
		}
	}

	exam := &model.ExamPaper{
		ID:             uuid.New().String(),
		Year:           input.Year,
		Title:          input.Title,
		Subject:        input.Subject,
		SourceFilename: filepath.Base(input.Filename),
		Status:         model.ExamStatusPending,
	}
	if exam.Title == "" {
		exam.Title = strings.TrimSuffix(exam.SourceFilename, filepath.Ext(exam.SourceFilename))
	}

	exam.SourceKey = artifacts.SourceKey(exam.ID, input.Filename)
	if err := s.store.Put(ctx, exam.SourceKey, input.Content, artifacts.ContentType(input.Filename)); err != nil {
		return nil, fmt.Errorf("failed to store source file: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(exam).Error; err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	log.Printf("ExamService: Created exam %s from %s (%d bytes)", exam.ID, exam.SourceFilename, len(input.Content))
	s.StartProcessing(exam.ID, false)
	return exam, nil
}

// CreateExamFromText records an exam whose OCR text is already known
func (s *ExamService) CreateExamFromText(ctx context.Context, input CreateTextExamInput) (*model.ExamPaper, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, ErrNoSourceText
	}

	exam := &model.ExamPaper{
		ID:      uuid.New().String(),
		Year:    input.Year,
		Title:   input.Title,
		Subject: input.Subject,
		RawText: input.Text,
		Status:  model.ExamStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(exam).Error; err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	log.Printf("ExamService: Created exam %s from text (%d chars)", exam.ID, len(input.Text))
	s.StartProcessing(exam.ID, false)
	return exam, nil
}

// StartProcessing runs ProcessExam in the background
func (s *ExamService) StartProcessing(examID string, reparse bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.runBudget)
		defer cancel()

		var err error
		if reparse {
			err = s.reparse(ctx, examID)
		} else {
			err = s.ProcessExam(ctx, examID)
		}
		if err != nil {
			log.Printf("ExamService: Background processing failed for exam %s: %v", examID, err)
		}
	}()
}

// Wait blocks until every background run has finished
func (s *ExamService) Wait() {
	s.wg.Wait()
}

// ProcessExam runs OCR (when needed), cleaning and extraction for one exam
func (s *ExamService) ProcessExam(ctx context.Context, examID string) error {
	return s.run(ctx, examID, false)
}

// ReparseExam reruns extraction on the stored cleaned text without OCR
func (s *ExamService) ReparseExam(ctx context.Context, examID string) (*model.ExamPaper, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if s.isBusy(examID) || exam.Status == model.ExamStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrExamBusy, examID)
	}
	if exam.CleanedText == "" && exam.RawText == "" && exam.SourceKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSourceText, examID)
	}

	s.StartProcessing(examID, true)
	return exam, nil
}

func (s *ExamService) reparse(ctx context.Context, examID string) error {
	return s.run(ctx, examID, true)
}

func (s *ExamService) run(ctx context.Context, examID string, reparse bool) error {
	if _, busy := s.inFlight.LoadOrStore(examID, struct{}{}); busy {
		return fmt.Errorf("%w: %s", ErrExamBusy, examID)
	}
	defer s.inFlight.Delete(examID)

	if s.tracker != nil {
		if _, err := s.tracker.StartJob(ctx, examID); err != nil {
			if errors.Is(err, ErrJobLocked) {
				return fmt.Errorf("%w: %s", ErrExamBusy, examID)
			}
			log.Printf("ExamService: Progress tracking unavailable for exam %s: %v", examID, err)
		}
	}

	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		s.failJob(ctx, examID, err)
		return err
	}

	exam.Status = model.ExamStatusProcessing
	exam.ErrorMessage = ""
	if err := s.db.WithContext(ctx).Model(exam).Updates(map[string]any{
		"status":        exam.Status,
		"error_message": "",
	}).Error; err != nil {
		s.failJob(ctx, examID, err)
		return fmt.Errorf("failed to update exam status: %w", err)
	}

	result, runErr := s.Extract(ctx, exam, reparse)
	if runErr != nil {
		s.markFailed(ctx, exam, runErr)
		return runErr
	}

	s.setPhase(ctx, examID, model.PhaseSaving, "Saving questions")
	if err := s.db.WithContext(ctx).Save(exam).Error; err != nil {
		s.failJob(ctx, examID, err)
		return fmt.Errorf("failed to save exam: %w", err)
	}

	if s.tracker != nil {
		if err := s.tracker.CompleteJob(ctx, examID, len(result.Questions)); err != nil {
			log.Printf("ExamService: Failed to complete job for exam %s: %v", examID, err)
		}
	}

	log.Printf("ExamService: Exam %s completed - %d questions via %s", examID, exam.QuestionCount, exam.ParseStrategy)
	return nil
}

// Extract acquires and cleans the exam text, runs the parser and fills the
// exam's result fields. It does not touch the database.
func (s *ExamService) Extract(ctx context.Context, exam *model.ExamPaper, reparse bool) (*examparser.Result, error) {
	if !reparse || exam.CleanedText == "" {
		if exam.RawText == "" {
			s.setPhase(ctx, exam.ID, model.PhaseOCR, "Reading document")
			text, err := s.acquireText(ctx, exam)
			if err != nil {
				return nil, err
			}
			exam.RawText = text
		}

		s.setPhase(ctx, exam.ID, model.PhaseCleaning, "Cleaning text")
		cleaned := s.cleaner.Clean(exam.RawText)
		for _, img := range cleaned.Images {
			key := path.Join("exams", exam.ID, "images", img.Name)
			if err := s.store.Put(ctx, key, img.Data, img.ContentType); err != nil {
				log.Printf("ExamService: Failed to store image %s: %v", key, err)
			}
		}
		exam.CleanedText = cleaned.Text
	}

	result, err := s.parser.Parse(ctx, examparser.Run{
		ExamID: exam.ID,
		Year:   exam.Year,
		Text:   exam.CleanedText,
		Progress: func(update examparser.ProgressUpdate) {
			if s.tracker == nil {
				return
			}
			if err := s.tracker.Report(ctx, exam.ID, update); err != nil {
				log.Printf("ExamService: Failed to report progress for exam %s: %v", exam.ID, err)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	exam.Questions = result.Questions
	exam.QuestionCount = len(result.Questions)
	exam.ParseStrategy = string(result.Strategy)
	exam.TotalScore = totalScore(result.Questions)
	exam.Status = model.ExamStatusCompleted
	exam.ErrorMessage = ""
	return result, nil
}

// acquireText turns the stored source file into markdown text
func (s *ExamService) acquireText(ctx context.Context, exam *model.ExamPaper) (string, error) {
	if exam.SourceKey == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSourceText, exam.ID)
	}
	content, err := s.store.Get(ctx, exam.SourceKey)
	if err != nil {
		return "", fmt.Errorf("failed to load source file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(exam.SourceKey))
	switch ext {
	case ".md", ".txt":
		return string(content), nil
	}

	if s.ocr.Enabled() {
		resp, err := s.ocr.ProcessFile(ctx, content, exam.SourceFilename)
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			log.Printf("ExamService: OCR returned %d chars (%d pages) for exam %s", len(resp.Text), resp.PageCount, exam.ID)
			return resp.Text, nil
		}
		if ext != ".pdf" {
			return "", fmt.Errorf("OCR failed: %w", err)
		}
		log.Printf("ExamService: OCR failed for exam %s, falling back to PDF text layer: %v", exam.ID, err)
	}

	if ext != ".pdf" {
		return "", fmt.Errorf("%w: %s requires OCR", ErrUnsupportedFile, ext)
	}
	return s.pdf.ExtractText(content)
}

func (s *ExamService) markFailed(ctx context.Context, exam *model.ExamPaper, cause error) {
	log.Printf("ExamService: Exam %s failed: %v", exam.ID, cause)

	updates := map[string]any{
		"status":        model.ExamStatusFailed,
		"error_message": cause.Error(),
	}
	// Keep OCR output so a reparse can skip it
	if exam.RawText != "" {
		updates["raw_text"] = exam.RawText
	}
	if exam.CleanedText != "" {
		updates["cleaned_text"] = exam.CleanedText
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(exam).Updates(updates).Error; err != nil {
		log.Printf("ExamService: Failed to record failure for exam %s: %v", exam.ID, err)
	}
	s.failJob(ctx, exam.ID, cause)
}

func (s *ExamService) failJob(ctx context.Context, examID string, cause error) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.FailJob(context.WithoutCancel(ctx), examID, cause); err != nil {
		log.Printf("ExamService: Failed to record job failure for exam %s: %v", examID, err)
	}
}

func (s *ExamService) setPhase(ctx context.Context, examID, phase, message string) {
	if s.tracker == nil || examID == "" {
		return
	}
	if err := s.tracker.SetPhase(ctx, examID, phase, message); err != nil {
		log.Printf("ExamService: Failed to set phase for exam %s: %v", examID, err)
	}
}

func (s *ExamService) isBusy(examID string) bool {
	_, busy := s.inFlight.Load(examID)
	return busy
}

// GetExam retrieves an exam by ID
func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.ExamPaper, error) {
	var exam model.ExamPaper
	if err := s.db.WithContext(ctx).First(&exam, "id = ?", examID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
		}
		return nil, fmt.Errorf("failed to fetch exam: %w", err)
	}
	return &exam, nil
}

// GetStatus returns the stored status plus live progress when a run is tracked
func (s *ExamService) GetStatus(ctx context.Context, examID string) (*ExamStatusView, error) {
	var exam model.ExamPaper
	err := s.db.WithContext(ctx).
		Select("id", "status", "error_message", "question_count", "parse_strategy").
		First(&exam, "id = ?", examID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
		}
		return nil, fmt.Errorf("failed to fetch exam status: %w", err)
	}

	view := &ExamStatusView{
		ExamID:        exam.ID,
		Status:        exam.Status,
		ErrorMessage:  exam.ErrorMessage,
		QuestionCount: exam.QuestionCount,
		ParseStrategy: exam.ParseStrategy,
	}
	if s.tracker != nil {
		if job, err := s.tracker.GetJob(ctx, examID); err == nil {
			view.Job = job
		}
	}
	return view, nil
}

// ListExams returns exam summaries, newest first, and the total match count
func (s *ExamService) ListExams(ctx context.Context, filter ExamFilter) ([]model.ExamSummary, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.ExamPaper{})
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.Subject != "" {
		query = query.Where("subject = ?", filter.Subject)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count exams: %w", err)
	}

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}

	var exams []model.ExamPaper
	err := query.
		Select("id", "year", "title", "subject", "status", "question_count", "created_at", "updated_at").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&exams).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list exams: %w", err)
	}

	summaries := make([]model.ExamSummary, len(exams))
	for i := range exams {
		summaries[i] = exams[i].Summary()
	}
	return summaries, total, nil
}

// DeleteExam soft-deletes the exam and removes its stored files
func (s *ExamService) DeleteExam(ctx context.Context, examID string) error {
	if s.isBusy(examID) {
		return fmt.Errorf("%w: %s", ErrExamBusy, examID)
	}

	result := s.db.WithContext(ctx).Delete(&model.ExamPaper{}, "id = ?", examID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete exam: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrExamNotFound, examID)
	}

	if err := s.store.DeletePrefix(ctx, artifacts.ExamPrefix(examID)); err != nil {
		log.Printf("ExamService: Failed to delete files of exam %s: %v", examID, err)
	}
	if s.tracker != nil {
		if err := s.tracker.DeleteJob(ctx, examID); err != nil {
			log.Printf("ExamService: Failed to delete job state of exam %s: %v", examID, err)
		}
	}
	return nil
}

// totalScore sums top-level scores; nil when no question carries one
func totalScore(questions []model.Question) *float64 {
	var sum float64
	found := false
	for _, q := range questions {
		if q.Score != nil {
			sum += *q.Score
			found = true
		}
	}
	if !found {
		return nil
	}
	return &sum
}

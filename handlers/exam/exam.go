package exam

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services"
	"github.com/sahilchouksey/exam-parser/utils/response"
	"github.com/sahilchouksey/exam-parser/utils/sse"
	"github.com/sahilchouksey/exam-parser/utils/validation"
)

// Service is the part of services.ExamService the handlers use
type Service interface {
	CreateExam(ctx context.Context, input services.CreateExamInput) (*model.ExamPaper, error)
	CreateExamFromText(ctx context.Context, input services.CreateTextExamInput) (*model.ExamPaper, error)
	GetExam(ctx context.Context, examID string) (*model.ExamPaper, error)
	GetStatus(ctx context.Context, examID string) (*services.ExamStatusView, error)
	ListExams(ctx context.Context, filter services.ExamFilter) ([]model.ExamSummary, int64, error)
	ReparseExam(ctx context.Context, examID string) (*model.ExamPaper, error)
	DeleteExam(ctx context.Context, examID string) error
}

// ExamHandler handles exam paper requests
type ExamHandler struct {
	service        Service
	validator      *validation.Validator
	maxUploadBytes int64
	pollInterval   time.Duration
	streamTimeout  time.Duration
}

// NewExamHandler creates a new exam handler
func NewExamHandler(service Service, maxUploadBytes int64) *ExamHandler {
	return &ExamHandler{
		service:        service,
		validator:      validation.NewValidator(),
		maxUploadBytes: maxUploadBytes,
		pollInterval:   time.Second,
		streamTimeout:  30 * time.Minute,
	}
}

// CreateExamRequest is the multipart form sent with an uploaded exam file
type CreateExamRequest struct {
	Year    int    `form:"year" validate:"required,gte=1900,lte=2100"`
	Title   string `form:"title" validate:"max=255"`
	Subject string `form:"subject" validate:"max=100"`
}

// CreateTextExamRequest submits already-recognized markdown text
type CreateTextExamRequest struct {
	Year    int    `json:"year" validate:"required,gte=1900,lte=2100"`
	Title   string `json:"title" validate:"required,max=255"`
	Subject string `json:"subject" validate:"max=100"`
	Text    string `json:"text" validate:"required"`
}

// ListExamsQuery filters GET /exams
type ListExamsQuery struct {
	Year    int    `query:"year" validate:"omitempty,gte=1900,lte=2100"`
	Subject string `query:"subject" validate:"max=100"`
	Status  string `query:"status" validate:"omitempty,oneof=pending processing completed failed"`
	Page    int    `query:"page" validate:"omitempty,min=1"`
	Limit   int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// CreateExam handles POST /api/v1/exams
func (h *ExamHandler) CreateExam(c *fiber.Ctx) error {
	var req CreateExamRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid form data")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Subject = validation.SanitizeString(req.Subject)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "File is required")
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		return response.Error(c, fiber.StatusRequestEntityTooLarge, "File is too large", "FILE_TOO_LARGE")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return response.BadRequest(c, "Failed to read file")
	}

	exam, err := h.service.CreateExam(c.UserContext(), services.CreateExamInput{
		Year:     req.Year,
		Title:    req.Title,
		Subject:  req.Subject,
		Filename: fileHeader.Filename,
		Content:  content,
	})
	if err != nil {
		return h.handleError(c, err, "Failed to create exam")
	}

	return response.Accepted(c, "Exam uploaded, extraction started", exam)
}

// CreateExamFromText handles POST /api/v1/exams/text
func (h *ExamHandler) CreateExamFromText(c *fiber.Ctx) error {
	var req CreateTextExamRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Subject = validation.SanitizeString(req.Subject)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	exam, err := h.service.CreateExamFromText(c.UserContext(), services.CreateTextExamInput{
		Year:    req.Year,
		Title:   req.Title,
		Subject: req.Subject,
		Text:    req.Text,
	})
	if err != nil {
		return h.handleError(c, err, "Failed to create exam")
	}

	return response.Accepted(c, "Exam created, extraction started", exam)
}

// ListExams handles GET /api/v1/exams
func (h *ExamHandler) ListExams(c *fiber.Ctx) error {
	var q ListExamsQuery
	if err := c.QueryParser(&q); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	exams, total, err := h.service.ListExams(c.UserContext(), services.ExamFilter{
		Year:    q.Year,
		Subject: q.Subject,
		Status:  model.ExamStatus(q.Status),
		Limit:   q.Limit,
		Offset:  (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return h.handleError(c, err, "Failed to list exams")
	}

	return response.Paginated(c, exams, response.CalculatePagination(q.Page, q.Limit, total))
}

// GetExam handles GET /api/v1/exams/:id
func (h *ExamHandler) GetExam(c *fiber.Ctx) error {
	exam, err := h.service.GetExam(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err, "Failed to fetch exam")
	}
	return response.Success(c, exam)
}

// GetStatus handles GET /api/v1/exams/:id/status
func (h *ExamHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.service.GetStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err, "Failed to fetch exam status")
	}
	return response.Success(c, status)
}

// StreamStatus handles GET /api/v1/exams/:id/events
// Streams the exam status as SSE until the run completes or fails
func (h *ExamHandler) StreamStatus(c *fiber.Ctx) error {
	examID := c.Params("id")
	status, err := h.service.GetStatus(c.UserContext(), examID)
	if err != nil {
		return h.handleError(c, err, "Failed to fetch exam status")
	}

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The fiber context is not valid inside the stream writer
		ctx, cancel := context.WithTimeout(context.Background(), h.streamTimeout)
		defer cancel()

		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		for {
			switch status.Status {
			case model.ExamStatusCompleted:
				sse.SendComplete(w, status)
				return
			case model.ExamStatusFailed:
				sse.SendFailed(w, status)
				return
			}

			if err := sse.SendProgress(w, status); err != nil {
				// Client went away
				return
			}

			select {
			case <-ctx.Done():
				sse.SendError(w, ctx.Err())
				return
			case <-ticker.C:
			}

			status, err = h.service.GetStatus(ctx, examID)
			if err != nil {
				sse.SendError(w, err)
				return
			}
		}
	})
	return nil
}

// ReparseExam handles POST /api/v1/exams/:id/reparse
func (h *ExamHandler) ReparseExam(c *fiber.Ctx) error {
	exam, err := h.service.ReparseExam(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err, "Failed to start reparse")
	}
	return response.Accepted(c, "Reparse started", fiber.Map{
		"exam_id": exam.ID,
		"status":  model.ExamStatusProcessing,
	})
}

// DeleteExam handles DELETE /api/v1/exams/:id
func (h *ExamHandler) DeleteExam(c *fiber.Ctx) error {
	if err := h.service.DeleteExam(c.UserContext(), c.Params("id")); err != nil {
		return h.handleError(c, err, "Failed to delete exam")
	}
	return response.Success(c, fiber.Map{"deleted": true})
}

func (h *ExamHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrExamNotFound):
		return response.NotFound(c, "Exam not found")
	case errors.Is(err, services.ErrExamBusy):
		return response.Conflict(c, "Exam is being processed")
	case errors.Is(err, services.ErrUnsupportedFile):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrNoSourceText):
		return response.BadRequest(c, "Exam has no text to parse")
	}
	log.Printf("ExamHandler: %s: %v", fallback, err)
	return response.InternalServerError(c, fallback)
}

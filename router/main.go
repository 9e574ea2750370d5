package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-parser/handlers"
	exam_handlers "github.com/sahilchouksey/exam-parser/handlers/exam"
)

// SetupRoutes mounts every API route on app
func SetupRoutes(app *fiber.App, examHandler *exam_handlers.ExamHandler, healthHandler *handlers.HealthHandler) {
	app.Get("/ping", healthHandler.Ping)

	api := app.Group("/api/v1")
	api.Get("/health", healthHandler.Health)

	// Exam routes
	exams := api.Group("/exams")
	exams.Post("/", examHandler.CreateExam)             // Upload a PDF, image or markdown file
	exams.Post("/text", examHandler.CreateExamFromText) // Submit already-recognized text
	exams.Get("/", examHandler.ListExams)               // List exams with filters
	exams.Get("/:id", examHandler.GetExam)              // Full exam with question tree
	exams.Get("/:id/status", examHandler.GetStatus)     // Stored status plus live progress
	exams.Get("/:id/events", examHandler.StreamStatus)  // Status as server-sent events
	exams.Post("/:id/reparse", examHandler.ReparseExam) // Rerun extraction without OCR
	exams.Delete("/:id", examHandler.DeleteExam)        // Soft delete and remove files
}

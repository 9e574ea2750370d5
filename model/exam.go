package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExamStatus represents the processing status of an exam paper
type ExamStatus string

const (
	ExamStatusPending    ExamStatus = "pending"
	ExamStatusProcessing ExamStatus = "processing"
	ExamStatusCompleted  ExamStatus = "completed"
	ExamStatusFailed     ExamStatus = "failed"
)

// QuestionType is the closed set of question kinds
type QuestionType string

const (
	QuestionTypeChoice      QuestionType = "choice"
	QuestionTypeBlank       QuestionType = "blank"
	QuestionTypeQA          QuestionType = "qa"
	QuestionTypeCalculation QuestionType = "calculation"
	QuestionTypeProof       QuestionType = "proof"
	QuestionTypeOther       QuestionType = "other"
)

// ParseQuestionType normalizes s and maps anything unknown to QuestionTypeOther
func ParseQuestionType(s string) QuestionType {
	switch t := QuestionType(strings.ToLower(strings.TrimSpace(s))); t {
	case QuestionTypeChoice, QuestionTypeBlank, QuestionTypeQA,
		QuestionTypeCalculation, QuestionTypeProof:
		return t
	}
	return QuestionTypeOther
}

// MaxQuestionDepth is the deepest level of sub_questions kept in a question tree
const MaxQuestionDepth = 3

// Question is one node of the extracted question tree.
// ID is "{year}-Q{index}" at the top level and "{parent_id}-{index}" below it;
// Index is unique among siblings only.
type Question struct {
	ID           string       `json:"id"`
	Index        int          `json:"index"`
	Type         QuestionType `json:"type"`
	Content      string       `json:"content"`
	Options      []string     `json:"options"`
	Score        *float64     `json:"score"`
	Images       []string     `json:"images"`
	OriginalText string       `json:"original_text"`
	SubQuestions []Question   `json:"sub_questions"`
}

// ExamPaper is the aggregate root for one uploaded exam document
type ExamPaper struct {
	ID              string                        `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt       time.Time                     `json:"created_at"`
	UpdatedAt       time.Time                     `json:"updated_at"`
	DeletedAt       gorm.DeletedAt                `gorm:"index" json:"-"`
	Year            int                           `gorm:"not null;index" json:"year"`
	Title           string                        `gorm:"type:varchar(255);not null" json:"title"`
	Subject         string                        `gorm:"type:varchar(100);index" json:"subject,omitempty"`
	TotalScore      *float64                      `json:"total_score,omitempty"`
	DurationMinutes *int                          `json:"duration_minutes,omitempty"`
	Questions       datatypes.JSONSlice[Question] `gorm:"type:jsonb" json:"questions"`
	QuestionCount   int                           `gorm:"default:0" json:"question_count"`
	SourceKey       string                        `gorm:"type:text" json:"source_key,omitempty"` // storage key of the uploaded file
	SourceFilename  string                        `gorm:"type:varchar(255)" json:"source_filename,omitempty"`
	RawText         string                        `gorm:"type:text" json:"-"`
	CleanedText     string                        `gorm:"type:text" json:"-"`
	Status          ExamStatus                    `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ErrorMessage    string                        `gorm:"type:text" json:"error_message,omitempty"`
	ParseStrategy   string                        `gorm:"type:varchar(20)" json:"parse_strategy,omitempty"` // single_pass, supervised, fallback
}

// TableName specifies the table name for ExamPaper
func (ExamPaper) TableName() string {
	return "exam_papers"
}

// ExamSummary is the list view of an exam paper
type ExamSummary struct {
	ID            string     `json:"id"`
	Year          int        `json:"year"`
	Title         string     `json:"title"`
	Subject       string     `json:"subject,omitempty"`
	Status        ExamStatus `json:"status"`
	QuestionCount int        `json:"question_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Summary returns the list view of e
func (e *ExamPaper) Summary() ExamSummary {
	return ExamSummary{
		ID:            e.ID,
		Year:          e.Year,
		Title:         e.Title,
		Subject:       e.Subject,
		Status:        e.Status,
		QuestionCount: e.QuestionCount,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

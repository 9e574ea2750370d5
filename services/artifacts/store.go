package artifacts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key
var ErrNotFound = errors.New("artifact not found")

// Store persists uploaded sources and debug artifacts under slash-separated keys
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// SourceKey generates the storage key of an uploaded exam source file
func SourceKey(examID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ' ':
			return '_'
		default:
			return r
		}
	}, base)
	if base == "" {
		base = "source"
	}

	return fmt.Sprintf("exams/%s/source/%d_%s%s", examID, time.Now().Unix(), base, ext)
}

// ExamPrefix is the key prefix holding everything stored for an exam
func ExamPrefix(examID string) string {
	return fmt.Sprintf("exams/%s/", examID)
}

// ContentType returns the content type for a filename
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

package examparser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
)

// ArtifactStore receives the debug artifacts of a run. Artifacts are written for
// operators only and never read back by the parser.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type nopArtifactStore struct{}

func (nopArtifactStore) Put(context.Context, string, []byte, string) error { return nil }

// DebugKey returns the storage key of a debug artifact for an exam
func DebugKey(examID, name string) string {
	return path.Join("exams", examID, "debug", name)
}

// debugWriter writes one run's artifacts; failures are logged and swallowed
type debugWriter struct {
	store  ArtifactStore
	examID string
}

func (w debugWriter) writeText(ctx context.Context, name, content string) {
	w.put(ctx, name, []byte(content), "text/markdown; charset=utf-8")
}

func (w debugWriter) writeJSON(ctx context.Context, name string, v any) {
	var data []byte
	switch val := v.(type) {
	case json.RawMessage:
		var buf bytes.Buffer
		if err := json.Indent(&buf, val, "", "  "); err != nil {
			data = val
		} else {
			data = buf.Bytes()
		}
	default:
		encoded, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			log.Printf("ExamParser: Failed to encode debug artifact %s: %v", name, err)
			return
		}
		data = encoded
	}
	w.put(ctx, name, data, "application/json")
}

func (w debugWriter) put(ctx context.Context, name string, data []byte, contentType string) {
	if w.examID == "" {
		return
	}
	key := DebugKey(w.examID, name)
	if err := w.store.Put(ctx, key, data, contentType); err != nil {
		log.Printf("ExamParser: Failed to save debug artifact %s: %v", key, err)
	}
}

func chunkArtifactName(prefix string, order int) string {
	return fmt.Sprintf("%s_%02d.md", prefix, order+1)
}

func responseArtifactName(prefix string, order int) string {
	if prefix == "chunk" {
		prefix = "worker"
	}
	return fmt.Sprintf("%s_%02d_response.json", prefix, order+1)
}

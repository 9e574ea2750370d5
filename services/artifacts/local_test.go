package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore_PutGet(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "exams/e1/debug/chunk_01.md", []byte("# chunk"), "text/markdown"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := store.Get(ctx, "exams/e1/debug/chunk_01.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "# chunk" {
		t.Errorf("data = %q", data)
	}

	if _, err := os.Stat(filepath.Join(root, "exams", "e1", "debug", "chunk_01.md")); err != nil {
		t.Errorf("file not laid out under root: %v", err)
	}

	if _, err := store.Get(ctx, "exams/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_KeysStayBelowRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if err := store.Put(context.Background(), "../../escape.txt", []byte("x"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Errorf("expected the key to be confined to root: %v", err)
	}
	if err := store.Put(context.Background(), "/", []byte("x"), "text/plain"); err == nil {
		t.Error("expected an error for an empty key")
	}
}

func TestLocalStore_DeletePrefix(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	keys := []string{
		"exams/e1/source/1_paper.pdf",
		"exams/e1/debug/supervisor_plan.json",
		"exams/e10/debug/chunk_01.md",
		"exams/e2/debug/chunk_01.md",
	}
	for _, k := range keys {
		if err := store.Put(ctx, k, []byte(k), "text/plain"); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	if err := store.DeletePrefix(ctx, ExamPrefix("e1")); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	for _, k := range keys {
		_, err := store.Get(ctx, k)
		gone := errors.Is(err, ErrNotFound)
		if wantGone := strings.HasPrefix(k, "exams/e1/"); gone != wantGone {
			t.Errorf("%s: gone = %v, want %v", k, gone, wantGone)
		}
	}

	// a bare prefix matches key strings, not directories
	if err := store.DeletePrefix(ctx, "exams/e"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if _, err := store.Get(ctx, "exams/e2/debug/chunk_01.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected e2 to be deleted, got %v", err)
	}
}

func TestSourceKey(t *testing.T) {
	key := SourceKey("e1", "Final Exam 2024.PDF")
	if !strings.HasPrefix(key, "exams/e1/source/") || !strings.HasSuffix(key, "_Final_Exam_2024.pdf") {
		t.Errorf("key = %s", key)
	}
	if ContentType("a.PDF") != "application/pdf" || ContentType("a.bin") != "application/octet-stream" {
		t.Error("unexpected content types")
	}
}

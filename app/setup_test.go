package app

import (
	"errors"
	"testing"
	"time"

	"github.com/sahilchouksey/exam-parser/config"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
	"github.com/sahilchouksey/exam-parser/services/llm"
)

func testEnv() *config.EnvironmentVariable {
	return &config.EnvironmentVariable{
		LLM_PROVIDER:                  "inference",
		LLM_API_KEYS:                  "key-a,key-b",
		LLM_MODEL:                     "gpt-4o-mini",
		LLM_TIMEOUT_SECONDS:           60,
		LLM_REQUESTS_PER_SECOND:       2,
		STORAGE_DRIVER:                "local",
		PARSER_SINGLE_PASS_MAX_CHARS:  8000,
		PARSER_QUESTIONS_PER_WORKER:   10,
		PARSER_MAX_CONCURRENT:         3,
		PARSER_FALLBACK_WINDOW_CHARS:  6000,
		PARSER_FALLBACK_OVERLAP_CHARS: 500,
		PARSER_MARKER_SIMILARITY:      0.85,
	}
}

func TestNewCompleter(t *testing.T) {
	env := testEnv()

	completer, err := NewCompleter(env)
	if err != nil {
		t.Fatalf("NewCompleter: %v", err)
	}
	if _, ok := completer.(*llm.InferenceClient); !ok {
		t.Errorf("inference provider built %T", completer)
	}

	env.LLM_PROVIDER = "openai"
	completer, _ = NewCompleter(env)
	if _, ok := completer.(*llm.OpenAIClient); !ok {
		t.Errorf("openai provider built %T", completer)
	}

	env.LLM_API_KEYS = " , "
	if _, err := NewCompleter(env); !errors.Is(err, llm.ErrNoAPIKeys) {
		t.Errorf("expected ErrNoAPIKeys, got %v", err)
	}
}

func TestNewArtifactStore(t *testing.T) {
	env := testEnv()
	env.STORAGE_DIR = t.TempDir()

	store, err := NewArtifactStore(env)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	if _, ok := store.(*artifacts.LocalStore); !ok {
		t.Errorf("local driver built %T", store)
	}
}

func TestParserConfig(t *testing.T) {
	cfg := ParserConfig(testEnv())
	if cfg.SinglePassMaxChars != 8000 || cfg.QuestionsPerWorker != 10 || cfg.MaxConcurrent != 3 {
		t.Errorf("sizing not applied: %+v", cfg)
	}
	if cfg.FallbackWindowChars != 6000 || cfg.FallbackOverlapChars != 500 || cfg.MarkerSimilarity != 0.85 {
		t.Errorf("fallback settings not applied: %+v", cfg)
	}
	if cfg.WorkerTimeout != 60*time.Second {
		t.Errorf("WorkerTimeout = %v", cfg.WorkerTimeout)
	}
}

func TestNewOCRClient(t *testing.T) {
	env := testEnv()
	if NewOCRClient(env) != nil {
		t.Error("expected nil client without OCR_SERVICE_URL")
	}

	env.OCR_SERVICE_URL = "http://ocr.local"
	env.OCR_SERVICE_KEYS = "k1"
	if client := NewOCRClient(env); !client.Enabled() {
		t.Error("expected enabled OCR client")
	}
}

package examparser

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/exam-parser/services/llm"
)

func TestParseSplitPlan(t *testing.T) {
	content := "Here is the plan:\n```json\n{\"total_questions\": \"45\", \"splits\": [" +
		"{\"start_question\": 1, \"start_marker\": \"1. Which of the following is true\"}," +
		"{\"start_question\": \"21\", \"start_marker\": \"21. A train leaves the station\"}," +
		"{\"start_question\": 41, \"start_marker\": \"   \"}," +
		"\"garbage\"," +
		"]}\n```"

	plan := parseSplitPlan(content)
	if plan == nil {
		t.Fatal("expected plan")
	}
	if plan.TotalQuestionsEstimate != 45 {
		t.Errorf("total = %d", plan.TotalQuestionsEstimate)
	}
	if len(plan.Entries) != 2 {
		t.Fatalf("expected 2 usable entries, got %+v", plan.Entries)
	}
	if plan.Entries[1].StartOrdinal != 21 || plan.Entries[1].StartMarker != "21. A train leaves the station" {
		t.Errorf("entry = %+v", plan.Entries[1])
	}
}

func TestParseSplitPlan_Unusable(t *testing.T) {
	for _, content := range []string{"", "no json", `{"total_questions": 3}`, `{"splits": []}`} {
		if plan := parseSplitPlan(content); plan != nil {
			t.Errorf("parseSplitPlan(%q) = %+v, want nil", content, plan)
		}
	}
}

func TestSupervisor_ProposeSplit(t *testing.T) {
	var got llm.CompletionRequest
	completer := completerFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
		got = req
		return &llm.Completion{Content: `{"total_questions":2,"splits":[{"start_question":1,"start_marker":"Q1"}]}`}, nil
	})

	plan := NewSupervisor(completer, DefaultConfig()).ProposeSplit(context.Background(), "Q1 text", 20)
	if plan == nil || len(plan.Entries) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	if got.MaxTokens != 2048 || got.Temperature != 0.1 || !got.JSONMode {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestSupervisor_TransportFailure(t *testing.T) {
	completer := completerFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
		return nil, errors.New("connection refused")
	})
	if plan := NewSupervisor(completer, DefaultConfig()).ProposeSplit(context.Background(), "text", 20); plan != nil {
		t.Errorf("expected nil plan, got %+v", plan)
	}
}

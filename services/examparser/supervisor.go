package examparser

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sahilchouksey/exam-parser/services/llm"
	"github.com/sahilchouksey/exam-parser/utils"
)

// SplitEntry is one anchor proposed by the supervisor
type SplitEntry struct {
	StartOrdinal int    `json:"start_question"`
	StartMarker  string `json:"start_marker"`
}

// SplitPlan is the supervisor's coarse plan for a long document
type SplitPlan struct {
	TotalQuestionsEstimate int          `json:"total_questions"`
	Entries                []SplitEntry `json:"splits"`
}

// Supervisor asks the oracle where a long document's question batches begin
type Supervisor struct {
	completer   llm.Completer
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewSupervisor creates a split planner on top of completer
func NewSupervisor(completer llm.Completer, config Config) *Supervisor {
	return &Supervisor{
		completer:   completer,
		maxTokens:   config.SupervisorMaxTokens,
		temperature: config.Temperature,
		timeout:     config.SupervisorTimeout,
	}
}

// ProposeSplit makes one oracle call and returns the recovered plan. It returns
// nil when the call fails or no usable plan can be recovered; callers fall back
// to sliding windows.
func (s *Supervisor) ProposeSplit(ctx context.Context, text string, batchSize int) *SplitPlan {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		System:      supervisorSystemPrompt,
		User:        fmt.Sprintf(supervisorPromptTemplate, text, batchSize),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		JSONMode:    true,
	})
	if err != nil {
		log.Printf("ExamParser: Supervisor call failed: %v", err)
		return nil
	}

	plan := parseSplitPlan(resp.Content)
	if plan == nil {
		log.Printf("ExamParser: Supervisor returned no usable plan (length=%d)", len(resp.Content))
	}
	return plan
}

func parseSplitPlan(content string) *SplitPlan {
	obj, ok := utils.RecoverObject(content)
	if !ok {
		return nil
	}

	rawSplits, _ := obj["splits"].([]any)
	plan := &SplitPlan{
		Entries: make([]SplitEntry, 0, len(rawSplits)),
	}
	if total, ok := toInt(obj["total_questions"]); ok {
		plan.TotalQuestionsEstimate = total
	}

	for _, raw := range rawSplits {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		marker, _ := entry["start_marker"].(string)
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}
		ordinal, _ := toInt(entry["start_question"])
		plan.Entries = append(plan.Entries, SplitEntry{
			StartOrdinal: ordinal,
			StartMarker:  marker,
		})
	}

	if len(plan.Entries) == 0 {
		return nil
	}
	return plan
}

package examparser

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/exam-parser/services/llm"
	"github.com/sahilchouksey/exam-parser/utils"
)

// Worker extracts raw question records from one window of text
type Worker struct {
	completer   llm.Completer
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewWorker creates a worker on top of completer
func NewWorker(completer llm.Completer, config Config) *Worker {
	return &Worker{
		completer:   completer,
		maxTokens:   config.WorkerMaxTokens,
		temperature: config.Temperature,
		timeout:     config.WorkerTimeout,
	}
}

// Extract makes one oracle call for text. Only transport failures are errors;
// output that recovers to zero records is returned as an empty slice together
// with the raw completion for debugging.
func (w *Worker) Extract(ctx context.Context, text string) ([]utils.Record, *llm.Completion, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	resp, err := w.completer.Complete(ctx, llm.CompletionRequest{
		System:      workerSystemPrompt,
		User:        fmt.Sprintf(workerPromptTemplate, text),
		MaxTokens:   w.maxTokens,
		Temperature: w.temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("worker completion: %w", err)
	}

	return utils.RecoverRecords(resp.Content), resp, nil
}

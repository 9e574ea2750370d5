package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

var (
	// ErrNoChoices is returned when a completion envelope carries no choices
	ErrNoChoices = errors.New("no choices returned from completion API")
	// ErrNoAPIKeys is returned when a client is built without credentials
	ErrNoAPIKeys = errors.New("no API keys configured")
)

// CompletionRequest is a single-turn system + user completion
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Completion is the text returned by the oracle plus its raw envelope
type Completion struct {
	Content      string
	Model        string
	FinishReason string
	Raw          json.RawMessage
}

// Completer is the black-box text-completion call. Implementations fail only on
// transport problems; interpreting the returned text is the caller's job.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// StatusError is a non-2xx response from a completion endpoint
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500] + "..."
	}
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, body)
}

// Rotatable reports whether a status means the current key is spent or rejected
func (e *StatusError) Rotatable() bool {
	return e.StatusCode == 401 || e.StatusCode == 403 || e.StatusCode == 429
}

// withKeyRotation runs call with the pool's current key, waiting on the rate
// limiter before each attempt. A rejected or throttled key moves the pool to
// the next one; a single call makes at most as many attempts as the pool holds.
func withKeyRotation(ctx context.Context, config InferenceConfig, name string, call func(apiKey string) (*Completion, error)) (*Completion, error) {
	attempts := config.Keys.Len()
	if attempts == 0 {
		return nil, ErrNoAPIKeys
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if config.Limiter != nil {
			if err := config.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		key := config.Keys.Current()
		completion, err := call(key)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Rotatable() || !config.Keys.Rotate(key) {
			return nil, err
		}
		log.Printf("%s: status %d, rotating to next API key", name, statusErr.StatusCode)
	}
	return nil, lastErr
}

package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Event types sent on exam status streams
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventFailed   = "failed"
	EventError    = "error"
)

// Event is one server-sent event
type Event struct {
	Event string      // omitted when empty
	Data  interface{} // strings and []byte are sent as-is, anything else as JSON
	ID    string
	Retry int // reconnection delay in milliseconds
}

func encodeData(data interface{}) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event data: %w", err)
	}
	return string(b), nil
}

// Send writes event to w and flushes it to the client
func Send(w *bufio.Writer, event Event) error {
	data, err := encodeData(event.Data)
	if err != nil {
		return err
	}

	var b strings.Builder
	if event.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", event.ID)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", event.Retry)
	}
	if event.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", event.Event)
	}
	// Multi-line payloads need one data field per line
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := w.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return w.Flush()
}

// SendProgress sends a progress event
func SendProgress(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventProgress, Data: data})
}

// SendComplete sends the final event of a successful run
func SendComplete(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventComplete, Data: data})
}

// SendFailed sends the final event of a failed run
func SendFailed(w *bufio.Writer, data interface{}) error {
	return Send(w, Event{Event: EventFailed, Data: data})
}

// SendError reports a stream-level error, not an extraction failure
func SendError(w *bufio.Writer, err error) error {
	return Send(w, Event{
		Event: EventError,
		Data: map[string]interface{}{
			"type":    "error",
			"message": err.Error(),
		},
	})
}

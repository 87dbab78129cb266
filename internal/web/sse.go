package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// SSE event types emitted by the exchange endpoint.
const (
	EventSession = "session" // A new durable session was created
	EventUpdate  = "update"  // Current message sequence snapshot
	EventDone    = "done"    // Exchange finished, success or not
	EventError   = "error"   // Request-level failure before/while streaming
)

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}

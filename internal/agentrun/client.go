// Package agentrun streams agent and team runs from the upstream runtime.
package agentrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
)

// runPath is the streaming run endpoint relative to the base URL.
const runPath = "/v1/runs"

// Client issues streaming run requests against an agent runtime endpoint.
// It implements chat.Runner.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client for the runtime at baseURL.
func New(baseURL string, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("agentrun: base URL is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: a run streams for as long as the model talks.
		// Cancellation comes from the request context.
		httpClient: &http.Client{Timeout: 0},
		logger:     logger,
	}, nil
}

// runPayload is the wire request for a streamed run.
type runPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Stream    bool   `json:"stream"`
}

// Run opens a streamed run and yields decoded chunks in arrival order. The
// sequence ends after a terminal chunk, a decode failure, or a transport
// error; the error, if any, is yielded as the final element.
func (c *Client) Run(ctx context.Context, req chat.RunRequest) iter.Seq2[chat.Chunk, error] {
	return func(yield func(chat.Chunk, error) bool) {
		body, err := json.Marshal(runPayload{
			Message:   req.Message,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Stream:    true,
		})
		if err != nil {
			yield(nil, fmt.Errorf("encoding run request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(body))
		if err != nil {
			yield(nil, fmt.Errorf("building run request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("opening run stream: %w", err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			yield(nil, fmt.Errorf("run request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
			return
		}

		dec := json.NewDecoder(resp.Body)
		chunks := 0
		for {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				if err == io.EOF {
					break
				}
				yield(nil, fmt.Errorf("reading run stream: %w", err))
				return
			}

			chunk, err := chat.DecodeChunk(raw)
			if err != nil {
				yield(nil, err)
				return
			}
			chunks++
			if !yield(chunk, nil) {
				return
			}
		}

		c.logger.Debug("run stream finished",
			"session_id", req.SessionID,
			"chunks", chunks,
			"elapsed", time.Since(start))
	}
}

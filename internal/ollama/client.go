// Package ollama probes a local Ollama server: reachability and the list of
// installed models.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fahadahaf/chat-ui/internal/log"
)

// DefaultBaseURL is the standard local Ollama address.
const DefaultBaseURL = "http://localhost:11434"

// Model describes one installed model as reported by the tags endpoint.
type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Client talks to one Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client for the server at baseURL; empty means DefaultBaseURL.
func New(baseURL string, logger log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Status probes the server root and reports an HTTP-style status code.
// An unreachable server maps to 503 rather than an error, because the UI
// renders reachability as a status, not a failure.
func (c *Client) Status(ctx context.Context) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return http.StatusServiceUnavailable
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("ollama unreachable", "base_url", c.baseURL, "error", err)
		return http.StatusServiceUnavailable
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode
}

// Tags returns the models installed on the server.
func (c *Client) Tags(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		Models []Model `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding tags response: %w", err)
	}
	return payload.Models, nil
}

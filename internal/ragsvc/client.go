// Package ragsvc talks to the retrieval-augmented-generation service: plan
// generation for free-text prompts, literal plan execution, the predefined
// query catalog, and a health probe.
package ragsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
)

// QueryParam is one typed parameter of a predefined query. Options, when
// present, enumerate the accepted values.
type QueryParam struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
}

// QueryDef describes one predefined query the service can execute.
type QueryDef struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  []QueryParam `json:"parameters,omitempty"`
}

// ProviderConfig carries the model backend settings the planner needs.
type ProviderConfig struct {
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model,omitempty"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Client is an HTTP client for one RAG service. It implements chat.Planner.
type Client struct {
	baseURL    string
	provider   ProviderConfig
	httpClient *http.Client
	logger     log.Logger
}

// New creates a Client for the service at baseURL. provider is forwarded on
// every plan request so the service can reach the selected model backend.
func New(baseURL string, provider ProviderConfig, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ragsvc: base URL is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		provider:   provider,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}, nil
}

// WithBase returns a copy of the client pointed at a different base URL.
// The web layer uses this for per-request ?base= overrides.
func (c *Client) WithBase(baseURL string) *Client {
	clone := *c
	clone.baseURL = strings.TrimRight(baseURL, "/")
	return &clone
}

// planPayload is the wire request for POST /plan.
type planPayload struct {
	Text           string         `json:"text"`
	History        []string       `json:"history,omitempty"`
	Provider       string         `json:"provider"`
	ProviderConfig ProviderConfig `json:"provider_config"`
}

// planResponse is the wire response of /plan and /execute. Plan stays raw
// because the service returns either a step array or an error object there.
type planResponse struct {
	Plan  json.RawMessage   `json:"plan,omitempty"`
	Raw   string            `json:"raw,omitempty"`
	Table *chat.ResultTable `json:"table,omitempty"`
}

// Plan asks the service to plan req and returns the steps and any
// immediately produced table.
func (c *Client) Plan(ctx context.Context, req chat.PlanRequest) (chat.PlanResult, error) {
	payload := planPayload{
		Text:           req.Text,
		History:        req.History,
		Provider:       req.Provider,
		ProviderConfig: c.provider,
	}

	var resp planResponse
	if err := c.post(ctx, "/plan", payload, &resp); err != nil {
		return chat.PlanResult{}, err
	}

	steps, err := decodeSteps(resp.Plan)
	if err != nil {
		return chat.PlanResult{}, err
	}
	return chat.PlanResult{Steps: steps, Table: resp.Table}, nil
}

// Execute runs a literal plan and returns the produced table.
func (c *Client) Execute(ctx context.Context, steps []chat.PlanStep) (*chat.ResultTable, error) {
	var resp planResponse
	if err := c.post(ctx, "/execute", map[string]any{"plan": steps}, &resp); err != nil {
		return nil, err
	}
	if resp.Table == nil {
		return nil, fmt.Errorf("execute response carried no table")
	}
	return resp.Table, nil
}

// Queries returns the predefined query catalog.
func (c *Client) Queries(ctx context.Context) ([]QueryDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queries", nil)
	if err != nil {
		return nil, fmt.Errorf("building queries request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("queries request failed with status %d", resp.StatusCode)
	}

	var defs []QueryDef
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		return nil, fmt.Errorf("decoding queries response: %w", err)
	}
	return defs, nil
}

// Health probes the service and returns nil when it is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rag service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rag service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s request failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// decodeSteps tolerates the service's two plan shapes: a step array, or an
// error object. The error object becomes a validation_error step so callers
// handle both through one path.
func decodeSteps(raw json.RawMessage) ([]chat.PlanStep, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var steps []chat.PlanStep
		if err := json.Unmarshal(raw, &steps); err != nil {
			return nil, fmt.Errorf("decoding plan steps: %w", err)
		}
		return steps, nil
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decoding plan object: %w", err)
	}
	if obj.Error != "" {
		return []chat.PlanStep{{Name: "validation_error", Message: obj.Error}}, nil
	}
	return nil, nil
}

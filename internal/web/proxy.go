package web

import (
	"encoding/json"
	"net/http"

	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/ollama"
	"github.com/fahadahaf/chat-ui/internal/ragsvc"
)

// ollamaHandler proxies model-availability checks to an Ollama server.
// A ?base= query parameter points the check at a non-default server, which
// the UI uses for per-chat Ollama settings.
type ollamaHandler struct {
	defaultHost string
	logger      log.Logger
}

func (h *ollamaHandler) client(r *http.Request) *ollama.Client {
	base := r.URL.Query().Get("base")
	if base == "" {
		base = h.defaultHost
	}
	return ollama.New(base, h.logger)
}

func (h *ollamaHandler) status(w http.ResponseWriter, r *http.Request) {
	code := h.client(r).Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"status": code}, h.logger)
}

func (h *ollamaHandler) tags(w http.ResponseWriter, r *http.Request) {
	models, err := h.client(r).Tags(r.Context())
	if err != nil {
		h.logger.Error("listing ollama models", "error", err)
		writeError(w, http.StatusBadGateway, "ollama_unavailable", "failed to reach Ollama", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models}, h.logger)
}

// ragHandler proxies planning endpoints to the RAG service. Like the Ollama
// proxy, ?base= redirects a request to a non-default service instance.
type ragHandler struct {
	client *ragsvc.Client
	logger log.Logger
}

func (h *ragHandler) resolved(r *http.Request) *ragsvc.Client {
	if base := r.URL.Query().Get("base"); base != "" {
		return h.client.WithBase(base)
	}
	return h.client
}

type planProxyRequest struct {
	Text     string   `json:"text"`
	History  []string `json:"history,omitempty"`
	Provider string   `json:"provider"`
}

type executeProxyRequest struct {
	Plan []chat.PlanStep `json:"plan"`
}

func (h *ragHandler) plan(w http.ResponseWriter, r *http.Request) {
	var req planProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required", h.logger)
		return
	}

	result, err := h.resolved(r).Plan(r.Context(), chat.PlanRequest{
		Text:     req.Text,
		History:  req.History,
		Provider: req.Provider,
	})
	if err != nil {
		h.logger.Error("planning", "error", err)
		writeError(w, http.StatusBadGateway, "rag_unavailable", "failed to reach RAG service", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": result.Steps, "table": result.Table}, h.logger)
}

func (h *ragHandler) execute(w http.ResponseWriter, r *http.Request) {
	var req executeProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Plan) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan is required", h.logger)
		return
	}

	table, err := h.resolved(r).Execute(r.Context(), req.Plan)
	if err != nil {
		h.logger.Error("executing plan", "error", err)
		writeError(w, http.StatusBadGateway, "rag_unavailable", "failed to execute plan", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table}, h.logger)
}

func (h *ragHandler) queries(w http.ResponseWriter, r *http.Request) {
	defs, err := h.resolved(r).Queries(r.Context())
	if err != nil {
		h.logger.Error("listing predefined queries", "error", err)
		writeError(w, http.StatusBadGateway, "rag_unavailable", "failed to list queries", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": defs}, h.logger)
}

func (h *ragHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.resolved(r).Health(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"healthy": false}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": true}, h.logger)
}

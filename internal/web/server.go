// Package web is the JSON/SSE HTTP surface of the chat UI backend. It fronts
// the persisted-chat store, the exchange orchestrator, and the collaborating
// services (auth, Ollama, RAG) behind one middleware stack.
package web

import (
	"errors"
	"net/http"

	"github.com/fahadahaf/chat-ui/internal/auth"
	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/ragsvc"
	"github.com/fahadahaf/chat-ui/internal/store"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger          log.Logger
	Store           *store.Store   // Required
	Auth            *auth.Client   // Required
	Runner          chat.Runner    // Optional: nil disables live streaming providers
	RAG             *ragsvc.Client // Optional: nil disables plan-backed providers and the rag proxy
	OllamaHost      string         // Default base URL for the Ollama proxy
	DefaultProvider string         // Provider used when a request names none
	CORSOrigins     []string       // Allowed origins for CORS
	RateRPS         float64        // Rate limiter refill rate per IP (0 = default 10)
	RateBurst       int            // Rate limiter burst size per IP (0 = default 20)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("auth client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()

	// Identity
	ah := &authHandler{client: cfg.Auth, logger: logger}
	mux.HandleFunc("GET /api/auth/me", ah.me)
	mux.HandleFunc("POST /api/auth/logout", ah.logout)

	// Persisted chats
	ch := &chatsHandler{store: cfg.Store, logger: logger}
	mux.HandleFunc("GET /api/chats", ch.list)
	mux.HandleFunc("POST /api/chats", ch.create)
	mux.HandleFunc("PATCH /api/chats/{id}", ch.rename)
	mux.HandleFunc("DELETE /api/chats/{id}", ch.delete)
	mux.HandleFunc("GET /api/chats/{id}/messages", ch.listMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", ch.addMessage)

	// Live exchange (SSE)
	var planner chat.Planner
	if cfg.RAG != nil {
		planner = cfg.RAG
	}
	eh := &exchangeHandler{
		store:           cfg.Store,
		runner:          cfg.Runner,
		planner:         planner,
		defaultProvider: cfg.DefaultProvider,
		logger:          logger,
	}
	mux.HandleFunc("POST /api/exchange", eh.exchange)

	// Ollama availability proxy
	oh := &ollamaHandler{defaultHost: cfg.OllamaHost, logger: logger}
	mux.HandleFunc("GET /api/ollama/status", oh.status)
	mux.HandleFunc("GET /api/ollama/tags", oh.tags)

	// RAG service proxy (optional)
	if cfg.RAG != nil {
		rh := &ragHandler{client: cfg.RAG, logger: logger}
		mux.HandleFunc("POST /api/rag/plan", rh.plan)
		mux.HandleFunc("POST /api/rag/execute", rh.execute)
		mux.HandleFunc("GET /api/rag/queries", rh.queries)
		mux.HandleFunc("GET /api/rag/health", rh.health)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(rps, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Auth, logger)(handler)
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to keep health probes outside the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/store"
)

// exchangeHandler runs one chat exchange end to end and relays every state
// snapshot to the client as SSE events. Each request gets its own state
// container seeded from the persisted history, so concurrent exchanges on
// different sessions never share mutable state.
type exchangeHandler struct {
	store           *store.Store
	runner          chat.Runner
	planner         chat.Planner
	defaultProvider string
	logger          log.Logger
}

type exchangeRequest struct {
	Message    string         `json:"message"`
	Provider   string         `json:"provider,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	QueryName  string         `json:"query_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type updatePayload struct {
	SessionID string         `json:"session_id"`
	Messages  []chat.Message `json:"messages"`
}

type donePayload struct {
	SessionID string `json:"session_id"`
}

func (h *exchangeHandler) exchange(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req exchangeRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "invalid_request", Message: "invalid request body"})
		return
	}
	if req.Message == "" && req.QueryName == "" {
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "invalid_request", Message: "message or query_name is required"})
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = h.defaultProvider
	}

	identity, _ := identityFromContext(r.Context())

	st := chat.NewState()
	if req.SessionID != "" {
		if ok := h.seed(w, flusher, r, st, req.SessionID, identity.UserID); !ok {
			return
		}
	}

	orch, err := chat.NewOrchestrator(chat.Config{
		State:   st,
		Store:   store.NewChatStore(h.store),
		Runner:  h.runner,
		Planner: h.planner,
		Logger:  h.logger,
		UserID:  identity.UserID,
		OnSessionCreated: func(entry chat.SessionEntry) {
			if err := writeEvent(w, flusher, EventSession, entry); err != nil {
				h.logger.Debug("writing session event", "error", err)
			}
		},
		OnUpdate: func(sessionID string, msgs []chat.Message) {
			if err := writeEvent(w, flusher, EventUpdate, updatePayload{SessionID: sessionID, Messages: msgs}); err != nil {
				h.logger.Debug("writing update event", "error", err)
			}
		},
		OnDone: func(sessionID string) {
			if err := writeEvent(w, flusher, EventDone, donePayload{SessionID: sessionID}); err != nil {
				h.logger.Debug("writing done event", "error", err)
			}
		},
	})
	if err != nil {
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "internal_error", Message: "failed to start exchange"})
		return
	}

	ctx := r.Context()
	if req.QueryName != "" {
		err = orch.ExecuteQuery(ctx, provider, req.QueryName, req.Parameters)
	} else {
		err = orch.Send(ctx, provider, req.Message)
	}
	if err != nil {
		h.logger.Error("running exchange", "error", err, "provider", provider)
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "exchange_failed", Message: err.Error()})
	}
}

// seed loads the persisted history of an existing session into the state
// container and binds the display to it, so the exchange continues the
// conversation instead of starting a fresh one.
func (h *exchangeHandler) seed(w http.ResponseWriter, flusher http.Flusher, r *http.Request, st *chat.State, sessionID, userID string) bool {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "invalid_session", Message: "session_id must be a UUID"})
		return false
	}

	owned, err := h.store.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && owned.UserID != userID) {
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "not_found", Message: "chat not found"})
		return false
	}
	if err != nil {
		h.logger.Error("loading chat for exchange", "error", err, "chat_id", id)
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "internal_error", Message: "failed to load chat"})
		return false
	}

	rows, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("loading history for exchange", "error", err, "chat_id", id)
		_ = writeEvent(w, flusher, EventError, errorBody{Code: "internal_error", Message: "failed to load history"})
		return false
	}

	msgs := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := store.ToChatMessage(row)
		if err != nil {
			h.logger.Warn("skipping undecodable message", "error", err, "message_id", row.ID)
			continue
		}
		msgs = append(msgs, msg)
	}

	st.UpsertSession(chat.SessionEntry{
		SessionID:   sessionID,
		SessionName: owned.SessionName,
		CreatedAt:   owned.CreatedAt.Unix(),
	})
	st.SetCachedMessages(sessionID, msgs)
	st.SwitchTo(sessionID)
	return true
}

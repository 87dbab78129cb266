package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"

	"github.com/fahadahaf/chat-ui/internal/log"
	"github.com/fahadahaf/chat-ui/internal/store"
)

// chatsHandler owns the persisted-chat CRUD endpoints.
type chatsHandler struct {
	store  *store.Store
	logger log.Logger
}

type createChatRequest struct {
	Provider    string `json:"provider"`
	SessionName string `json:"session_name"`
}

type renameChatRequest struct {
	SessionName string `json:"session_name"`
}

type addMessageRequest struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ExtraData json.RawMessage `json:"extra_data,omitempty"`
}

func (h *chatsHandler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	chats, err := h.store.ListChats(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("listing chats", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list chats", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats}, h.logger)
}

func (h *chatsHandler) create(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.SessionName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_name is required", h.logger)
		return
	}

	chat, err := h.store.CreateChat(r.Context(), identity.UserID, req.Provider, req.SessionName)
	switch {
	case errors.Is(err, store.ErrChatLimit):
		writeError(w, http.StatusConflict, "chat_limit",
			"chat limit reached, delete an existing chat first", h.logger)
		return
	case errors.Is(err, store.ErrInvalidProvider):
		writeError(w, http.StatusBadRequest, "invalid_provider", "unsupported provider", h.logger)
		return
	case err != nil:
		h.logger.Error("creating chat", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create chat", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, chat, h.logger)
}

func (h *chatsHandler) rename(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	var req renameChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_name is required", h.logger)
		return
	}

	if err := h.store.RenameChat(r.Context(), chat.ID, req.SessionName); err != nil {
		h.logger.Error("renaming chat", "error", err, "chat_id", chat.ID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to rename chat", h.logger)
		return
	}
	chat.SessionName = req.SessionName
	writeJSON(w, http.StatusOK, chat, h.logger)
}

func (h *chatsHandler) delete(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteChat(r.Context(), chat.ID); err != nil {
		h.logger.Error("deleting chat", "error", err, "chat_id", chat.ID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete chat", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatsHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	messages, err := h.store.ListMessages(r.Context(), chat.ID)
	if err != nil {
		h.logger.Error("listing messages", "error", err, "chat_id", chat.ID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list messages", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages}, h.logger)
}

func (h *chatsHandler) addMessage(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	validRoles := []string{"user", "agent", "system", "tool"}
	if !slices.Contains(validRoles, req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role", "role must be user, agent, system, or tool", h.logger)
		return
	}

	msg, err := h.store.AddMessage(r.Context(), chat.ID, req.Role, req.Content, req.ExtraData)
	if err != nil {
		h.logger.Error("adding message", "error", err, "chat_id", chat.ID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to add message", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, msg, h.logger)
}

// ownedChat resolves the {id} path value to a chat owned by the caller.
// A chat belonging to someone else reads as not found, so ids cannot be
// probed across users.
func (h *chatsHandler) ownedChat(w http.ResponseWriter, r *http.Request) (store.Chat, bool) {
	identity, _ := identityFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_chat_id", "chat id must be a UUID", h.logger)
		return store.Chat{}, false
	}

	chat, err := h.store.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && chat.UserID != identity.UserID) {
		writeError(w, http.StatusNotFound, "not_found", "chat not found", h.logger)
		return store.Chat{}, false
	}
	if err != nil {
		h.logger.Error("loading chat", "error", err, "chat_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load chat", h.logger)
		return store.Chat{}, false
	}
	return chat, true
}

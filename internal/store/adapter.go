package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fahadahaf/chat-ui/internal/chat"
)

// ChatStore adapts Store to the conversation engine's persistence boundary
// (chat.Store). Session ids cross the boundary as strings because the engine
// also handles provisional non-durable ids.
type ChatStore struct {
	store *Store
}

// NewChatStore wraps s for use by a chat orchestrator.
func NewChatStore(s *Store) *ChatStore {
	return &ChatStore{store: s}
}

// CreateChat opens a durable chat and returns it as a session entry.
func (a *ChatStore) CreateChat(ctx context.Context, userID, provider, name string) (chat.SessionEntry, error) {
	c, err := a.store.CreateChat(ctx, userID, provider, name)
	if err != nil {
		return chat.SessionEntry{}, err
	}
	return chat.SessionEntry{
		SessionID:   c.ID.String(),
		SessionName: c.SessionName,
		CreatedAt:   c.CreatedAt.Unix(),
	}, nil
}

// AppendMessage persists one in-memory message. The structured bag is stored
// as JSONB; tool calls ride inside it so a reloaded transcript keeps them.
func (a *ChatStore) AppendMessage(ctx context.Context, sessionID string, msg chat.Message) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id %q is not durable: %w", sessionID, err)
	}

	extra, err := marshalExtra(msg)
	if err != nil {
		return fmt.Errorf("encoding message extra data: %w", err)
	}

	_, err = a.store.AddMessage(ctx, id, string(msg.Role), msg.Content, extra)
	return err
}

// persistedExtra is the JSONB shape of a message's structured payload.
type persistedExtra struct {
	ReasoningSteps []chat.ReasoningStep  `json:"reasoning_steps,omitempty"`
	References     []chat.ReferenceGroup `json:"references,omitempty"`
	Table          *chat.ResultTable     `json:"table,omitempty"`
	ToolCalls      []chat.ToolCall       `json:"tool_calls,omitempty"`
}

func marshalExtra(msg chat.Message) ([]byte, error) {
	extra := persistedExtra{ToolCalls: msg.ToolCalls}
	if msg.ExtraData != nil {
		extra.ReasoningSteps = msg.ExtraData.ReasoningSteps
		extra.References = msg.ExtraData.References
		extra.Table = msg.ExtraData.Table
	}
	if extra.ReasoningSteps == nil && extra.References == nil && extra.Table == nil && extra.ToolCalls == nil {
		return nil, nil
	}
	return json.Marshal(extra)
}

// ToChatMessage converts a persisted message back to the in-memory model,
// used when rehydrating a session transcript.
func ToChatMessage(m Message) (chat.Message, error) {
	out := chat.Message{
		Role:      chat.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Unix(),
	}
	if len(m.ExtraData) == 0 {
		return out, nil
	}

	var extra persistedExtra
	if err := json.Unmarshal(m.ExtraData, &extra); err != nil {
		return chat.Message{}, fmt.Errorf("decoding message extra data: %w", err)
	}
	out.ToolCalls = extra.ToolCalls
	if extra.ReasoningSteps != nil || extra.References != nil || extra.Table != nil {
		out.ExtraData = &chat.ExtraData{
			ReasoningSteps: extra.ReasoningSteps,
			References:     extra.References,
			Table:          extra.Table,
		}
	}
	return out, nil
}

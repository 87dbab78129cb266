package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventKind is the discriminator tag carried by every streamed chunk.
type EventKind string

// Chunk event kinds. Team-scoped runs emit the Team* variants; they carry the
// same payloads and reduce identically.
const (
	EventRunStarted             EventKind = "RunStarted"
	EventTeamRunStarted         EventKind = "TeamRunStarted"
	EventReasoningStarted       EventKind = "ReasoningStarted"
	EventTeamReasoningStarted   EventKind = "TeamReasoningStarted"
	EventToolCallStarted        EventKind = "ToolCallStarted"
	EventTeamToolCallStarted    EventKind = "TeamToolCallStarted"
	EventToolCallCompleted      EventKind = "ToolCallCompleted"
	EventTeamToolCallCompleted  EventKind = "TeamToolCallCompleted"
	EventRunContent             EventKind = "RunResponseContent"
	EventTeamRunContent         EventKind = "TeamRunResponseContent"
	EventReasoningStep          EventKind = "ReasoningStep"
	EventTeamReasoningStep      EventKind = "TeamReasoningStep"
	EventReasoningCompleted     EventKind = "ReasoningCompleted"
	EventTeamReasoningCompleted EventKind = "TeamReasoningCompleted"
	EventRunError               EventKind = "RunError"
	EventTeamRunError           EventKind = "TeamRunError"
	EventTeamRunCancelled       EventKind = "TeamRunCancelled"
	EventUpdatingMemory         EventKind = "UpdatingMemory"
	EventTeamMemoryStarted      EventKind = "TeamMemoryUpdateStarted"
	EventTeamMemoryCompleted    EventKind = "TeamMemoryUpdateCompleted"
	EventRunCompleted           EventKind = "RunCompleted"
	EventTeamRunCompleted       EventKind = "TeamRunCompleted"
)

// Chunk is one decoded unit of a streamed run response. The concrete type
// determines how the reducer applies it; Kind reports the original wire tag.
type Chunk interface {
	Kind() EventKind
}

// StartedChunk opens a run and names the session it belongs to.
type StartedChunk struct {
	Event     EventKind
	SessionID string
	CreatedAt int64
}

// ToolCallChunk reports a tool call starting or completing.
type ToolCallChunk struct {
	Event EventKind
	Tools []ToolCall
}

// ContentChunk carries an incremental slice of the response. Exactly one of
// Text (with HasText), Raw, or a transcript-only ResponseAudio is the payload;
// tool calls, reasoning, references, and attachments ride along.
type ContentChunk struct {
	Event          EventKind
	Text           string
	HasText        bool
	Raw            any
	Tools          []ToolCall
	ReasoningSteps []ReasoningStep
	References     []ReferenceGroup
	Images         []Media
	Videos         []Media
	Audio          []Media
	ResponseAudio  *ResponseAudio
	CreatedAt      int64
}

// ReasoningStepChunk appends reasoning steps to the trailing message.
type ReasoningStepChunk struct {
	Event EventKind
	Steps []ReasoningStep
}

// ReasoningCompletedChunk replaces accumulated reasoning with the final list.
type ReasoningCompletedChunk struct {
	Event    EventKind
	Steps    []ReasoningStep
	HasSteps bool
}

// ErrorChunk terminates a run with an error or cancellation.
type ErrorChunk struct {
	Event   EventKind
	Message string
}

// CompletedChunk terminates a run successfully and carries the authoritative
// final state of the message.
type CompletedChunk struct {
	Event          EventKind
	Text           string
	HasText        bool
	Raw            any
	Tools          []ToolCall
	Images         []Media
	Videos         []Media
	ResponseAudio  *ResponseAudio
	ReasoningSteps []ReasoningStep
	HasReasoning   bool
	References     []ReferenceGroup
	HasReferences  bool
	Table          *ResultTable
	CreatedAt      int64
}

// MemoryChunk reports backend memory maintenance. The reducer ignores it.
type MemoryChunk struct {
	Event EventKind
}

func (c StartedChunk) Kind() EventKind            { return c.Event }
func (c ToolCallChunk) Kind() EventKind           { return c.Event }
func (c ContentChunk) Kind() EventKind            { return c.Event }
func (c ReasoningStepChunk) Kind() EventKind      { return c.Event }
func (c ReasoningCompletedChunk) Kind() EventKind { return c.Event }
func (c ErrorChunk) Kind() EventKind              { return c.Event }
func (c CompletedChunk) Kind() EventKind          { return c.Event }
func (c MemoryChunk) Kind() EventKind             { return c.Event }

// wireChunk mirrors the loose upstream payload: one shape, many optional
// fields, gated by the event tag. DecodeChunk narrows it to a Chunk variant.
type wireChunk struct {
	Event         EventKind       `json:"event"`
	SessionID     string          `json:"session_id,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	Tool          *ToolCall       `json:"tool,omitempty"`
	Tools         []ToolCall      `json:"tools,omitempty"`
	ExtraData     *ExtraData      `json:"extra_data,omitempty"`
	Images        []Media         `json:"images,omitempty"`
	Videos        []Media         `json:"videos,omitempty"`
	Audio         []Media         `json:"audio,omitempty"`
	ResponseAudio *ResponseAudio  `json:"response_audio,omitempty"`
	CreatedAt     int64           `json:"created_at,omitempty"`
}

// toolCalls flattens the new single-tool field and the legacy tools array,
// preserving arrival order.
func (w *wireChunk) toolCalls() []ToolCall {
	var out []ToolCall
	if w.Tool != nil {
		out = append(out, *w.Tool)
	}
	out = append(out, w.Tools...)
	return out
}

// content splits the raw content field into its three wire forms:
// a text delta, a structured (non-text) value, or nothing.
func (w *wireChunk) content() (text string, hasText bool, raw any, err error) {
	if len(w.Content) == 0 || bytes.Equal(w.Content, []byte("null")) {
		return "", false, nil, nil
	}
	if w.Content[0] == '"' {
		if err := json.Unmarshal(w.Content, &text); err != nil {
			return "", false, nil, fmt.Errorf("decoding content string: %w", err)
		}
		return text, true, nil, nil
	}
	if err := json.Unmarshal(w.Content, &raw); err != nil {
		return "", false, nil, fmt.Errorf("decoding content value: %w", err)
	}
	return "", false, raw, nil
}

// DecodeChunk parses one wire chunk into its typed variant.
// Unknown event kinds are an error: the transport contract enumerates the
// kinds, so anything else indicates a protocol mismatch.
func DecodeChunk(data []byte) (Chunk, error) {
	var w wireChunk
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding chunk: %w", err)
	}
	if w.Event == "" {
		return nil, fmt.Errorf("chunk missing event tag")
	}

	switch w.Event {
	case EventRunStarted, EventTeamRunStarted, EventReasoningStarted, EventTeamReasoningStarted:
		return StartedChunk{Event: w.Event, SessionID: w.SessionID, CreatedAt: w.CreatedAt}, nil

	case EventToolCallStarted, EventTeamToolCallStarted, EventToolCallCompleted, EventTeamToolCallCompleted:
		return ToolCallChunk{Event: w.Event, Tools: w.toolCalls()}, nil

	case EventRunContent, EventTeamRunContent:
		text, hasText, raw, err := w.content()
		if err != nil {
			return nil, err
		}
		c := ContentChunk{
			Event:         w.Event,
			Text:          text,
			HasText:       hasText,
			Raw:           raw,
			Tools:         w.toolCalls(),
			Images:        w.Images,
			Videos:        w.Videos,
			Audio:         w.Audio,
			ResponseAudio: w.ResponseAudio,
			CreatedAt:     w.CreatedAt,
		}
		if w.ExtraData != nil {
			c.ReasoningSteps = w.ExtraData.ReasoningSteps
			c.References = w.ExtraData.References
		}
		return c, nil

	case EventReasoningStep, EventTeamReasoningStep:
		c := ReasoningStepChunk{Event: w.Event}
		if w.ExtraData != nil {
			c.Steps = w.ExtraData.ReasoningSteps
		}
		return c, nil

	case EventReasoningCompleted, EventTeamReasoningCompleted:
		c := ReasoningCompletedChunk{Event: w.Event}
		if w.ExtraData != nil && w.ExtraData.ReasoningSteps != nil {
			c.Steps = w.ExtraData.ReasoningSteps
			c.HasSteps = true
		}
		return c, nil

	case EventRunError, EventTeamRunError, EventTeamRunCancelled:
		text, _, _, err := w.content()
		if err != nil {
			return nil, err
		}
		return ErrorChunk{Event: w.Event, Message: text}, nil

	case EventUpdatingMemory, EventTeamMemoryStarted, EventTeamMemoryCompleted:
		return MemoryChunk{Event: w.Event}, nil

	case EventRunCompleted, EventTeamRunCompleted:
		text, hasText, raw, err := w.content()
		if err != nil {
			return nil, err
		}
		c := CompletedChunk{
			Event:         w.Event,
			Text:          text,
			HasText:       hasText,
			Raw:           raw,
			Tools:         w.toolCalls(),
			Images:        w.Images,
			Videos:        w.Videos,
			ResponseAudio: w.ResponseAudio,
			CreatedAt:     w.CreatedAt,
		}
		if w.ExtraData != nil {
			if w.ExtraData.ReasoningSteps != nil {
				c.ReasoningSteps = w.ExtraData.ReasoningSteps
				c.HasReasoning = true
			}
			if w.ExtraData.References != nil {
				c.References = w.ExtraData.References
				c.HasReferences = true
			}
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown chunk event %q", w.Event)
	}
}

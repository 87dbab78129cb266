// Package chat implements the client-side conversation engine: the message
// model, the streaming chunk reducer, the per-tab application state, and the
// orchestrator that drives one user exchange end to end.
package chat

import (
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

// Message roles.
const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

// ToolCall records one tool invocation reported by the backend. Updates for
// the same call arrive as separate chunks (started, completed) and are merged
// by identity key.
type ToolCall struct {
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	Content    string         `json:"content,omitempty"`
	Error      bool           `json:"tool_call_error,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	CreatedAt  int64          `json:"created_at,omitempty"`
}

// Key returns the merge identity for the tool call: the upstream id when
// present, otherwise a synthesized "{name}-{created_at}" key.
func (tc ToolCall) Key() string {
	if tc.ToolCallID != "" {
		return tc.ToolCallID
	}
	return fmt.Sprintf("%s-%d", tc.ToolName, tc.CreatedAt)
}

// ReasoningStep is one entry of a model's intermediate reasoning trace.
type ReasoningStep struct {
	Title      string  `json:"title,omitempty"`
	Action     string  `json:"action,omitempty"`
	Result     string  `json:"result,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ReferenceGroup is a set of retrieved documents attributed to one query.
type ReferenceGroup struct {
	Query      string           `json:"query,omitempty"`
	References []map[string]any `json:"references,omitempty"`
	Time       float64          `json:"time,omitempty"`
}

// Media is an image, video, or audio attachment reported by the backend.
type Media struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ResponseAudio carries synthesized speech for an agent response. The
// transcript accumulates across chunks once a transcript stream begins.
type ResponseAudio struct {
	Transcript string `json:"transcript,omitempty"`
	Content    string `json:"content,omitempty"`
}

// ResultTable is a titled grid produced by plan or predefined-query execution.
type ResultTable struct {
	Title   string           `json:"title,omitempty"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ExtraData is the structured bag attached to a message.
type ExtraData struct {
	ReasoningSteps []ReasoningStep  `json:"reasoning_steps,omitempty"`
	References     []ReferenceGroup `json:"references,omitempty"`
	Table          *ResultTable     `json:"table,omitempty"`
}

// Message is one entry of an in-memory conversation. During streaming only
// the trailing agent message of a sequence is mutated.
type Message struct {
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ToolCalls      []ToolCall     `json:"tool_calls,omitempty"`
	ExtraData      *ExtraData     `json:"extra_data,omitempty"`
	Images         []Media        `json:"images,omitempty"`
	Videos         []Media        `json:"videos,omitempty"`
	Audio          []Media        `json:"audio,omitempty"`
	ResponseAudio  *ResponseAudio `json:"response_audio,omitempty"`
	StreamingError bool           `json:"streaming_error,omitempty"`
	CreatedAt      int64          `json:"created_at"`
}

// SessionEntry is the browser-local handle for a conversation thread. It is
// distinct from the durable chat record but kept name-synchronized with it.
type SessionEntry struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	CreatedAt   int64  `json:"created_at"`
}

// CloneMessages returns a deep copy of a message sequence. The displayed
// sequence and cached snapshots must never share slices or maps, otherwise a
// background update would bleed into a view that has navigated away.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = cloneMessage(msgs[i])
	}
	return out
}

func cloneMessage(m Message) Message {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = cloneToolCall(tc)
		}
	}
	c.Images = cloneMedia(m.Images)
	c.Videos = cloneMedia(m.Videos)
	c.Audio = cloneMedia(m.Audio)
	if m.ResponseAudio != nil {
		ra := *m.ResponseAudio
		c.ResponseAudio = &ra
	}
	if m.ExtraData != nil {
		c.ExtraData = cloneExtraData(m.ExtraData)
	}
	return c
}

func cloneToolCall(tc ToolCall) ToolCall {
	c := tc
	c.ToolArgs = cloneAnyMap(tc.ToolArgs)
	c.Metrics = cloneAnyMap(tc.Metrics)
	return c
}

func cloneMedia(in []Media) []Media {
	if in == nil {
		return nil
	}
	out := make([]Media, len(in))
	copy(out, in)
	return out
}

func cloneExtraData(ed *ExtraData) *ExtraData {
	c := &ExtraData{}
	if ed.ReasoningSteps != nil {
		c.ReasoningSteps = make([]ReasoningStep, len(ed.ReasoningSteps))
		copy(c.ReasoningSteps, ed.ReasoningSteps)
	}
	if ed.References != nil {
		c.References = make([]ReferenceGroup, len(ed.References))
		for i, rg := range ed.References {
			cp := rg
			if rg.References != nil {
				cp.References = make([]map[string]any, len(rg.References))
				for j, doc := range rg.References {
					cp.References[j] = cloneAnyMap(doc)
				}
			}
			c.References[i] = cp
		}
	}
	if ed.Table != nil {
		t := &ResultTable{Title: ed.Table.Title}
		if ed.Table.Columns != nil {
			t.Columns = make([]string, len(ed.Table.Columns))
			copy(t.Columns, ed.Table.Columns)
		}
		if ed.Table.Rows != nil {
			t.Rows = make([]map[string]any, len(ed.Table.Rows))
			for i, row := range ed.Table.Rows {
				t.Rows[i] = cloneAnyMap(row)
			}
		}
		c.Table = t
	}
	return c
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

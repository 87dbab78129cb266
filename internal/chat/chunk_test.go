package chat_test

import (
	"testing"

	"github.com/fahadahaf/chat-ui/internal/chat"
)

func TestDecodeChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, c chat.Chunk)
	}{
		{
			name: "run started carries session id",
			data: `{"event":"RunStarted","session_id":"s-1","created_at":10}`,
			check: func(t *testing.T, c chat.Chunk) {
				s, ok := c.(chat.StartedChunk)
				if !ok {
					t.Fatalf("decoded %T, want StartedChunk", c)
				}
				if s.SessionID != "s-1" || s.CreatedAt != 10 {
					t.Errorf("started = %+v", s)
				}
			},
		},
		{
			name: "team variant maps to the same shape",
			data: `{"event":"TeamRunStarted","session_id":"s-2"}`,
			check: func(t *testing.T, c chat.Chunk) {
				if _, ok := c.(chat.StartedChunk); !ok {
					t.Fatalf("decoded %T, want StartedChunk", c)
				}
				if c.Kind() != chat.EventTeamRunStarted {
					t.Errorf("kind = %q", c.Kind())
				}
			},
		},
		{
			name: "text content",
			data: `{"event":"RunResponseContent","content":"Hello"}`,
			check: func(t *testing.T, c chat.Chunk) {
				cc, ok := c.(chat.ContentChunk)
				if !ok {
					t.Fatalf("decoded %T, want ContentChunk", c)
				}
				if !cc.HasText || cc.Text != "Hello" {
					t.Errorf("content = %+v", cc)
				}
			},
		},
		{
			name: "structured content",
			data: `{"event":"RunResponseContent","content":{"k":1}}`,
			check: func(t *testing.T, c chat.Chunk) {
				cc := c.(chat.ContentChunk)
				if cc.HasText || cc.Raw == nil {
					t.Errorf("content = %+v, want raw value without text", cc)
				}
			},
		},
		{
			name: "null content with audio transcript",
			data: `{"event":"RunResponseContent","content":null,"response_audio":{"transcript":"hi"}}`,
			check: func(t *testing.T, c chat.Chunk) {
				cc := c.(chat.ContentChunk)
				if cc.HasText || cc.Raw != nil {
					t.Errorf("content = %+v, want empty payload", cc)
				}
				if cc.ResponseAudio == nil || cc.ResponseAudio.Transcript != "hi" {
					t.Errorf("response_audio = %+v", cc.ResponseAudio)
				}
			},
		},
		{
			name: "single tool field and legacy tools array are flattened",
			data: `{"event":"ToolCallStarted","tool":{"tool_call_id":"a"},"tools":[{"tool_call_id":"b"}]}`,
			check: func(t *testing.T, c chat.Chunk) {
				tc := c.(chat.ToolCallChunk)
				if len(tc.Tools) != 2 || tc.Tools[0].ToolCallID != "a" || tc.Tools[1].ToolCallID != "b" {
					t.Errorf("tools = %+v", tc.Tools)
				}
			},
		},
		{
			name: "reasoning step",
			data: `{"event":"ReasoningStep","extra_data":{"reasoning_steps":[{"title":"t"}]}}`,
			check: func(t *testing.T, c chat.Chunk) {
				rs := c.(chat.ReasoningStepChunk)
				if len(rs.Steps) != 1 || rs.Steps[0].Title != "t" {
					t.Errorf("steps = %+v", rs.Steps)
				}
			},
		},
		{
			name: "error chunk carries message text",
			data: `{"event":"RunError","content":"boom"}`,
			check: func(t *testing.T, c chat.Chunk) {
				ec := c.(chat.ErrorChunk)
				if ec.Message != "boom" {
					t.Errorf("message = %q", ec.Message)
				}
			},
		},
		{
			name: "completed distinguishes absent from empty reasoning",
			data: `{"event":"RunCompleted","content":"done","extra_data":{"reasoning_steps":[]}}`,
			check: func(t *testing.T, c chat.Chunk) {
				dc := c.(chat.CompletedChunk)
				if !dc.HasText || dc.Text != "done" {
					t.Errorf("completed = %+v", dc)
				}
				if !dc.HasReasoning || len(dc.ReasoningSteps) != 0 {
					t.Errorf("reasoning presence = %v steps = %v", dc.HasReasoning, dc.ReasoningSteps)
				}
			},
		},
		{
			name: "memory update is a no-op chunk",
			data: `{"event":"UpdatingMemory"}`,
			check: func(t *testing.T, c chat.Chunk) {
				if _, ok := c.(chat.MemoryChunk); !ok {
					t.Fatalf("decoded %T, want MemoryChunk", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := chat.DecodeChunk([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeChunk: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestDecodeChunk_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"missing event", `{"content":"x"}`},
		{"unknown event", `{"event":"SomethingNew"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := chat.DecodeChunk([]byte(tt.data)); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}

func TestToolCallKey(t *testing.T) {
	t.Parallel()

	withID := chat.ToolCall{ToolCallID: "abc", ToolName: "f", CreatedAt: 5}
	if got := withID.Key(); got != "abc" {
		t.Errorf("key = %q, want upstream id", got)
	}

	noID := chat.ToolCall{ToolName: "f", CreatedAt: 5}
	if got := noID.Key(); got != "f-5" {
		t.Errorf("key = %q, want synthesized f-5", got)
	}
}

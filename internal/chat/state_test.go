package chat_test

import (
	"testing"

	"github.com/fahadahaf/chat-ui/internal/chat"
)

func TestState_CacheSnapshotsDoNotAlias(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.SetCachedMessages("a", []chat.Message{
		{Role: chat.RoleAgent, Content: "original", ToolCalls: []chat.ToolCall{{ToolCallID: "x"}}},
	})

	snap, ok := st.CachedMessages("a")
	if !ok {
		t.Fatal("cache entry missing")
	}
	snap[0].Content = "mutated"
	snap[0].ToolCalls[0].Content = "mutated"

	again, _ := st.CachedMessages("a")
	if again[0].Content != "original" {
		t.Errorf("cache content = %q, mutation of a snapshot leaked in", again[0].Content)
	}
	if again[0].ToolCalls[0].Content != "" {
		t.Errorf("cache tool call mutated through snapshot: %+v", again[0].ToolCalls[0])
	}
}

func TestState_SetMessagesIfBound(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.Bind("a")

	if ok := st.SetMessagesIfBound("b", agentSeq("for b")); ok {
		t.Error("write for unbound session was accepted")
	}
	if got := st.Messages(); len(got) != 0 {
		t.Errorf("display = %d messages, want untouched empty view", len(got))
	}

	if ok := st.SetMessagesIfBound("a", agentSeq("for a")); !ok {
		t.Error("write for bound session was rejected")
	}
	if got := st.Messages(); len(got) != 2 || got[1].Content != "for a" {
		t.Errorf("display = %+v", got)
	}
}

func TestState_SwitchToRehydratesFromCache(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.SetCachedMessages("a", agentSeq("answer for a"))

	st.SwitchTo("a")
	if got := st.Messages(); len(got) != 2 || got[1].Content != "answer for a" {
		t.Fatalf("display after switch = %+v", got)
	}

	st.SwitchTo("never-seen")
	if got := st.Messages(); len(got) != 0 {
		t.Errorf("display for unknown session = %d messages, want empty", len(got))
	}
}

func TestState_UpsertSessionDeduplicatesAtHead(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.UpsertSession(chat.SessionEntry{SessionID: "a", SessionName: "first"})
	st.UpsertSession(chat.SessionEntry{SessionID: "b", SessionName: "second"})
	st.UpsertSession(chat.SessionEntry{SessionID: "a", SessionName: "renamed"})

	sessions := st.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	if sessions[0].SessionID != "a" || sessions[0].SessionName != "renamed" {
		t.Errorf("head = %+v, want refreshed entry for a", sessions[0])
	}
	if sessions[1].SessionID != "b" {
		t.Errorf("tail = %+v", sessions[1])
	}
}

func TestState_RemoveSessionClearsDerivedState(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.UpsertSession(chat.SessionEntry{SessionID: "a"})
	st.SetCachedMessages("a", agentSeq("x"))
	st.SetInput("a", "draft")
	st.SwitchTo("a")

	st.RemoveSession("a")

	if len(st.Sessions()) != 0 {
		t.Error("session entry survived removal")
	}
	if _, ok := st.CachedMessages("a"); ok {
		t.Error("cache entry survived removal")
	}
	if st.Input("a") != "" {
		t.Error("input draft survived removal")
	}
	if st.Bound() != "" {
		t.Error("removed session still bound")
	}
}

func TestState_StreamingRegistry(t *testing.T) {
	t.Parallel()

	st := chat.NewState()

	st.AddStreaming("a")
	st.AddStreaming("b")
	if !st.IsStreaming("a") || !st.IsStreaming("b") {
		t.Error("registered sessions not reported as streaming")
	}
	if st.IsStreaming("c") {
		t.Error("unregistered session reported as streaming")
	}

	st.RemoveStreaming("a")
	if st.IsStreaming("a") {
		t.Error("removed session still reported as streaming")
	}
	if !st.IsStreaming("b") {
		t.Error("removal of a leaked into b")
	}
}

func TestState_InputDrafts(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.SetInput("a", "unsent for a")
	st.SetInput("b", "unsent for b")

	if got := st.Input("a"); got != "unsent for a" {
		t.Errorf("input a = %q", got)
	}

	st.SetInput("a", "")
	if got := st.Input("a"); got != "" {
		t.Errorf("cleared input a = %q", got)
	}
	if got := st.Input("b"); got != "unsent for b" {
		t.Errorf("input b = %q, clearing a touched b", got)
	}
}

func TestState_RenameSession(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.UpsertSession(chat.SessionEntry{SessionID: "a", SessionName: "old"})

	st.RenameSession("a", "new")
	if got := st.Sessions()[0].SessionName; got != "new" {
		t.Errorf("name = %q, want new", got)
	}

	// Renaming an unknown session is a no-op.
	st.RenameSession("missing", "whatever")
	if len(st.Sessions()) != 1 {
		t.Error("rename of unknown session altered the list")
	}
}

package chat_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptRunner replays a fixed chunk script, optionally ending in an error.
type scriptRunner struct {
	chunks []chat.Chunk
	err    error
}

func (r scriptRunner) Run(_ context.Context, _ chat.RunRequest) iter.Seq2[chat.Chunk, error] {
	return func(yield func(chat.Chunk, error) bool) {
		for _, c := range r.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if r.err != nil {
			yield(nil, r.err)
		}
	}
}

// memStore records persisted chats and messages in memory.
type memStore struct {
	mu        sync.Mutex
	createErr error
	appendErr error
	created   []chat.SessionEntry
	appended  map[string][]chat.Message
}

func newMemStore() *memStore {
	return &memStore{appended: make(map[string][]chat.Message)}
}

func (s *memStore) CreateChat(_ context.Context, _, _, name string) (chat.SessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return chat.SessionEntry{}, s.createErr
	}
	entry := chat.SessionEntry{
		SessionID:   fmt.Sprintf("durable-%d", len(s.created)+1),
		SessionName: name,
		CreatedAt:   42,
	}
	s.created = append(s.created, entry)
	return entry, nil
}

func (s *memStore) AppendMessage(_ context.Context, sessionID string, msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended[sessionID] = append(s.appended[sessionID], msg)
	return nil
}

func (s *memStore) messages(sessionID string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.appended[sessionID]...)
}

// fnPlanner routes the Planner interface to closures.
type fnPlanner struct {
	plan func(context.Context, chat.PlanRequest) (chat.PlanResult, error)
	exec func(context.Context, []chat.PlanStep) (*chat.ResultTable, error)
}

func (p fnPlanner) Plan(ctx context.Context, req chat.PlanRequest) (chat.PlanResult, error) {
	return p.plan(ctx, req)
}

func (p fnPlanner) Execute(ctx context.Context, steps []chat.PlanStep) (*chat.ResultTable, error) {
	return p.exec(ctx, steps)
}

func testConfig(st *chat.State) chat.Config {
	ids := 0
	return chat.Config{
		State:  st,
		Logger: log.NewNop(),
		UserID: "user-1",
		Now:    func() int64 { return 42 },
		NewID: func() string {
			ids++
			return fmt.Sprintf("local-%d", ids)
		},
	}
}

func TestOrchestrator_PlanPathProducesTable(t *testing.T) {
	t.Parallel()

	table := &chat.ResultTable{
		Title:   "T",
		Columns: []string{"a", "b"},
		Rows:    []map[string]any{{"a": 1, "b": 2}},
	}

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Store = newMemStore()
	cfg.Planner = fnPlanner{
		plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
			return chat.PlanResult{Table: table}, nil
		},
	}
	o, err := chat.NewOrchestrator(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := o.Send(context.Background(), chat.ProviderOllama, "show me the numbers"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	if len(msgs) != 2 {
		t.Fatalf("displayed messages = %d, want user + agent", len(msgs))
	}
	last := msgs[1]
	if last.StreamingError {
		t.Error("successful plan flagged as streaming error")
	}
	if last.ExtraData == nil || !reflect.DeepEqual(last.ExtraData.Table, table) {
		t.Errorf("table = %+v, want deep-equal to planner result", last.ExtraData)
	}
	if st.IsStreaming(st.Bound()) {
		t.Error("streaming mark not cleared after completion")
	}
}

func TestOrchestrator_PlanValidationIsNotAnError(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Planner = fnPlanner{
		plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
			return chat.PlanResult{Steps: []chat.PlanStep{
				{Step: 0, Name: "missing_parameters", Message: "A start date is required."},
			}}, nil
		},
	}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderAmazon, "sales since when?"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "A start date is required." {
		t.Errorf("content = %q, want the validation message", last.Content)
	}
	if last.StreamingError {
		t.Error("validation rejection flagged as streaming error")
	}
	if st.ErrorText() != "" {
		t.Errorf("error text = %q, want none", st.ErrorText())
	}
}

func TestOrchestrator_PlanStepsAreExecuted(t *testing.T) {
	t.Parallel()

	steps := []chat.PlanStep{{Step: 1, Name: "top_products", Parameters: map[string]any{"n": 5}}}
	table := &chat.ResultTable{Columns: []string{"product"}, Rows: []map[string]any{{"product": "x"}}}

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Planner = fnPlanner{
		plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
			return chat.PlanResult{Steps: steps}, nil
		},
		exec: func(_ context.Context, got []chat.PlanStep) (*chat.ResultTable, error) {
			if !reflect.DeepEqual(got, steps) {
				t.Errorf("executed steps = %+v, want the planned steps", got)
			}
			return table, nil
		},
	}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderOllama, "top products"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	last := msgs[len(msgs)-1]
	if last.ExtraData == nil || !reflect.DeepEqual(last.ExtraData.Table, table) {
		t.Errorf("table = %+v", last.ExtraData)
	}
}

func TestOrchestrator_StreamPath(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Runner = scriptRunner{chunks: []chat.Chunk{
		chat.StartedChunk{Event: chat.EventRunStarted, SessionID: "srv-9"},
		chat.ContentChunk{Event: chat.EventRunContent, Text: "Hel", HasText: true},
		chat.ContentChunk{Event: chat.EventRunContent, Text: "Hello", HasText: true},
		chat.CompletedChunk{Event: chat.EventRunCompleted, Text: "Hello!", HasText: true, CreatedAt: 77},
	}}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderAgent, "hi"); err != nil {
		t.Fatal(err)
	}

	if got := st.Bound(); got != "srv-9" {
		t.Errorf("bound session = %q, want the id announced by the run", got)
	}
	sessions := st.Sessions()
	if len(sessions) != 1 || sessions[0].SessionID != "srv-9" {
		t.Errorf("sessions = %+v, want the rebound entry only", sessions)
	}

	msgs := st.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "Hello!" || last.CreatedAt != 77 {
		t.Errorf("final message = %+v", last)
	}
	if st.IsStreaming("srv-9") {
		t.Error("streaming mark not cleared")
	}
}

func TestOrchestrator_StreamErrorFlagsTrailing(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Runner = scriptRunner{chunks: []chat.Chunk{
		chat.ContentChunk{Event: chat.EventRunContent, Text: "partial", HasText: true},
		chat.ErrorChunk{Event: chat.EventRunError, Message: "model fell over"},
	}}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderAgent, "hi"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	last := msgs[len(msgs)-1]
	if !last.StreamingError || last.Content != "partial" {
		t.Errorf("trailing = %+v, want errored message with partial content kept", last)
	}
	if st.ErrorText() != "model fell over" {
		t.Errorf("error text = %q", st.ErrorText())
	}
	if st.IsStreaming(st.Bound()) {
		t.Error("streaming mark not cleared on error")
	}
	if got := st.Sessions(); len(got) != 0 {
		t.Errorf("sessions = %+v, want the provisional entry retracted", got)
	}
}

func TestOrchestrator_TransportErrorFlagsTrailing(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Runner = scriptRunner{err: errors.New("connection reset")}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderAgent, "hi"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	if !msgs[len(msgs)-1].StreamingError {
		t.Error("trailing message not flagged after transport failure")
	}
	if st.ErrorText() == "" {
		t.Error("transport failure surfaced no error text")
	}
	if got := st.Sessions(); len(got) != 0 {
		t.Errorf("sessions = %+v, want the provisional entry retracted", got)
	}
}

func TestOrchestrator_StaleErrorPairEvicted(t *testing.T) {
	t.Parallel()

	st := chat.NewState()
	st.Bind("s-1")
	st.SetMessages([]chat.Message{
		{Role: chat.RoleUser, Content: "old question"},
		{Role: chat.RoleAgent, StreamingError: true},
	})

	cfg := testConfig(st)
	cfg.Planner = fnPlanner{
		plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
			return chat.PlanResult{Table: &chat.ResultTable{Columns: []string{"a"}}}, nil
		},
	}
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderOllama, "retry"); err != nil {
		t.Fatal(err)
	}

	msgs := st.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want failed pair evicted and new pair appended", len(msgs))
	}
	if msgs[0].Content != "retry" {
		t.Errorf("first message = %q, want the new user prompt", msgs[0].Content)
	}
}

func TestOrchestrator_PersistenceFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	t.Run("chat creation failure keeps the exchange in memory", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.createErr = errors.New("limit reached")

		st := chat.NewState()
		cfg := testConfig(st)
		cfg.Store = store
		cfg.Planner = fnPlanner{
			plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
				return chat.PlanResult{Table: &chat.ResultTable{Columns: []string{"a"}}}, nil
			},
		}
		o, _ := chat.NewOrchestrator(cfg)

		if err := o.Send(context.Background(), chat.ProviderOllama, "hello"); err != nil {
			t.Fatal(err)
		}

		msgs := st.Messages()
		if len(msgs) != 2 || msgs[1].ExtraData == nil {
			t.Fatalf("in-memory exchange incomplete: %+v", msgs)
		}
		if st.Bound() != "local-1" {
			t.Errorf("bound = %q, want the local fallback id", st.Bound())
		}
		if len(store.messages("local-1")) != 0 {
			t.Error("messages persisted against a session that was never created")
		}
	})

	t.Run("append failure does not abort the exchange", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		store.appendErr = errors.New("disk full")

		st := chat.NewState()
		cfg := testConfig(st)
		cfg.Store = store
		cfg.Planner = fnPlanner{
			plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
				return chat.PlanResult{Table: &chat.ResultTable{Columns: []string{"a"}}}, nil
			},
		}
		o, _ := chat.NewOrchestrator(cfg)

		if err := o.Send(context.Background(), chat.ProviderOllama, "hello"); err != nil {
			t.Fatal(err)
		}
		if msgs := st.Messages(); len(msgs) != 2 || msgs[1].StreamingError {
			t.Errorf("exchange damaged by persistence failure: %+v", msgs)
		}
	})
}

func TestOrchestrator_SessionIsolationUnderConcurrentExecution(t *testing.T) {
	t.Parallel()

	table := &chat.ResultTable{Title: "T", Columns: []string{"a"}, Rows: []map[string]any{{"a": 1}}}
	gate := make(chan struct{})

	st := chat.NewState()
	st.UpsertSession(chat.SessionEntry{SessionID: "A", SessionName: "first"})
	st.SwitchTo("A")

	cfg := testConfig(st)
	cfg.Planner = fnPlanner{
		exec: func(_ context.Context, _ []chat.PlanStep) (*chat.ResultTable, error) {
			<-gate
			return table, nil
		},
	}
	o, _ := chat.NewOrchestrator(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.ExecuteQuery(context.Background(), chat.ProviderAmazon, "top_products", map[string]any{"n": 3})
	}()

	// Wait until the exchange has registered, then navigate away to B.
	for !st.IsStreaming("A") {
		time.Sleep(time.Millisecond)
	}
	st.SwitchTo("B")
	displayedBefore := st.Messages()

	close(gate)
	<-done

	// The view bound to B must be untouched.
	if got := st.Messages(); !reflect.DeepEqual(got, displayedBefore) {
		t.Errorf("display for B changed while A's result arrived:\n%+v\n%+v", displayedBefore, got)
	}

	// A's cache holds the completed result.
	cached, ok := st.CachedMessages("A")
	if !ok || len(cached) == 0 {
		t.Fatal("no cached messages for A")
	}
	last := cached[len(cached)-1]
	if last.ExtraData == nil || !reflect.DeepEqual(last.ExtraData.Table, table) {
		t.Errorf("cached trailing message for A = %+v, want the completed table", last)
	}

	// Navigating back to A surfaces the result.
	st.SwitchTo("A")
	msgs := st.Messages()
	if msgs[len(msgs)-1].ExtraData == nil || !reflect.DeepEqual(msgs[len(msgs)-1].ExtraData.Table, table) {
		t.Error("switching back to A did not rehydrate the completed result")
	}
	if st.IsStreaming("A") {
		t.Error("streaming mark for A not cleared")
	}
}

func TestOrchestrator_PersistsUserAndAgentMessages(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	st := chat.NewState()
	cfg := testConfig(st)
	cfg.Store = store
	cfg.Planner = fnPlanner{
		plan: func(_ context.Context, _ chat.PlanRequest) (chat.PlanResult, error) {
			return chat.PlanResult{Table: &chat.ResultTable{Columns: []string{"a"}}}, nil
		},
	}
	var created []chat.SessionEntry
	cfg.OnSessionCreated = func(e chat.SessionEntry) { created = append(created, e) }
	o, _ := chat.NewOrchestrator(cfg)

	if err := o.Send(context.Background(), chat.ProviderOllama, "persist me"); err != nil {
		t.Fatal(err)
	}

	if len(created) != 1 {
		t.Fatalf("session-created notifications = %d, want 1", len(created))
	}
	persisted := store.messages(created[0].SessionID)
	if len(persisted) != 2 {
		t.Fatalf("persisted messages = %d, want user + agent", len(persisted))
	}
	if persisted[0].Role != chat.RoleUser || persisted[0].Content != "persist me" {
		t.Errorf("persisted user message = %+v", persisted[0])
	}
	if persisted[1].Role != chat.RoleAgent {
		t.Errorf("persisted agent message = %+v", persisted[1])
	}
}

package chat

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fahadahaf/chat-ui/internal/log"
)

// Providers a conversation can target. Prompts for the plan-backed providers
// go through the retrieval planner; anything else streams through the runner.
const (
	ProviderOllama = "ollama"
	ProviderAmazon = "amazon"
	ProviderAgent  = "agent"
)

// Plan step names the retrieval service uses to reject a request instead of
// answering it. A plan whose first step carries one of these is a
// user-actionable validation message, not a failure.
const (
	stepMissingParameters = "missing_parameters"
	stepValidationError   = "validation_error"
)

const sessionNameMax = 30

// Store is the durable chat persistence boundary consumed by the
// orchestrator. Writes are best effort: a failing Store never aborts an
// exchange.
type Store interface {
	// CreateChat opens a durable session and returns its id. It fails when
	// the user is at their concurrent-chat limit.
	CreateChat(ctx context.Context, userID, provider, name string) (SessionEntry, error)
	// AppendMessage persists one message to a session.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
}

// RunRequest describes one streamed exchange with the agent runtime.
type RunRequest struct {
	Message   string
	SessionID string
	UserID    string
}

// Runner is the live-streaming model boundary. The returned sequence yields
// decoded chunks in arrival order; a non-nil error terminates the stream.
type Runner interface {
	Run(ctx context.Context, req RunRequest) iter.Seq2[Chunk, error]
}

// PlanStep is one entry of a retrieval plan. Name is the query or pseudo-step
// the planner selected; Message carries user-facing text on rejection steps.
type PlanStep struct {
	Step       int            `json:"step,omitempty"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// PlanRequest carries a free-text prompt to the retrieval planner.
type PlanRequest struct {
	Text     string
	History  []string
	Provider string
}

// PlanResult is either an immediate results table or a plan to execute.
type PlanResult struct {
	Steps []PlanStep
	Table *ResultTable
}

// Planner is the retrieval boundary: plan generation for free-text prompts
// and literal execution for predefined queries.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResult, error)
	Execute(ctx context.Context, steps []PlanStep) (*ResultTable, error)
}

// Config wires an Orchestrator. State and Logger are required; a nil Store
// disables persistence, a nil Planner disables the plan-backed providers, a
// nil Runner disables live streaming.
type Config struct {
	State   *State
	Store   Store
	Runner  Runner
	Planner Planner
	Logger  log.Logger
	UserID  string

	// OnSessionCreated fires when an exchange binds a brand-new durable
	// session, so a session list can insert it without a reload.
	OnSessionCreated func(SessionEntry)
	// OnUpdate fires after every state mutation of an exchange with the
	// session id and the current sequence snapshot.
	OnUpdate func(sessionID string, msgs []Message)
	// OnDone fires when an exchange finishes, success or not, after the
	// streaming mark is cleared. The UI returns focus to the input here.
	OnDone func(sessionID string)

	// Now and NewID default to the wall clock and random UUIDs. Tests
	// inject deterministic replacements.
	Now   func() int64
	NewID func() string
}

// Orchestrator drives one user exchange end to end: placeholder messages,
// durable session resolution, dispatch, reduction, cache and registry
// reconciliation, and best-effort persistence.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator validates cfg and returns an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("chat: orchestrator requires state")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().Unix() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &Orchestrator{cfg: cfg}, nil
}

// exchange is the per-call context of one in-flight exchange: the session id
// captured at launch and the working message sequence. All cache writes go
// through the captured id; the display is only mirrored while the view is
// still bound to it.
type exchange struct {
	sessionID string
	durable   bool
	fresh     bool
	msgs      []Message
}

// Send runs one free-text exchange. Prompts for the plan-backed providers go
// through the planner as a single request; everything else streams from the
// runner chunk by chunk.
func (o *Orchestrator) Send(ctx context.Context, provider, text string) error {
	ex := o.begin(ctx, provider, text)
	defer o.finish(ex)

	o.persist(ctx, ex, userMessage(text, o.cfg.Now()))

	switch provider {
	case ProviderOllama, ProviderAmazon:
		o.runPlan(ctx, ex, provider, text)
	default:
		o.runStream(ctx, ex, text)
	}

	o.persistTrailing(ctx, ex)
	return nil
}

// ExecuteQuery runs one predefined query as a one-shot exchange. The user
// message is a synthesized descriptor of the query so the transcript records
// what was asked.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, provider, name string, params map[string]any) error {
	descriptor := queryDescriptor(name, params)
	ex := o.begin(ctx, provider, descriptor)
	defer o.finish(ex)

	o.persist(ctx, ex, userMessage(descriptor, o.cfg.Now()))

	if o.cfg.Planner == nil {
		o.fail(ex, "no query execution backend is configured")
		o.persistTrailing(ctx, ex)
		return nil
	}

	table, err := o.cfg.Planner.Execute(ctx, []PlanStep{{Step: 1, Name: name, Parameters: params}})
	if err != nil {
		o.cfg.Logger.Warn("predefined query failed", "query", name, "error", err)
		o.fail(ex, fmt.Sprintf("Query %q failed: %v", name, err))
		o.persistTrailing(ctx, ex)
		return nil
	}
	if table != nil && table.Title == "" {
		table.Title = "Query Results"
	}

	o.complete(ex, CompletedChunk{Event: EventRunCompleted, Table: table, CreatedAt: o.cfg.Now()})
	o.persistTrailing(ctx, ex)
	return nil
}

// begin applies the shared exchange prologue: evict a stale failed pair,
// append the user and agent placeholders, resolve the durable session, and
// register the exchange as streaming.
func (o *Orchestrator) begin(ctx context.Context, provider, text string) *exchange {
	st := o.cfg.State
	st.SetErrorText("")

	msgs := TrimFailedExchange(st.Messages())
	now := o.cfg.Now()
	msgs = append(msgs, userMessage(text, now), Message{Role: RoleAgent, CreatedAt: now})

	ex := &exchange{msgs: msgs}

	ex.sessionID = st.Bound()
	if ex.sessionID == "" {
		ex.sessionID, ex.durable = o.resolveSession(ctx, provider, text)
		ex.fresh = true
		st.Bind(ex.sessionID)
	} else {
		ex.durable = o.cfg.Store != nil
	}

	st.AddStreaming(ex.sessionID)
	st.SetInput(ex.sessionID, "")
	o.sync(ex)
	return ex
}

// resolveSession creates a durable chat for a fresh conversation. When
// creation fails the exchange continues against a local session id only; the
// conversation stays correct in memory and simply is not persisted.
func (o *Orchestrator) resolveSession(ctx context.Context, provider, text string) (string, bool) {
	name := sessionName(text)
	entry := SessionEntry{SessionID: o.cfg.NewID(), SessionName: name, CreatedAt: o.cfg.Now()}
	durable := false

	if o.cfg.Store != nil {
		created, err := o.cfg.Store.CreateChat(ctx, o.cfg.UserID, provider, name)
		if err != nil {
			o.cfg.Logger.Warn("chat creation failed, continuing in memory", "error", err)
		} else {
			entry = created
			durable = true
		}
	}

	o.cfg.State.UpsertSession(entry)
	if o.cfg.OnSessionCreated != nil {
		o.cfg.OnSessionCreated(entry)
	}
	return entry.SessionID, durable
}

// runStream drives the live path: one chunk at a time through the reducer,
// mirroring each step into the cache and, while still bound, the display.
func (o *Orchestrator) runStream(ctx context.Context, ex *exchange, text string) {
	if o.cfg.Runner == nil {
		o.fail(ex, "no streaming backend is configured")
		return
	}

	var r Reducer
	for chunk, err := range o.cfg.Runner.Run(ctx, RunRequest{Message: text, SessionID: ex.sessionID, UserID: o.cfg.UserID}) {
		if err != nil {
			o.cfg.Logger.Warn("stream read failed", "session_id", ex.sessionID, "error", err)
			o.fail(ex, errTextRunFailed)
			return
		}

		var out Outcome
		ex.msgs, out = r.Apply(ex.msgs, chunk)

		if out.SessionID != "" && out.SessionID != ex.sessionID {
			o.rebindSession(ex, out.SessionID)
		}
		o.sync(ex)

		if out.Failed {
			o.cfg.State.SetErrorText(out.ErrorText)
			if ex.fresh {
				o.cfg.State.DropSessionEntry(ex.sessionID)
			}
			return
		}
		if out.Done {
			return
		}
	}
}

// rebindSession moves an exchange onto the session id announced by the run
// start chunk. The provisional local id is replaced everywhere it was
// registered.
func (o *Orchestrator) rebindSession(ex *exchange, sessionID string) {
	st := o.cfg.State
	old := ex.sessionID

	var entry SessionEntry
	for _, e := range st.Sessions() {
		if e.SessionID == old {
			entry = e
			break
		}
	}
	entry.SessionID = sessionID
	if entry.CreatedAt == 0 {
		entry.CreatedAt = o.cfg.Now()
	}

	st.RemoveStreaming(old)
	st.RemoveSession(old)
	st.AddStreaming(sessionID)
	st.UpsertSession(entry)
	st.Bind(sessionID)
	ex.sessionID = sessionID
}

// runPlan drives the one-shot path for the plan-backed providers: a single
// plan request, optionally a single execute request, reduced into one
// terminal update.
func (o *Orchestrator) runPlan(ctx context.Context, ex *exchange, provider, text string) {
	if o.cfg.Planner == nil {
		o.fail(ex, "no retrieval backend is configured")
		return
	}

	req := PlanRequest{Text: text, History: lastUserInputs(ex.msgs, 2), Provider: provider}
	result, err := o.cfg.Planner.Plan(ctx, req)
	if err != nil {
		o.cfg.Logger.Warn("plan request failed", "session_id", ex.sessionID, "error", err)
		o.fail(ex, errTextRunFailed)
		return
	}

	// A rejected plan is a normal completed message, not a streaming error.
	if msg, ok := validationMessage(result.Steps); ok {
		o.complete(ex, CompletedChunk{Event: EventRunCompleted, Text: msg, HasText: true, CreatedAt: o.cfg.Now()})
		return
	}

	table := result.Table
	if table == nil && len(result.Steps) > 0 {
		table, err = o.cfg.Planner.Execute(ctx, result.Steps)
		if err != nil {
			o.cfg.Logger.Warn("plan execution failed", "session_id", ex.sessionID, "error", err)
			o.fail(ex, errTextRunFailed)
			return
		}
	}

	done := CompletedChunk{Event: EventRunCompleted, CreatedAt: o.cfg.Now()}
	if table != nil {
		done.Table = table
	} else {
		done.Text, done.HasText = "No results were produced for this request.", true
	}
	o.complete(ex, done)
}

// validationMessage reports whether the plan is a validation rejection and
// returns its user-facing message.
func validationMessage(steps []PlanStep) (string, bool) {
	if len(steps) == 0 {
		return "", false
	}
	first := steps[0]
	if first.Name != stepMissingParameters && first.Name != stepValidationError {
		return "", false
	}
	if first.Message != "" {
		return first.Message, true
	}
	return "The request could not be executed as stated. Please adjust it and try again.", true
}

// complete folds a synthesized terminal chunk into the exchange.
func (o *Orchestrator) complete(ex *exchange, done CompletedChunk) {
	var r Reducer
	ex.msgs, _ = r.Apply(ex.msgs, done)
	o.sync(ex)
}

// fail marks the trailing message as errored and records the display string.
// A session entry registered by this exchange is retracted from the list; the
// conversation itself stays visible so the user can read the error.
func (o *Orchestrator) fail(ex *exchange, text string) {
	var r Reducer
	var out Outcome
	ex.msgs, out = r.Apply(ex.msgs, ErrorChunk{Event: EventRunError, Message: text})
	o.cfg.State.SetErrorText(out.ErrorText)
	o.sync(ex)
	if ex.fresh {
		o.cfg.State.DropSessionEntry(ex.sessionID)
	}
}

// sync writes the working sequence to the session cache and mirrors it into
// the display when the view is still bound to this exchange's session.
func (o *Orchestrator) sync(ex *exchange) {
	st := o.cfg.State
	st.SetCachedMessages(ex.sessionID, ex.msgs)
	st.SetMessagesIfBound(ex.sessionID, ex.msgs)
	if o.cfg.OnUpdate != nil {
		o.cfg.OnUpdate(ex.sessionID, CloneMessages(ex.msgs))
	}
}

// finish clears the streaming mark and notifies completion. Runs in all
// paths, success and failure alike.
func (o *Orchestrator) finish(ex *exchange) {
	o.cfg.State.RemoveStreaming(ex.sessionID)
	if o.cfg.OnDone != nil {
		o.cfg.OnDone(ex.sessionID)
	}
}

// persist writes one message to durable storage. Failures are logged and
// swallowed: the in-memory conversation is the source of truth.
func (o *Orchestrator) persist(ctx context.Context, ex *exchange, msg Message) {
	if !ex.durable || o.cfg.Store == nil {
		return
	}
	if err := o.cfg.Store.AppendMessage(ctx, ex.sessionID, msg); err != nil {
		o.cfg.Logger.Warn("message persistence failed", "session_id", ex.sessionID, "error", err)
	}
}

// persistTrailing persists the final agent message of the exchange unless it
// ended in a streaming error.
func (o *Orchestrator) persistTrailing(ctx context.Context, ex *exchange) {
	if len(ex.msgs) == 0 {
		return
	}
	last := ex.msgs[len(ex.msgs)-1]
	if last.Role != RoleAgent || last.StreamingError {
		return
	}
	o.persist(ctx, ex, last)
}

func userMessage(text string, now int64) Message {
	return Message{Role: RoleUser, Content: text, CreatedAt: now}
}

// sessionName derives a durable chat name from the first prompt.
func sessionName(text string) string {
	name := strings.TrimSpace(text)
	if len(name) > sessionNameMax {
		name = name[:sessionNameMax] + "..."
	}
	if name == "" {
		name = "New chat"
	}
	return name
}

// queryDescriptor renders a predefined-query invocation as transcript text.
func queryDescriptor(name string, params map[string]any) string {
	if len(params) == 0 {
		return fmt.Sprintf("[Predefined Query] %s", name)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return fmt.Sprintf("[Predefined Query] %s: %s", name, strings.Join(parts, ", "))
}

// lastUserInputs returns up to n of the most recent user prompts before the
// placeholders of the current exchange, oldest first.
func lastUserInputs(msgs []Message, n int) []string {
	// The working sequence already ends in the new [user, agent] pair.
	end := len(msgs) - 2
	if end < 0 {
		end = 0
	}
	var out []string
	for i := end - 1; i >= 0 && len(out) < n; i-- {
		if msgs[i].Role == RoleUser {
			out = append(out, msgs[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

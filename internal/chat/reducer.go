package chat

import (
	"encoding/json"
	"strings"

	"dario.cat/mergo"
)

// stringifyFallback replaces terminal content that cannot be serialized.
const stringifyFallback = "Error parsing response"

// Fixed display strings for terminal failures that carry no message.
const (
	errTextRunFailed = "An error occurred while streaming the response."
	errTextCancelled = "The run was cancelled."
)

// Outcome reports the side-band result of applying one chunk: the session id
// announced by a start chunk, terminal success, or terminal failure with a
// display string. Zero value means "nothing beyond the message mutation".
type Outcome struct {
	SessionID string
	Done      bool
	Failed    bool
	ErrorText string
}

// Reducer folds a stream of chunks into the trailing agent message of a
// sequence. It carries the dedup trackers for one stream, so a fresh Reducer
// is required per exchange. Only the last element of the sequence is ever
// mutated; chunks arriving while the sequence does not end in an agent
// message are dropped.
//
// The content append rule assumes each text chunk restates the full content
// so far and extends it. Chunks that do not extend the previous value are
// appended whole, which tolerates upstreams that send pure deltas.
type Reducer struct {
	lastText       string
	lastSerialized string
}

// Apply folds one chunk into the sequence and reports the outcome. The
// returned slice is msgs with its trailing element updated in place.
func (r *Reducer) Apply(msgs []Message, chunk Chunk) ([]Message, Outcome) {
	switch c := chunk.(type) {
	case StartedChunk:
		return msgs, Outcome{SessionID: c.SessionID}

	case MemoryChunk:
		return msgs, Outcome{}

	case ErrorChunk:
		text := c.Message
		if text == "" {
			if c.Event == EventTeamRunCancelled {
				text = errTextCancelled
			} else {
				text = errTextRunFailed
			}
		}
		if last := trailingAgent(msgs); last != nil {
			last.StreamingError = true
		}
		return msgs, Outcome{Failed: true, ErrorText: text}
	}

	last := trailingAgent(msgs)
	if last == nil {
		return msgs, Outcome{}
	}

	switch c := chunk.(type) {
	case ToolCallChunk:
		last.ToolCalls = mergeToolCalls(last.ToolCalls, c.Tools)

	case ContentChunk:
		r.applyContent(last, c)

	case ReasoningStepChunk:
		if len(c.Steps) > 0 {
			ed := ensureExtraData(last)
			ed.ReasoningSteps = append(ed.ReasoningSteps, c.Steps...)
		}

	case ReasoningCompletedChunk:
		if c.HasSteps {
			ensureExtraData(last).ReasoningSteps = c.Steps
		}

	case CompletedChunk:
		r.applyCompleted(last, c)
		return msgs, Outcome{Done: true}
	}

	return msgs, Outcome{}
}

// applyContent handles the three incremental content forms: a text delta, a
// structured value rendered as a fenced code block, and a transcript-only
// audio chunk.
func (r *Reducer) applyContent(last *Message, c ContentChunk) {
	switch {
	case c.HasText:
		last.Content += suffixAfter(r.lastText, c.Text)
		r.lastText = c.Text

		last.ToolCalls = mergeToolCalls(last.ToolCalls, c.Tools)
		if len(c.ReasoningSteps) > 0 {
			ed := ensureExtraData(last)
			ed.ReasoningSteps = append(ed.ReasoningSteps, c.ReasoningSteps...)
		}
		if len(c.References) > 0 {
			ed := ensureExtraData(last)
			ed.References = append(ed.References, c.References...)
		}
		if c.CreatedAt != 0 {
			last.CreatedAt = c.CreatedAt
		}
		if c.Images != nil {
			last.Images = c.Images
		}
		if c.Videos != nil {
			last.Videos = c.Videos
		}
		if c.Audio != nil {
			last.Audio = c.Audio
		}
		if c.ResponseAudio != nil {
			last.ResponseAudio = c.ResponseAudio
		}

	case c.Raw != nil:
		serialized := stringify(c.Raw)
		delta := suffixAfter(r.lastSerialized, serialized)
		r.lastSerialized = serialized
		if delta != "" {
			last.Content += "\n\n```json\n" + delta + "\n```\n"
		}

	case c.ResponseAudio != nil && c.ResponseAudio.Transcript != "":
		if last.ResponseAudio == nil {
			last.ResponseAudio = &ResponseAudio{}
		}
		last.ResponseAudio.Transcript += c.ResponseAudio.Transcript
		if c.ResponseAudio.Content != "" {
			last.ResponseAudio.Content = c.ResponseAudio.Content
		}
	}
}

// applyCompleted installs the authoritative final state of the message.
func (r *Reducer) applyCompleted(last *Message, c CompletedChunk) {
	switch {
	case c.HasText:
		last.Content = c.Text
	case c.Raw != nil:
		last.Content = stringify(c.Raw)
	}

	last.ToolCalls = mergeToolCalls(last.ToolCalls, c.Tools)
	if c.Images != nil {
		last.Images = c.Images
	}
	if c.Videos != nil {
		last.Videos = c.Videos
	}
	if c.ResponseAudio != nil {
		last.ResponseAudio = c.ResponseAudio
	}
	if c.CreatedAt != 0 {
		last.CreatedAt = c.CreatedAt
	}
	if c.HasReasoning {
		ensureExtraData(last).ReasoningSteps = c.ReasoningSteps
	}
	if c.HasReferences {
		ensureExtraData(last).References = c.References
	}
	if c.Table != nil {
		ensureExtraData(last).Table = c.Table
	}
}

// TrimFailedExchange drops a trailing [user, errored agent] pair so a retried
// exchange does not stack on top of dead history.
func TrimFailedExchange(msgs []Message) []Message {
	n := len(msgs)
	if n < 2 {
		return msgs
	}
	if msgs[n-1].Role == RoleAgent && msgs[n-1].StreamingError && msgs[n-2].Role == RoleUser {
		return msgs[:n-2]
	}
	return msgs
}

// trailingAgent returns the last message when it is an in-progress agent
// message, nil otherwise.
func trailingAgent(msgs []Message) *Message {
	if len(msgs) == 0 {
		return nil
	}
	last := &msgs[len(msgs)-1]
	if last.Role != RoleAgent {
		return nil
	}
	return last
}

// suffixAfter returns the part of incoming that extends prev. When incoming
// does not extend prev it is returned whole.
func suffixAfter(prev, incoming string) string {
	if prev != "" && strings.HasPrefix(incoming, prev) {
		return incoming[len(prev):]
	}
	return incoming
}

// mergeToolCalls folds incoming tool-call records into existing ones by
// identity key. Known keys merge in place with incoming fields winning,
// unknown keys append, and first-seen order is preserved.
func mergeToolCalls(existing, incoming []ToolCall) []ToolCall {
	if len(incoming) == 0 {
		return existing
	}
	index := make(map[string]int, len(existing))
	for i := range existing {
		index[existing[i].Key()] = i
	}
	for _, in := range incoming {
		key := in.Key()
		if i, ok := index[key]; ok {
			merged := existing[i]
			if err := mergo.Merge(&merged, cloneToolCall(in), mergo.WithOverride); err == nil {
				existing[i] = merged
			}
			continue
		}
		index[key] = len(existing)
		existing = append(existing, cloneToolCall(in))
	}
	return existing
}

func ensureExtraData(m *Message) *ExtraData {
	if m.ExtraData == nil {
		m.ExtraData = &ExtraData{}
	}
	return m.ExtraData
}

// stringify renders a structured value as indented JSON, falling back to a
// fixed string when the value cannot be serialized.
func stringify(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return stringifyFallback
	}
	return string(b)
}

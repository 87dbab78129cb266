package chat

import (
	"sync"
)

// State is the per-client conversation state: the displayed message sequence
// and its bound session, the session-entry list, the streaming-session
// registry, the per-session message cache, and per-session input drafts.
//
// It is an injected container, not package state, so every test and every
// client connection gets an isolated instance. All methods are safe for
// concurrent use; snapshots returned to callers are deep copies, so a
// background exchange finishing after the view has navigated away can never
// bleed into a displayed sequence it no longer owns.
type State struct {
	mu sync.RWMutex

	messages []Message
	bound    string

	sessions  []SessionEntry
	streaming map[string]struct{}
	cache     map[string][]Message
	inputs    map[string]string

	errorText string
}

// NewState returns an empty state container.
func NewState() *State {
	return &State{
		streaming: make(map[string]struct{}),
		cache:     make(map[string][]Message),
		inputs:    make(map[string]string),
	}
}

// Messages returns a deep copy of the displayed sequence.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMessages(s.messages)
}

// SetMessages replaces the displayed sequence with a deep copy of msgs.
func (s *State) SetMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = CloneMessages(msgs)
}

// SetMessagesIfBound replaces the displayed sequence only when the view is
// still bound to sessionID. Exchanges capture their target session at launch
// and mirror through this method, so a result computed for a session the user
// has left lands only in the cache.
func (s *State) SetMessagesIfBound(sessionID string, msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != sessionID {
		return false
	}
	s.messages = CloneMessages(msgs)
	return true
}

// Bound returns the session id the view currently displays, or "" for a
// fresh unbound conversation.
func (s *State) Bound() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound
}

// Bind points the view at sessionID without touching the displayed sequence.
// Used when a new exchange resolves its durable session mid-flight.
func (s *State) Bind(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = sessionID
}

// SwitchTo binds the view to sessionID and rehydrates the displayed sequence
// from the session's cached snapshot, or clears it when none exists.
func (s *State) SwitchTo(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = sessionID
	s.messages = CloneMessages(s.cache[sessionID])
}

// Sessions returns a copy of the session-entry list, most recent first.
func (s *State) Sessions() []SessionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionEntry, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// UpsertSession inserts entry at the head of the session list. An existing
// entry with the same id is removed first, so the list stays deduplicated
// with the most recently active session on top.
func (s *State) UpsertSession(entry SessionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = removeSession(s.sessions, entry.SessionID)
	s.sessions = append([]SessionEntry{entry}, s.sessions...)
}

// RemoveSession drops the entry for sessionID along with its cached messages
// and input draft.
func (s *State) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = removeSession(s.sessions, sessionID)
	delete(s.cache, sessionID)
	delete(s.inputs, sessionID)
	if s.bound == sessionID {
		s.bound = ""
		s.messages = nil
	}
}

// DropSessionEntry removes sessionID from the session list only, leaving
// cached messages and the bound view untouched. Used to retract a session
// that was provisionally registered for a run that then failed.
func (s *State) DropSessionEntry(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = removeSession(s.sessions, sessionID)
}

// RenameSession updates the display name of an existing entry.
func (s *State) RenameSession(sessionID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].SessionID == sessionID {
			s.sessions[i].SessionName = name
			return
		}
	}
}

func removeSession(list []SessionEntry, sessionID string) []SessionEntry {
	out := list[:0]
	for _, e := range list {
		if e.SessionID != sessionID {
			out = append(out, e)
		}
	}
	return out
}

// AddStreaming marks sessionID as having an in-flight exchange.
func (s *State) AddStreaming(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming[sessionID] = struct{}{}
}

// RemoveStreaming clears the in-flight mark for sessionID.
func (s *State) RemoveStreaming(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streaming, sessionID)
}

// IsStreaming reports whether sessionID has an in-flight exchange. Input
// controls are gated per session, so exchanges in other sessions keep their
// tabs interactive.
func (s *State) IsStreaming(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streaming[sessionID]
	return ok
}

// CachedMessages returns a deep copy of the cached sequence for sessionID.
func (s *State) CachedMessages(sessionID string) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.cache[sessionID]
	if !ok {
		return nil, false
	}
	return CloneMessages(msgs), true
}

// SetCachedMessages replaces the cached sequence for sessionID with a deep
// copy of msgs. Snapshots are replaced wholesale, never patched, so cached
// and displayed sequences cannot alias each other.
func (s *State) SetCachedMessages(sessionID string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[sessionID] = CloneMessages(msgs)
}

// UpdateCachedMessages applies fn to a deep copy of the cached sequence for
// sessionID and stores the result. fn runs under the state lock and must not
// call back into State.
func (s *State) UpdateCachedMessages(sessionID string, fn func([]Message) []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[sessionID] = fn(CloneMessages(s.cache[sessionID]))
}

// Input returns the unsent draft text for sessionID.
func (s *State) Input(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputs[sessionID]
}

// SetInput stores draft text for sessionID; empty text clears the draft.
func (s *State) SetInput(sessionID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.inputs, sessionID)
		return
	}
	s.inputs[sessionID] = text
}

// ErrorText returns the last surfaced exchange error, if any.
func (s *State) ErrorText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorText
}

// SetErrorText records an exchange error for display; empty clears it.
func (s *State) SetErrorText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorText = text
}

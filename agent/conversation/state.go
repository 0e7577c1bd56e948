// Package conversation manages bounded per-run conversation state. History
// is trimmed oldest-first once it exceeds the configured limit; the system
// prompt lives outside the sliding window and is never evicted.
package conversation

import (
	"sync"

	"github.com/lumaflow/luma/types"
)

// DefaultMaxHistory bounds the sliding history window when no limit is
// configured.
const DefaultMaxHistory = 10

// State holds the mutable conversation context for a single agent.
// All methods are safe for concurrent use.
type State struct {
	mu           sync.RWMutex
	systemPrompt string
	history      []types.Message
	maxHistory   int
	metadata     map[string]any
}

// NewState creates a conversation state keeping at most maxHistory
// non-system messages. Values below 1 fall back to DefaultMaxHistory.
func NewState(maxHistory int) *State {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	return &State{
		maxHistory: maxHistory,
		metadata:   make(map[string]any),
	}
}

// SetSystemPrompt sets the system prompt. It is stored apart from history
// and survives any amount of trimming.
func (s *State) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPrompt = prompt
}

// SystemPrompt returns the current system prompt.
func (s *State) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// Append adds a message to the history, trimming the oldest entries once
// the window is exceeded.
func (s *State) Append(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}

// History returns a copy of the current window, oldest first.
func (s *State) History() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Last returns a copy of the n most recent messages.
func (s *State) Last(n int) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.history) == 0 {
		return nil
	}
	if n > len(s.history) {
		n = len(s.history)
	}
	out := make([]types.Message, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Len reports the number of messages currently in the window.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Clear drops the history window. The system prompt and metadata are kept.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// SetMetadata stores an arbitrary context value.
func (s *State) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}

// Metadata returns the value stored under key.
func (s *State) Metadata(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.metadata[key]
	return v, ok
}

// TokenCount estimates the token footprint of the current prompt,
// system prompt included.
func (s *State) TokenCount(tok types.Tokenizer) int {
	return tok.CountMessagesTokens(s.PromptMessages())
}

// PromptMessages assembles the message list for a model request: the
// system prompt first when set, followed by the history window.
func (s *State) PromptMessages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, 0, len(s.history)+1)
	if s.systemPrompt != "" {
		out = append(out, types.NewSystemMessage(s.systemPrompt))
	}
	out = append(out, s.history...)
	return out
}

// Package mocks provides test doubles shared across packages, built in a
// builder style with error injection.
package mocks

import (
	"context"
	"sync"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

// ProviderCall records one Completion invocation.
type ProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Err      error
}

// scripted holds one scripted turn.
type scripted struct {
	content string
	err     error
}

// MockProvider is a scriptable llm.Provider. Responses are played back in
// the order they were queued; once the script runs out the last entry
// repeats.
type MockProvider struct {
	mu     sync.Mutex
	name   string
	script []scripted
	calls  []ProviderCall

	// completionFunc, when set, overrides the script entirely.
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// NewMockProvider creates a provider replying "mock response" until
// scripted otherwise.
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock"}
}

// WithName sets the provider name.
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse queues a successful reply.
func (m *MockProvider) WithResponse(content string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{content: content})
	return m
}

// WithResponses queues several successful replies in order.
func (m *MockProvider) WithResponses(contents ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.script = append(m.script, scripted{content: c})
	}
	return m
}

// WithError queues a failing turn.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// WithCompletionFunc replaces the scripted behaviour with fn.
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

func (m *MockProvider) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	fn := m.completionFunc
	var turn scripted
	if fn == nil {
		switch {
		case len(m.calls) < len(m.script):
			turn = m.script[len(m.calls)]
		case len(m.script) > 0:
			turn = m.script[len(m.script)-1]
		default:
			turn = scripted{content: "mock response"}
		}
	}
	m.mu.Unlock()

	var resp *llm.ChatResponse
	var err error
	if fn != nil {
		resp, err = fn(ctx, req)
	} else if turn.err != nil {
		err = turn.err
	} else {
		resp = &llm.ChatResponse{
			Provider: m.Name(),
			Model:    req.Model,
			Choices: []llm.ChatChoice{{
				FinishReason: "stop",
				Message:      types.NewAssistantMessage(turn.content),
			}},
			Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, ProviderCall{Request: req, Response: resp, Err: err})
	m.mu.Unlock()
	return resp, err
}

// Calls returns a snapshot of every recorded invocation.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount reports how many times Completion ran.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

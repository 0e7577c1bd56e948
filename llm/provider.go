// Package llm defines the model-invocation boundary of the framework.
// Concrete providers are thin adapters living behind the Provider interface;
// the core never depends on how a completion is produced.
package llm

import (
	"context"
	"time"

	"github.com/lumaflow/luma/types"
)

// ChatRequest is a provider-agnostic completion request.
type ChatRequest struct {
	TraceID     string             `json:"trace_id,omitempty"`
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	Timeout     time.Duration      `json:"timeout,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// ChatUsage reports token consumption for a single completion.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice is one candidate completion.
type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

// ChatResponse is a provider-agnostic completion response.
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Provider defines the unified LLM adapter interface.
// Tool schemas travel in ChatRequest.Tools; the model returns ToolCalls in
// the response message. Tool execution is the tools package's job.
type Provider interface {
	// Completion issues a synchronous chat request and returns the full
	// response. A returned error means the provider itself failed (network,
	// auth, malformed upstream response); callers treat it as terminal for
	// the current run.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider's unique identifier.
	Name() string
}

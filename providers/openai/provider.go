// Package openai implements an OpenAI-compatible chat completion adapter.
// Any endpoint speaking the same wire format (DeepSeek, local gateways)
// works by pointing BaseURL at it. The adapter is deliberately thin: it
// formats the request, maps the response and classifies failures.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config configures the adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider is an llm.Provider over the OpenAI chat completions API.
type Provider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates the adapter. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("openai"),
	}
}

func (p *Provider) Name() string { return "openai" }

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrModelInvocation, "encode request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewError(types.ErrModelInvocation, "build request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrModelInvocation, "request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrModelInvocation, "read response").WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewError(types.ErrRateLimited,
			fmt.Sprintf("rate limited: %s", payload)).WithRetryable(true)
	case resp.StatusCode >= 500:
		return nil, types.NewError(types.ErrModelInvocation,
			fmt.Sprintf("upstream error %d: %s", resp.StatusCode, payload)).WithRetryable(true)
	case resp.StatusCode != http.StatusOK:
		return nil, types.NewError(types.ErrModelInvocation,
			fmt.Sprintf("upstream error %d: %s", resp.StatusCode, payload))
	}

	var wire wireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, types.NewError(types.ErrModelInvocation, "decode response").WithCause(err)
	}
	if wire.Error != nil {
		return nil, types.NewError(types.ErrModelInvocation, wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, types.NewError(types.ErrEmptyResponse, "no choices in response")
	}

	p.logger.Debug("completion finished",
		zap.String("model", wire.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_tokens", wire.Usage.TotalTokens),
	)

	out := &llm.ChatResponse{
		ID:       wire.ID,
		Provider: p.Name(),
		Model:    wire.Model,
		Usage: llm.ChatUsage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}
	for _, choice := range wire.Choices {
		msg := types.NewAssistantMessage(choice.Message.Content)
		msg.Role = types.Role(choice.Message.Role)
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        choice.Index,
			FinishReason: choice.FinishReason,
			Message:      msg,
		})
	}
	return out, nil
}

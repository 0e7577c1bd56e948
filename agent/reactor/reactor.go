// Package reactor implements the Reason-Act-Observe loop. Each iteration
// asks the model for a JSON decision, either dispatches a tool and feeds
// the observation back, or returns the final response. The loop is bounded
// by an iteration cap and degrades to a best-effort summary on exhaustion.
package reactor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumaflow/luma/agent/conversation"
	"github.com/lumaflow/luma/agent/memory"
	"github.com/lumaflow/luma/internal/metrics"
	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/tools"
	"github.com/lumaflow/luma/types"
)

// Config defaults.
const (
	DefaultMaxIterations    = 10
	DefaultObservationLimit = 100
	DefaultMaxTokens        = 1024
)

// Config tunes a Reactor.
type Config struct {
	// Model names the model passed through to the provider.
	Model string
	// MaxIterations caps the number of reasoning cycles per run.
	MaxIterations int
	// ObservationLimit truncates tool results rendered into the prompt.
	ObservationLimit int
	// MaxTokens bounds each reasoning reply.
	MaxTokens int
	// SystemPrompt overrides the built-in reasoning instructions when set.
	SystemPrompt string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations < 1 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ObservationLimit < 1 {
		c.ObservationLimit = DefaultObservationLimit
	}
	if c.MaxTokens < 1 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = reasoningSystemPrompt
	}
	return c
}

// Step records one completed iteration.
type Step struct {
	Iteration   int               `json:"iteration"`
	Decision    Decision          `json:"-"`
	Reasoning   string            `json:"reasoning,omitempty"`
	ToolName    string            `json:"tool_name,omitempty"`
	Observation tools.Observation `json:"observation,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Response   string           `json:"response"`
	Iterations int              `json:"iterations"`
	History    []Step           `json:"history"`
	Usage      types.TokenUsage `json:"usage"`
}

// Reactor drives the loop for a single agent. Exchanges flow through a
// conversation state so follow-up runs see the preceding turns.
type Reactor struct {
	provider llm.Provider
	registry *tools.Registry
	conv     *conversation.State
	memory   *memory.Manager
	metrics  *metrics.Collector
	config   Config
	logger   *zap.Logger
}

// Option configures optional Reactor collaborators.
type Option func(*Reactor)

// WithConversation supplies the conversation window; without it the
// Reactor creates one with the default history bound.
func WithConversation(s *conversation.State) Option {
	return func(r *Reactor) { r.conv = s }
}

// WithMemory attaches a memory manager; final responses of completed runs
// are persisted into it.
func WithMemory(m *memory.Manager) Option {
	return func(r *Reactor) { r.memory = m }
}

// WithMetrics attaches a collector recording runs, iterations and model
// invocations.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Reactor) { r.metrics = c }
}

// New creates a Reactor. A nil logger disables logging.
func New(provider llm.Provider, registry *tools.Registry, cfg Config, logger *zap.Logger, opts ...Option) *Reactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reactor{
		provider: provider,
		registry: registry,
		config:   cfg.withDefaults(),
		logger:   logger.Named("reactor"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.conv == nil {
		r.conv = conversation.NewState(conversation.DefaultMaxHistory)
	}
	return r
}

// Conversation returns the state the Reactor appends exchanges to.
func (r *Reactor) Conversation() *conversation.State { return r.conv }

const reasoningSystemPrompt = `You are an assistant that answers questions and performs tasks. You may use tools to gather information.
Analyze the request and decide whether to answer directly or use a tool.

Your response must be valid JSON in one of these formats:

1. To use a tool:
{
  "action_type": "tool_use",
  "tool_name": "name of the tool",
  "tool_params": { parameters for the tool },
  "reasoning": "why this tool"
}

2. To provide a final answer:
{
  "action_type": "final_response",
  "response": "your answer to the user",
  "reasoning": "why this answer"
}`

// Run processes one user input to completion. Provider failures and
// iteration exhaustion both yield a descriptive response rather than an
// error; the returned error is reserved for context cancellation.
func (r *Reactor) Run(ctx context.Context, input string) (*Result, error) {
	runID, ok := types.RunID(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = types.WithRunID(ctx, runID)
	}
	logger := r.logger.With(zap.String("run_id", runID))

	prior := r.conv.History()
	r.conv.Append(types.NewUserMessage(input))

	result := &Result{}

	for result.Iterations < r.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := r.complete(ctx, r.buildPrompt(input, prior, result), result)
		if err != nil {
			logger.Warn("model invocation failed, ending run", zap.Error(err))
			result.Response = fmt.Sprintf("I could not complete the request because the language model call failed: %v", err)
			result.Iterations++
			r.finish(ctx, runID, result, "provider_error")
			return result, nil
		}

		decision := ParseDecision(reply)
		result.Iterations++

		switch decision.Action {
		case ActionFinal:
			result.Response = decision.Response
			logger.Debug("run completed",
				zap.Int("iterations", result.Iterations))
			r.finish(ctx, runID, result, "completed")
			return result, nil

		case ActionToolUse:
			obs := r.registry.Invoke(ctx, decision.ToolName, decision.ToolArgs)
			result.History = append(result.History, Step{
				Iteration:   result.Iterations,
				Decision:    decision,
				Reasoning:   decision.Reasoning,
				ToolName:    decision.ToolName,
				Observation: obs,
			})
			logger.Debug("tool dispatched",
				zap.Int("iteration", result.Iterations),
				zap.String("tool", decision.ToolName))
		}
	}

	// Iteration budget exhausted: one separate bounded call to summarize.
	result.Response = r.timeoutResponse(ctx, input, result)
	r.finish(ctx, runID, result, "exhausted")
	return result, nil
}

// finish closes out a run: the response joins the conversation, run
// metrics are recorded, and answered runs are persisted into memory when
// a manager is attached.
func (r *Reactor) finish(ctx context.Context, runID string, result *Result, outcome string) {
	r.conv.Append(types.NewAssistantMessage(result.Response))
	r.metrics.RecordRun(outcome, result.Iterations)
	if r.memory == nil || outcome == "provider_error" {
		return
	}
	if _, err := r.memory.Remember(ctx, result.Response, memory.RememberOptions{
		Tags:     []string{"conversation"},
		Metadata: map[string]any{"run_id": runID},
	}); err != nil {
		r.logger.Warn("failed to persist response", zap.Error(err))
	}
}

// complete issues one model call, accumulating token usage on the result.
func (r *Reactor) complete(ctx context.Context, prompt string, result *Result) (string, error) {
	start := time.Now()
	resp, err := r.provider.Completion(ctx, &llm.ChatRequest{
		Model: r.config.Model,
		Messages: []types.Message{
			types.NewSystemMessage(r.config.SystemPrompt),
			types.NewUserMessage(prompt),
		},
		MaxTokens: r.config.MaxTokens,
	})
	elapsed := time.Since(start)
	if err != nil {
		r.metrics.RecordLLMRequest(r.provider.Name(), r.config.Model, "error", elapsed, 0, 0)
		return "", err
	}
	r.metrics.RecordLLMRequest(r.provider.Name(), r.config.Model, "ok", elapsed,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	result.Usage.Add(types.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})
	return llm.ResponseText(resp), nil
}

func (r *Reactor) buildPrompt(input string, prior []types.Message, result *Result) string {
	var b strings.Builder
	b.WriteString("Process the user request step by step. Each iteration, either use a tool to gather more information or provide the final answer, formatted as valid JSON.\n\n")
	b.WriteString(r.describeTools())
	if len(prior) > 0 {
		b.WriteString("\nPrevious conversation:\n")
		b.WriteString(describeConversation(prior))
	}
	b.WriteString("\nUser request: ")
	b.WriteString(input)
	b.WriteString("\n\nIteration history:\n")
	b.WriteString(r.describeHistory(result.History))
	fmt.Fprintf(&b, "\nCurrent iteration: %d\n", result.Iterations+1)
	return b.String()
}

func describeConversation(msgs []types.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", roleLabel(msg.Role), msg.Content)
	}
	return b.String()
}

func roleLabel(role types.Role) string {
	switch role {
	case types.RoleUser:
		return "User"
	case types.RoleAssistant:
		return "Assistant"
	default:
		return string(role)
	}
}

func (r *Reactor) describeTools() string {
	schemas, err := r.registry.Schemas()
	if err != nil || len(schemas) == 0 {
		return "No tools available.\n"
	}
	var b strings.Builder
	b.WriteString("Available tools:\n\n")
	for _, schema := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n", schema.Name, schema.Description)
		if params := describeParams(schema.Parameters); params != "" {
			fmt.Fprintf(&b, "  Parameters: %s\n", params)
		}
	}
	return b.String()
}

func describeParams(raw json.RawMessage) string {
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return ""
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		mark := "optional"
		if required[name] {
			mark = "required"
		}
		parts = append(parts, fmt.Sprintf("%s (%s %s)", name, schema.Properties[name].Type, mark))
	}
	return strings.Join(parts, ", ")
}

func (r *Reactor) describeHistory(history []Step) string {
	if len(history) == 0 {
		return "No previous observations.\n"
	}
	var b strings.Builder
	for _, step := range history {
		fmt.Fprintf(&b, "Iteration %d:\n", step.Iteration)
		if step.Reasoning != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", step.Reasoning)
		}
		fmt.Fprintf(&b, "Action: use tool %q\n", step.ToolName)
		b.WriteString("Result: ")
		b.WriteString(r.renderObservation(step.Observation))
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderObservation flattens an observation for the prompt, truncating
// long results so the context window is not flooded.
func (r *Reactor) renderObservation(obs tools.Observation) string {
	if msg, ok := obs["error"].(string); ok {
		if names, ok := obs["available_tools"].([]string); ok && len(names) > 0 {
			return "Error - " + msg + ". Available tools: " + strings.Join(names, ", ")
		}
		return "Error - " + msg
	}
	value, ok := obs["result"]
	if !ok {
		return "(no result)"
	}
	text, ok := value.(string)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			text = fmt.Sprintf("%v", value)
		} else {
			text = string(raw)
		}
	}
	if len(text) > r.config.ObservationLimit {
		text = text[:r.config.ObservationLimit] + "..."
	}
	return text
}

const timeoutFallback = "I am sorry, I could not complete this request. Please try a more specific instruction."

// timeoutResponse asks the model once for a best-effort answer from the
// accumulated observations. It never loops back into reasoning.
func (r *Reactor) timeoutResponse(ctx context.Context, input string, result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The maximum number of iterations (%d) was reached without a final answer.\n", r.config.MaxIterations)
	fmt.Fprintf(&b, "Original user request: %s\n\nObservations so far:\n", input)
	b.WriteString(r.describeHistory(result.History))
	b.WriteString("\nBased on the above, provide the most helpful final answer you can.")

	text, err := r.complete(ctx, b.String(), result)
	if err != nil {
		r.logger.Warn("timeout summarization failed", zap.Error(err))
		return timeoutFallback
	}
	if text != "" {
		return text
	}
	return timeoutFallback
}

package reactor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaflow/luma/agent/conversation"
	"github.com/lumaflow/luma/agent/memory"
	"github.com/lumaflow/luma/internal/metrics"
	"github.com/lumaflow/luma/testutil/mocks"
	"github.com/lumaflow/luma/tools"
	"github.com/lumaflow/luma/types"
)

func calculatorRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(tools.Calculator()))
	return r
}

func TestRunDirectAnswer(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"final_response","response":"Paris","reasoning":"well known"}`)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Response)
	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.History)
}

func TestRunToolThenAnswer(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"tool_use","tool_name":"calculator","tool_params":{"operation":"add","a":2,"b":3},"reasoning":"compute"}`,
		`{"action_type":"final_response","response":"2 + 3 = 5"}`,
	)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "what is 2 + 3?")
	require.NoError(t, err)
	assert.Equal(t, "2 + 3 = 5", result.Response)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.History, 1)
	assert.Equal(t, "calculator", result.History[0].ToolName)
	assert.Equal(t, 5.0, result.History[0].Observation["result"])

	// The second prompt carries the observation from the first.
	calls := provider.Calls()
	require.Len(t, calls, 2)
	secondPrompt := calls[1].Request.Messages[1].Content
	assert.Contains(t, secondPrompt, "Iteration 1")
	assert.Contains(t, secondPrompt, "calculator")
}

func TestRunFailOpenOnNonJSON(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("Just a plain answer with no JSON.")
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Just a plain answer with no JSON.", result.Response)
	assert.Equal(t, 1, result.Iterations)
}

func TestRunToolErrorContained(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"tool_use","tool_name":"calculator","tool_params":{"operation":"divide","a":1,"b":0}}`,
		`{"action_type":"final_response","response":"Cannot divide by zero."}`,
	)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "1/0?")
	require.NoError(t, err)
	assert.Equal(t, "Cannot divide by zero.", result.Response)
	require.Len(t, result.History, 1)
	assert.Contains(t, result.History[0].Observation["error"], "division by zero")

	// The error observation is rendered into the next prompt.
	secondPrompt := provider.Calls()[1].Request.Messages[1].Content
	assert.Contains(t, secondPrompt, "Error - ")
}

func TestRunUnknownToolContained(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"tool_use","tool_name":"nonexistent","tool_params":{}}`,
		`{"action_type":"final_response","response":"done"}`,
	)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "use a tool")
	require.NoError(t, err)
	require.Len(t, result.History, 1)
	msg, ok := result.History[0].Observation["error"].(string)
	require.True(t, ok)
	assert.Contains(t, msg, `tool "nonexistent" not found`)
	assert.Equal(t, []string{"calculator"}, result.History[0].Observation["available_tools"])

	// The registered names are rendered into the next prompt so the model
	// can recover.
	secondPrompt := provider.Calls()[1].Request.Messages[1].Content
	assert.Contains(t, secondPrompt, "Available tools: calculator")
}

func TestRunIterationExhaustionSummarizes(t *testing.T) {
	t.Parallel()

	toolDecision := `{"action_type":"tool_use","tool_name":"calculator","tool_params":{"operation":"add","a":1,"b":1}}`
	provider := mocks.NewMockProvider().WithResponses(
		toolDecision,
		toolDecision,
		toolDecision,
		"Best effort: the sum is 2.",
	)
	r := New(provider, calculatorRegistry(t), Config{MaxIterations: 3}, nil)

	result, err := r.Run(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, "Best effort: the sum is 2.", result.Response)
	assert.Len(t, result.History, 3)

	// Three reasoning calls plus one bounded summarization call.
	assert.Equal(t, 4, provider.CallCount())
	lastPrompt := provider.Calls()[3].Request.Messages[1].Content
	assert.Contains(t, lastPrompt, "maximum number of iterations (3)")
}

func TestRunTimeoutSummarizationFailureUsesFallback(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"tool_use","tool_name":"calculator","tool_params":{"operation":"add","a":1,"b":1}}`).
		WithError(errors.New("provider down"))
	r := New(provider, calculatorRegistry(t), Config{MaxIterations: 1}, nil)

	result, err := r.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, timeoutFallback, result.Response)
}

func TestRunProviderFailureEndsRun(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithError(types.NewError(types.ErrModelInvocation, "connection refused"))
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, result.Response, "language model call failed")
	assert.Contains(t, result.Response, "connection refused")
	// No retry loop: a single failing call ends the run.
	assert.Equal(t, 1, provider.CallCount())
}

func TestRunObservationTruncation(t *testing.T) {
	t.Parallel()

	registry := tools.NewRegistry(nil)
	long := strings.Repeat("x", 500)
	require.NoError(t, registry.Register(tools.Descriptor{
		Name:        "blob",
		Description: "Returns a long blob.",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return long, nil
		},
	}))

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"tool_use","tool_name":"blob","tool_params":{}}`,
		`{"action_type":"final_response","response":"done"}`,
	)
	r := New(provider, registry, Config{}, nil)

	_, err := r.Run(context.Background(), "fetch blob")
	require.NoError(t, err)

	secondPrompt := provider.Calls()[1].Request.Messages[1].Content
	assert.Contains(t, secondPrompt, strings.Repeat("x", DefaultObservationLimit)+"...")
	assert.NotContains(t, secondPrompt, strings.Repeat("x", DefaultObservationLimit+1))
}

func TestRunContextCancelled(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse("irrelevant")
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPromptDescribesTools(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"final_response","response":"ok"}`)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	_, err := r.Run(context.Background(), "hi")
	require.NoError(t, err)

	prompt := provider.Calls()[0].Request.Messages[1].Content
	assert.Contains(t, prompt, "calculator")
	assert.Contains(t, prompt, "operation (string required)")
}

func TestRunCarriesConversationAcrossRuns(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"final_response","response":"Nice to meet you, Ada."}`,
		`{"action_type":"final_response","response":"Your name is Ada."}`,
	)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	first, err := r.Run(context.Background(), "my name is Ada")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Ada.", first.Response)

	second, err := r.Run(context.Background(), "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Your name is Ada.", second.Response)

	// The second run's prompt replays the first exchange.
	secondPrompt := provider.Calls()[1].Request.Messages[1].Content
	assert.Contains(t, secondPrompt, "Previous conversation:")
	assert.Contains(t, secondPrompt, "User: my name is Ada")
	assert.Contains(t, secondPrompt, "Assistant: Nice to meet you, Ada.")

	history := r.Conversation().History()
	require.Len(t, history, 4)
	assert.Equal(t, types.RoleUser, history[0].Role)
	assert.Equal(t, types.RoleAssistant, history[3].Role)
}

func TestRunRespectsConversationBound(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"final_response","response":"ok"}`)
	conv := conversation.NewState(2)
	r := New(provider, calculatorRegistry(t), Config{}, nil, WithConversation(conv))

	for i := 0; i < 3; i++ {
		_, err := r.Run(context.Background(), fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	// Only the most recent exchange fits the window.
	history := conv.History()
	require.Len(t, history, 2)
	assert.Equal(t, "turn 2", history[0].Content)
}

func TestRunPersistsResponseToMemory(t *testing.T) {
	t.Parallel()

	store, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "mem.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	mgr := memory.NewManager(store, memory.Config{}, nil, nil)

	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"final_response","response":"The answer is 42."}`)
	r := New(provider, calculatorRegistry(t), Config{}, nil, WithMemory(mgr))

	_, err = r.Run(context.Background(), "what is the answer?")
	require.NoError(t, err)

	hits, err := mgr.Retrieve(context.Background(), "answer is 42", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "The answer is 42.", hits[0].Content)
	assert.Contains(t, hits[0].Tags, "conversation")
}

func TestRunAccumulatesTokenUsage(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`{"action_type":"tool_use","tool_name":"calculator","tool_params":{"operation":"add","a":2,"b":3}}`,
		`{"action_type":"final_response","response":"5"}`,
	)
	r := New(provider, calculatorRegistry(t), Config{}, nil)

	result, err := r.Run(context.Background(), "2+3")
	require.NoError(t, err)
	// Two model calls at 10 prompt / 20 completion tokens each.
	assert.Equal(t, 20, result.Usage.PromptTokens)
	assert.Equal(t, 40, result.Usage.CompletionTokens)
	assert.Equal(t, 60, result.Usage.TotalTokens)
}

var testCollector = metrics.NewCollector("reactortest")

func TestRunRecordsRunMetrics(t *testing.T) {
	// Not parallel: reads the process-global Prometheus registry.
	provider := mocks.NewMockProvider().
		WithResponse(`{"action_type":"final_response","response":"ok"}`)
	r := New(provider, calculatorRegistry(t), Config{}, nil, WithMetrics(testCollector))

	_, err := r.Run(context.Background(), "hi")
	require.NoError(t, err)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, families, "reactortest_agent_runs_total"))
	assert.Equal(t, 1.0, counterValue(t, families, "reactortest_llm_requests_total"))
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}

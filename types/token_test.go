package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	usage := TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	usage.Add(TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})

	assert.Equal(t, 13, usage.PromptTokens)
	assert.Equal(t, 7, usage.CompletionTokens)
	assert.Equal(t, 20, usage.TotalTokens)
}

func TestEstimateTokenizerCountTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimateTokenizer()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short text rounds up to one", text: "hi", want: 1},
		{name: "four chars per token", text: strings.Repeat("a", 40), want: 10},
		{name: "counts runes not bytes", text: strings.Repeat("世", 8), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tok.CountTokens(tt.text))
		})
	}
}

func TestEstimateTokenizerCountMessageTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimateTokenizer()

	msg := Message{
		Role:    RoleUser,
		Content: strings.Repeat("a", 40),
	}
	// 4 overhead + 10 content tokens.
	assert.Equal(t, 14, tok.CountMessageTokens(msg))

	named := msg
	named.Name = strings.Repeat("b", 8)
	assert.Equal(t, 16, tok.CountMessageTokens(named))

	withCall := msg
	withCall.ToolCalls = []ToolCall{{
		ID:        "call_1",
		Name:      strings.Repeat("c", 12),
		Arguments: json.RawMessage(strings.Repeat("d", 20)),
	}}
	// 14 base + 3 for the tool name + 5 for the arguments.
	assert.Equal(t, 22, tok.CountMessageTokens(withCall))
}

func TestEstimateTokenizerCountMessagesTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimateTokenizer()

	msgs := []Message{
		NewSystemMessage(strings.Repeat("s", 16)),
		NewUserMessage(strings.Repeat("u", 24)),
	}
	require.Len(t, msgs, 2)
	// (4+4) + (4+6) = 18.
	assert.Equal(t, 18, tok.CountMessagesTokens(msgs))
}

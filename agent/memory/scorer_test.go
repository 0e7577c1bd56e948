package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(s.reply)}},
	}, nil
}

func TestLLMScorerParsesReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{"bare number", "0.8", 0.8},
		{"number with prose", "Importance: 0.35 based on the content.", 0.35},
		{"clamped above one", "3.5", 1.0},
		{"no number", "quite important", types.DefaultImportance},
		{"integer", "1", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scorer := NewLLMScorer(&stubProvider{reply: tt.reply}, "m", nil)
			assert.InDelta(t, tt.want, scorer.Score(context.Background(), "content"), 1e-9)
		})
	}
}

func TestLLMScorerDefaultsOnProviderError(t *testing.T) {
	t.Parallel()

	scorer := NewLLMScorer(&stubProvider{err: errors.New("upstream down")}, "m", nil)
	assert.Equal(t, types.DefaultImportance, scorer.Score(context.Background(), "content"))
}

func TestStaticScorer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.6, StaticScorer(0.6).Score(context.Background(), "x"))
	assert.Equal(t, 1.0, StaticScorer(4).Score(context.Background(), "x"))
	assert.Equal(t, 0.0, StaticScorer(-1).Score(context.Background(), "x"))
}

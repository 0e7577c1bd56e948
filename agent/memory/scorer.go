package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

// Scorer assigns an importance in [0, 1] to memory content.
type Scorer interface {
	Score(ctx context.Context, content string) float64
}

// StaticScorer always returns the same importance.
type StaticScorer float64

func (s StaticScorer) Score(ctx context.Context, content string) float64 {
	return clamp01(float64(s))
}

var numberPattern = regexp.MustCompile(`([0-9]*[.])?[0-9]+`)

// LLMScorer asks the model for an importance rating. Any failure, or a
// reply without a parseable number, yields the default importance so a
// scoring hiccup never blocks a write.
type LLMScorer struct {
	provider llm.Provider
	model    string
	logger   *zap.Logger
}

// NewLLMScorer creates a model-backed scorer. A nil logger disables
// logging.
func NewLLMScorer(provider llm.Provider, model string, logger *zap.Logger) *LLMScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMScorer{
		provider: provider,
		model:    model,
		logger:   logger.Named("memory.scorer"),
	}
}

const scorerSystemPrompt = "You are a memory assessment system that rates the importance of information."

func scorerPrompt(content string) string {
	return fmt.Sprintf(`Rate how important the following information is for an AI agent to remember.
Consider novelty, lasting value, key instructions or preferences, and relevance to the user's goals.

Information:
%q

Reply with a single decimal number between 0 and 1 and nothing else.`, content)
}

func (s *LLMScorer) Score(ctx context.Context, content string) float64 {
	resp, err := s.provider.Completion(ctx, &llm.ChatRequest{
		Model: s.model,
		Messages: []types.Message{
			types.NewSystemMessage(scorerSystemPrompt),
			types.NewUserMessage(scorerPrompt(content)),
		},
		MaxTokens: 10,
	})
	if err != nil {
		s.logger.Debug("importance scoring failed, using default", zap.Error(err))
		return types.DefaultImportance
	}

	text := llm.ResponseText(resp)
	match := numberPattern.FindString(text)
	if match == "" {
		s.logger.Debug("no numeric importance in reply", zap.String("reply", text))
		return types.DefaultImportance
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return types.DefaultImportance
	}
	return clamp01(value)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package retry wraps a Provider with bounded, linearly backed-off retries.
// Only errors marked retryable trigger another attempt; everything else is
// returned immediately.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/types"
)

// Policy configures retry behaviour.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the wait before the first retry. Subsequent retries wait
	// attempt*Delay (linear backoff).
	Delay time.Duration
	// OnRetry, when set, is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy used when none is supplied.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
	}
}

type provider struct {
	inner llm.Provider

	policy Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Wrap returns a Provider that retries retryable failures of inner.
// A nil logger disables logging.
func Wrap(inner llm.Provider, policy Policy, logger *zap.Logger) llm.Provider {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultPolicy().Delay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &provider{
		inner:  inner,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func (p *provider) Name() string { return p.inner.Name() }

func (p *provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * p.policy.Delay
			p.logger.Debug("retrying completion",
				zap.String("provider", p.inner.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if p.policy.OnRetry != nil {
				p.policy.OnRetry(attempt, lastErr, delay)
			}
			if err := p.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("retry cancelled: %w", err)
			}
		}

		resp, err := p.inner.Completion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			return nil, err
		}
	}

	p.logger.Warn("retries exhausted",
		zap.String("provider", p.inner.Name()),
		zap.Int("attempts", p.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("completion failed after %d attempts: %w", p.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

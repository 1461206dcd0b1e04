// Package retry provides retry middleware for LLM clients.
package retry

import (
	"context"
	"fmt"
	"time"

	fortifyretry "github.com/felixgeelhaar/fortify/retry"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
	"tinker/pkg/logx"
)

// Config controls the retry schedule.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultConfig returns three attempts with exponential backoff from one second.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2.0}
}

// Middleware returns a middleware that retries retryable LLM errors with
// exponential backoff. Errors llmerrors does not consider retryable are
// returned after the first attempt; exhausting the attempts on a retryable
// error yields a ServiceUnavailable error.
func Middleware(cfg Config, logger *logx.Logger) llm.Middleware {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultConfig().Multiplier
	}
	if logger == nil {
		logger = logx.Nop()
	}

	retrier := fortifyretry.New[llm.CompletionResponse](fortifyretry.Config{
		MaxAttempts:        cfg.MaxAttempts,
		InitialDelay:       cfg.InitialDelay,
		BackoffPolicy:      fortifyretry.BackoffExponential,
		Multiplier:         cfg.Multiplier,
		NonRetryableErrors: []error{context.Canceled, context.DeadlineExceeded},
	})

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(next, func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			var (
				permanent error
				attempts  int
			)
			resp, err := retrier.Do(ctx, func(ctx context.Context) (llm.CompletionResponse, error) {
				attempts++
				resp, err := next.Complete(ctx, req)
				if err == nil {
					return resp, nil
				}
				if !llmerrors.IsRetryable(err) {
					// Stop the retrier without another attempt.
					permanent = err
					return llm.CompletionResponse{}, nil
				}
				logger.Warn("LLM request attempt %d/%d failed: %v", attempts, cfg.MaxAttempts, err)
				return llm.CompletionResponse{}, err
			})
			if permanent != nil {
				return llm.CompletionResponse{}, permanent
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctxErr)
				}
				return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(err, attempts)
			}
			return resp, nil
		})
	}
}

// Package circuit provides circuit breaker middleware for LLM clients.
package circuit

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"

	"tinker/pkg/agent/llm"
	"tinker/pkg/agent/llmerrors"
	"tinker/pkg/logx"
)

// Config controls when the breaker opens and how long it stays open.
type Config struct {
	FailureThreshold int
	Timeout          time.Duration
}

// Middleware stops calling the provider after FailureThreshold consecutive
// failures until Timeout elapses. Calls rejected by an open breaker return a
// ServiceUnavailable error.
func Middleware(cfg Config, logger *logx.Logger) llm.Middleware {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}

	breaker := circuitbreaker.New[llm.CompletionResponse](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is positive
		},
	})

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(next, func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			invoked := false
			resp, err := breaker.Execute(ctx, func(ctx context.Context) (llm.CompletionResponse, error) {
				invoked = true
				return next.Complete(ctx, req)
			})
			if err != nil && !invoked {
				logger.Warn("Circuit breaker open for %s, request rejected", next.GetModelName())
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeServiceUnavailable, err, "circuit breaker open")
			}
			return resp, err
		})
	}
}

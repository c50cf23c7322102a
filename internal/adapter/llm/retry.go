package llm

import (
	"context"
	"log/slog"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

// RetryingClient wraps a chat provider with a bounded, fixed retry schedule.
// Every transport failure (429, other non-2xx statuses, connection errors)
// gets the same treatment: sleep the scheduled delay and retry until attempts
// are exhausted, then surface the last error. The schedule is fixed, not
// exponential and not jittered; attempts beyond the delay table reuse the
// last delay.
type RetryingClient struct {
	inner       domain.StreamingChatProvider
	maxAttempts int
	delays      []time.Duration
	logger      *slog.Logger
}

// NewRetryingClient wraps inner with the configured retry schedule.
// Zero or missing config fields fall back to 3 attempts with delays of
// 100ms, 500ms, and 1000ms.
func NewRetryingClient(inner domain.StreamingChatProvider, cfg config.RetryConfig, logger *slog.Logger) *RetryingClient {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	delays := cfg.Delays
	if len(delays) == 0 {
		delays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}
	}

	return &RetryingClient{
		inner:       inner,
		maxAttempts: maxAttempts,
		delays:      delays,
		logger:      logger,
	}
}

// Chat performs one chat-completion request with bounded retries.
func (r *RetryingClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < r.maxAttempts-1 {
			if err := r.sleep(ctx, attempt, err); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// ChatStream retries opening the event stream; once a stream is established,
// chunk-level failures are the consumer's concern.
func (r *RetryingClient) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		ch, err := r.inner.ChatStream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		if attempt < r.maxAttempts-1 {
			if err := r.sleep(ctx, attempt, err); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// Name implements domain.ChatProvider.
func (r *RetryingClient) Name() string { return r.inner.Name() }

// delayFor returns the scheduled delay after a failed attempt (0-based).
func (r *RetryingClient) delayFor(attempt int) time.Duration {
	if attempt >= len(r.delays) {
		return r.delays[len(r.delays)-1]
	}
	return r.delays[attempt]
}

func (r *RetryingClient) sleep(ctx context.Context, attempt int, cause error) error {
	delay := r.delayFor(attempt)
	r.logger.Info("retrying llm call",
		"attempt", attempt+1,
		"delay", delay,
		"error", cause,
	)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

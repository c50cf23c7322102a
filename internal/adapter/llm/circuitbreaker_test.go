package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := &flakyProvider{failFirst: 100, err: domain.ErrServerError}
	client := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 3,
		Timeout:     time.Minute,
		Interval:    time.Minute,
	}, newTestLogger())

	for i := 0; i < 3; i++ {
		if _, err := client.Chat(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatalf("attempt %d: expected an error", i)
		}
	}

	if got := client.State(); got != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	before := inner.calls.Load()
	_, err := client.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if inner.calls.Load() != before {
		t.Error("open breaker must not reach the provider")
	}
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	inner := &flakyProvider{}
	client := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 3,
	}, newTestLogger())

	resp, err := client.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "attempt 1" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if got := client.State(); got != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

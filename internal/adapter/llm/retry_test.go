package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

type flakyProvider struct {
	calls       atomic.Int32
	streamCalls atomic.Int32
	failFirst   int32
	err         error
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	n := p.calls.Add(1)
	if n <= p.failFirst {
		return nil, p.err
	}
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("attempt %d", n)},
	}, nil
}

func (p *flakyProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	n := p.streamCalls.Add(1)
	if n <= p.failFirst {
		return nil, p.err
	}
	ch := make(chan domain.StreamDelta, 1)
	ch <- domain.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func testDelays() []time.Duration {
	return []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
}

func TestRetryingClientSucceedsFirstAttempt(t *testing.T) {
	inner := &flakyProvider{}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: testDelays()}, newTestLogger())

	resp, err := client.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if resp.Message.Content != "attempt 1" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestRetryingClientRecovers(t *testing.T) {
	inner := &flakyProvider{failFirst: 2, err: domain.ErrRateLimit}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: testDelays()}, newTestLogger())

	resp, err := client.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if resp.Message.Content != "attempt 3" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestRetryingClientExhaustsAttempts(t *testing.T) {
	wantErr := domain.ErrServerError
	inner := &flakyProvider{failFirst: 100, err: wantErr}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: testDelays()}, newTestLogger())

	_, err := client.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want exactly 3 (no extra attempt)", got)
	}
}

func TestRetryingClientRateLimitSameSchedule(t *testing.T) {
	// 429 follows the same fixed schedule as any other failure.
	inner := &flakyProvider{failFirst: 100, err: domain.ErrRateLimit}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: testDelays()}, newTestLogger())

	_, err := client.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("error = %v, want ErrRateLimit", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetryingClientDelayTable(t *testing.T) {
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}
	client := NewRetryingClient(&flakyProvider{}, config.RetryConfig{MaxAttempts: 5, Delays: delays}, newTestLogger())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, time.Second},
		{7, time.Second},
	}
	for _, tt := range tests {
		if got := client.delayFor(tt.attempt); got != tt.want {
			t.Errorf("delayFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryingClientContextCancel(t *testing.T) {
	inner := &flakyProvider{failFirst: 100, err: domain.ErrServerError}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: []time.Duration{time.Hour}}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Chat(ctx, domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancel did not interrupt the backoff sleep")
	}
}

func TestRetryingClientStreamRetriesOpenOnly(t *testing.T) {
	inner := &flakyProvider{failFirst: 2, err: domain.ErrServerError}
	client := NewRetryingClient(inner, config.RetryConfig{MaxAttempts: 3, Delays: testDelays()}, newTestLogger())

	ch, err := client.ChatStream(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	for range ch {
	}
	if got := inner.streamCalls.Load(); got != 3 {
		t.Errorf("stream opens = %d, want 3", got)
	}
}

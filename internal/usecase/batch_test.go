package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dealdesk/internal/domain"
)

// concurrentProvider answers every prompt after a short pause and tracks how
// many calls run at the same time.
type concurrentProvider struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	failOn   string
}

func (p *concurrentProvider) Name() string { return "concurrent" }

func (p *concurrentProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	if p.failOn != "" && prompt == p.failOn {
		return nil, errors.New("model unavailable")
	}
	resp := textResponse("answer: " + prompt)
	return &resp, nil
}

func (p *concurrentProvider) ChatStream(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return nil, errors.New("not used")
}

func TestChatBatchOrderAndIsolation(t *testing.T) {
	provider := &concurrentProvider{failOn: "p2"}
	agent := NewAgent(AgentDeps{
		LLM:      provider,
		Tools:    newFakeDispatcher(),
		Executor: &fakeExecutor{},
		Logger:   newTestLogger(),
	})

	prompts := []string{"p0", "p1", "p2", "p3"}
	items := agent.ChatBatch(context.Background(), prompts, BatchOptions{})

	if len(items) != 4 {
		t.Fatalf("items = %d, want 4", len(items))
	}
	for i, item := range items {
		if item.Index != i || item.Prompt != prompts[i] {
			t.Errorf("item %d = %+v, results must keep prompt order", i, item)
		}
	}
	if items[2].Error == "" || items[2].Reply != "" {
		t.Errorf("failed item = %+v, want error only", items[2])
	}
	for _, i := range []int{0, 1, 3} {
		if items[i].Error != "" || items[i].Reply != "answer: "+prompts[i] {
			t.Errorf("item %d = %+v, one failure must not affect the others", i, items[i])
		}
	}
}

func TestChatBatchConcurrencyLimit(t *testing.T) {
	provider := &concurrentProvider{}
	agent := NewAgent(AgentDeps{
		LLM:      provider,
		Tools:    newFakeDispatcher(),
		Executor: &fakeExecutor{},
		Logger:   newTestLogger(),
	})

	prompts := make([]string, 12)
	for i := range prompts {
		prompts[i] = "p"
	}
	agent.ChatBatch(context.Background(), prompts, BatchOptions{Concurrency: 2})

	if provider.peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", provider.peak.Load())
	}
}

func TestChatBatchItemTimeout(t *testing.T) {
	provider := &concurrentProvider{}
	agent := NewAgent(AgentDeps{
		LLM:      provider,
		Tools:    newFakeDispatcher(),
		Executor: &fakeExecutor{},
		Logger:   newTestLogger(),
	})

	items := agent.ChatBatch(context.Background(), []string{"p"}, BatchOptions{ItemTimeout: time.Nanosecond})

	if items[0].Error == "" {
		t.Errorf("item = %+v, want a timeout error", items[0])
	}
}

package usecase

import (
	"context"
	"sync"
	"time"
)

// BatchItem is the outcome of one prompt in a batch run. Either Reply or
// Error is set.
type BatchItem struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Reply  string `json:"reply,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchOptions controls a batch run.
type BatchOptions struct {
	Concurrency int
	ItemTimeout time.Duration
}

// ChatBatch runs each prompt as an independent conversation under a fixed
// concurrency limit. A failing item does not affect the others; the result
// slice always has one entry per prompt, in order.
func (a *Agent) ChatBatch(ctx context.Context, prompts []string, opts BatchOptions) []BatchItem {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}

	results := make([]BatchItem, len(prompts))
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for i, prompt := range prompts {
		wg.Add(1)
		go func(idx int, prompt string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			itemCtx := ctx
			if opts.ItemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, opts.ItemTimeout)
				defer cancel()
			}

			item := BatchItem{Index: idx, Prompt: prompt}
			reply, err := a.Chat(itemCtx, NewSession(), prompt)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Reply = reply
			}
			results[idx] = item
		}(i, prompt)
	}

	wg.Wait()
	return results
}

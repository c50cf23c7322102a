package usecase

import (
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"dealdesk/internal/domain"
)

// ContextGuard keeps the outbound prompt under a token budget by trimming
// the oldest history when it grows too large.
type ContextGuard struct {
	maxTokens int
	enc       *tiktoken.Tiktoken
	logger    *slog.Logger
}

// NewContextGuard creates a guard using the named tiktoken encoding.
func NewContextGuard(maxTokens int, encoding string, logger *slog.Logger) (*ContextGuard, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if maxTokens <= 0 {
		maxTokens = 128000
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &ContextGuard{maxTokens: maxTokens, enc: enc, logger: logger}, nil
}

// CountMessages estimates the token size of the given history. A small
// per-message overhead approximates the chat framing tokens.
func (g *ContextGuard) CountMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += len(g.enc.Encode(m.Content, nil, nil)) + 4
		for _, tc := range m.ToolCalls {
			total += len(g.enc.Encode(tc.Name, nil, nil))
			total += len(g.enc.Encode(string(tc.Arguments), nil, nil))
		}
	}
	return total
}

// Enforce trims the session history until it fits the budget. Trimming
// drops the oldest half of the messages at a time and then strips leading
// tool messages so the history never starts with an orphaned tool result.
func (g *ContextGuard) Enforce(session *Session) {
	for i := 0; i < 8; i++ {
		messages := session.Messages()
		tokens := g.CountMessages(messages)
		if tokens <= g.maxTokens || len(messages) <= 2 {
			return
		}

		keep := len(messages) / 2
		if keep < 2 {
			keep = 2
		}
		g.logger.Warn("trimming session history over token budget",
			"session", session.ID, "tokens", tokens, "budget", g.maxTokens,
			"messages", len(messages), "keep", keep)
		session.Truncate(keep)
		stripLeadingToolMessages(session)
	}
}

// stripLeadingToolMessages drops tool results whose assistant tool_calls
// message was trimmed away.
func stripLeadingToolMessages(session *Session) {
	for {
		messages := session.Messages()
		if len(messages) == 0 || messages[0].Role != domain.RoleTool {
			return
		}
		session.Truncate(len(messages) - 1)
	}
}

package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"dealdesk/internal/domain"
)

// SearchEmailsTool lets the LLM search the synced mailbox cache.
type SearchEmailsTool struct {
	store  domain.CacheStore
	logger *slog.Logger
}

// NewSearchEmailsTool creates an email search tool backed by the cache store.
func NewSearchEmailsTool(store domain.CacheStore, logger *slog.Logger) *SearchEmailsTool {
	return &SearchEmailsTool{store: store, logger: logger}
}

func (t *SearchEmailsTool) Name() string { return "search_emails" }
func (t *SearchEmailsTool) Description() string {
	return "Search synced mailbox messages by subject, sender, or body preview."
}

func (t *SearchEmailsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Substring matched against subject, sender, and preview"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of messages to return (default 25)"
				}
			},
			"required": ["query"]
		}`),
	}
}

type searchEmailsParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (t *SearchEmailsTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.search_emails", t.logger, params, t.handle)
}

func (t *SearchEmailsTool) handle(ctx context.Context, _ trace.Span, p searchEmailsParams) (any, error) {
	if err := RequireField("query", p.Query); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultQueryLimit
	}

	emails, err := t.store.SearchEmails(ctx, p.Query, p.Limit)
	if err != nil {
		return nil, err
	}

	return struct {
		Count    int                   `json:"count"`
		Messages []domain.EmailMessage `json:"messages"`
	}{Count: len(emails), Messages: emails}, nil
}

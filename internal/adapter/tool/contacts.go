package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"dealdesk/internal/domain"
)

// QueryContactsTool lets the LLM look up cached CRM contacts by name,
// email, or organization.
type QueryContactsTool struct {
	store  domain.CacheStore
	logger *slog.Logger
}

// NewQueryContactsTool creates a contact query tool backed by the cache store.
func NewQueryContactsTool(store domain.CacheStore, logger *slog.Logger) *QueryContactsTool {
	return &QueryContactsTool{store: store, logger: logger}
}

func (t *QueryContactsTool) Name() string { return "query_contacts" }
func (t *QueryContactsTool) Description() string {
	return "Search cached CRM contacts by name, email, or organization name."
}

func (t *QueryContactsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Substring matched against contact name, email, and organization"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of contacts to return (default 25)"
				}
			}
		}`),
	}
}

type queryContactsParams struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (t *QueryContactsTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.query_contacts", t.logger, params, t.handle)
}

func (t *QueryContactsTool) handle(ctx context.Context, _ trace.Span, p queryContactsParams) (any, error) {
	if p.Limit <= 0 {
		p.Limit = defaultQueryLimit
	}

	persons, err := t.store.QueryPersons(ctx, p.Query, p.Limit)
	if err != nil {
		return nil, err
	}

	return struct {
		Count    int             `json:"count"`
		Contacts []domain.Person `json:"contacts"`
	}{Count: len(persons), Contacts: persons}, nil
}

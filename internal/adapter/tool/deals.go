package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"dealdesk/internal/domain"
)

const defaultQueryLimit = 25

// QueryDealsTool lets the LLM query the cached deal pipeline.
type QueryDealsTool struct {
	store  domain.CacheStore
	logger *slog.Logger
}

// NewQueryDealsTool creates a deal query tool backed by the cache store.
func NewQueryDealsTool(store domain.CacheStore, logger *slog.Logger) *QueryDealsTool {
	return &QueryDealsTool{store: store, logger: logger}
}

func (t *QueryDealsTool) Name() string { return "query_deals" }
func (t *QueryDealsTool) Description() string {
	return "Query cached CRM deals, optionally filtered by status, stage, organization, or minimum value."
}

func (t *QueryDealsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {
					"type": "string",
					"enum": ["open", "won", "lost"],
					"description": "Filter by deal status"
				},
				"stage": {
					"type": "string",
					"description": "Filter by pipeline stage name"
				},
				"org_id": {
					"type": "integer",
					"description": "Filter by organization ID"
				},
				"min_value": {
					"type": "number",
					"description": "Only deals worth at least this much"
				},
				"limit": {
					"type": "integer",
					"description": "Maximum number of deals to return (default 25)"
				}
			}
		}`),
	}
}

type queryDealsParams struct {
	Status   string  `json:"status,omitempty"`
	Stage    string  `json:"stage,omitempty"`
	OrgID    int64   `json:"org_id,omitempty"`
	MinValue float64 `json:"min_value,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

func (t *QueryDealsTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.query_deals", t.logger, params, t.handle)
}

func (t *QueryDealsTool) handle(ctx context.Context, _ trace.Span, p queryDealsParams) (any, error) {
	if err := ValidateEnum("status", p.Status,
		domain.DealStatusOpen, domain.DealStatusWon, domain.DealStatusLost); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultQueryLimit
	}

	deals, err := t.store.QueryDeals(ctx, domain.DealFilter{
		Status:   p.Status,
		Stage:    p.Stage,
		OrgID:    p.OrgID,
		MinValue: p.MinValue,
		Limit:    p.Limit,
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("deals queried", "status", p.Status, "count", len(deals))
	return struct {
		Count int           `json:"count"`
		Deals []domain.Deal `json:"deals"`
	}{Count: len(deals), Deals: deals}, nil
}

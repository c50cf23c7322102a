package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"dealdesk/internal/domain"
)

const (
	defaultForecastMonths = 3
	maxForecastMonths     = 12
)

// stageProbability weights an open deal's value by how far along it is.
var stageProbability = map[string]float64{
	"qualified":   0.25,
	"proposal":    0.5,
	"negotiation": 0.75,
}

const defaultProbability = 0.4

// PredictCashflowTool projects expected cashflow from the open deal pipeline.
type PredictCashflowTool struct {
	store  domain.CacheStore
	logger *slog.Logger
	now    func() time.Time
}

// NewPredictCashflowTool creates a cashflow projection tool backed by the
// cache store.
func NewPredictCashflowTool(store domain.CacheStore, logger *slog.Logger) *PredictCashflowTool {
	return &PredictCashflowTool{store: store, logger: logger, now: time.Now}
}

func (t *PredictCashflowTool) Name() string { return "predict_cashflow" }
func (t *PredictCashflowTool) Description() string {
	return "Project expected and best-case cashflow per month from the open deal pipeline."
}

func (t *PredictCashflowTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"months": {
					"type": "integer",
					"description": "Number of months to project, 1-12 (default 3)"
				}
			}
		}`),
	}
}

type predictCashflowParams struct {
	Months int `json:"months,omitempty"`
}

func (t *PredictCashflowTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.predict_cashflow", t.logger, params, t.handle)
}

func (t *PredictCashflowTool) handle(ctx context.Context, _ trace.Span, p predictCashflowParams) (any, error) {
	if p.Months == 0 {
		p.Months = defaultForecastMonths
	}
	if p.Months < 1 || p.Months > maxForecastMonths {
		return nil, fmt.Errorf("months must be 1-%d", maxForecastMonths)
	}

	deals, err := t.store.QueryDeals(ctx, domain.DealFilter{Status: domain.DealStatusOpen})
	if err != nil {
		return nil, err
	}

	start := t.now()
	points := make([]domain.CashflowPoint, p.Months)
	for i := range points {
		points[i].Month = start.AddDate(0, i, 0).Format("2006-01")
	}

	for _, d := range deals {
		idx := 0
		if d.CloseTime != nil {
			idx = monthsBetween(start, *d.CloseTime)
		}
		// Deals closing before the window or without a close date land in
		// the first month; deals beyond the window are excluded.
		if idx < 0 {
			idx = 0
		}
		if idx >= p.Months {
			continue
		}

		prob, ok := stageProbability[d.Stage]
		if !ok {
			prob = defaultProbability
		}
		points[idx].Expected += d.Value * prob
		points[idx].BestCase += d.Value
	}

	return struct {
		Months    int                    `json:"months"`
		OpenDeals int                    `json:"open_deals"`
		Points    []domain.CashflowPoint `json:"points"`
	}{Months: p.Months, OpenDeals: len(deals), Points: points}, nil
}

// monthsBetween counts whole calendar months from a to b.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

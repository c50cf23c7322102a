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

// CreateBonusTool proposes a sales bonus entry. Execute returns a pending
// action for the user to confirm; Commit performs the insert.
type CreateBonusTool struct {
	store  domain.CacheStore
	logger *slog.Logger
}

// NewCreateBonusTool creates a bonus write tool backed by the cache store.
func NewCreateBonusTool(store domain.CacheStore, logger *slog.Logger) *CreateBonusTool {
	return &CreateBonusTool{store: store, logger: logger}
}

func (t *CreateBonusTool) Name() string { return "create_bonus" }
func (t *CreateBonusTool) Description() string {
	return "Create a sales bonus entry for an employee. Requires user confirmation before the bonus is recorded."
}

func (t *CreateBonusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"employee": {
					"type": "string",
					"description": "Name of the employee receiving the bonus"
				},
				"amount": {
					"type": "number",
					"description": "Bonus amount, must be positive"
				},
				"currency": {
					"type": "string",
					"description": "ISO currency code (default EUR)"
				},
				"reason": {
					"type": "string",
					"description": "Why the bonus is granted"
				},
				"deal_id": {
					"type": "integer",
					"description": "Deal this bonus relates to, if any"
				}
			},
			"required": ["employee", "amount"]
		}`),
	}
}

type createBonusParams struct {
	Employee string  `json:"employee"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	DealID   int64   `json:"deal_id,omitempty"`
}

func (t *CreateBonusTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.create_bonus", t.logger, params, t.propose)
}

// propose validates the request and returns a pending action instead of
// writing anything. The mutation happens in Commit after confirmation.
func (t *CreateBonusTool) propose(_ context.Context, _ trace.Span, p createBonusParams) (any, error) {
	if err := ValidateAll(
		RequireField("employee", p.Employee),
		ValidatePositive("amount", p.Amount),
	); err != nil {
		return nil, err
	}
	if p.Currency == "" {
		p.Currency = "EUR"
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal bonus payload: %w", err)
	}

	preview := fmt.Sprintf("Create a %.2f %s bonus for %s", p.Amount, p.Currency, p.Employee)
	if p.Reason != "" {
		preview += " (" + p.Reason + ")"
	}

	return domain.PendingResult(domain.PendingAction{
		ToolName:  t.Name(),
		Preview:   preview,
		Payload:   payload,
		CreatedAt: time.Now(),
	}), nil
}

// Commit records the confirmed bonus.
func (t *CreateBonusTool) Commit(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p createBonusParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal bonus payload: %w", err)
	}

	bonus := &domain.Bonus{
		Employee:  p.Employee,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reason:    p.Reason,
		DealID:    p.DealID,
		CreatedAt: time.Now(),
	}
	if err := t.store.InsertBonus(ctx, bonus); err != nil {
		return nil, err
	}

	t.logger.Info("bonus created", "id", bonus.ID, "employee", bonus.Employee, "amount", bonus.Amount)
	return json.Marshal(bonus)
}

var _ domain.WriteTool = (*CreateBonusTool)(nil)

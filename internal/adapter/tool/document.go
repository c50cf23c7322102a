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

// CreateDocumentTool proposes a dashboard document. Execute returns a pending
// action for the user to confirm; Commit performs the insert.
type CreateDocumentTool struct {
	store  domain.CacheStore
	logger *slog.Logger
}

// NewCreateDocumentTool creates a document write tool backed by the cache store.
func NewCreateDocumentTool(store domain.CacheStore, logger *slog.Logger) *CreateDocumentTool {
	return &CreateDocumentTool{store: store, logger: logger}
}

func (t *CreateDocumentTool) Name() string { return "create_document" }
func (t *CreateDocumentTool) Description() string {
	return "Create a dashboard document, optionally attached to a deal. Requires user confirmation before the document is saved."
}

func (t *CreateDocumentTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {
					"type": "string",
					"description": "Document title"
				},
				"body": {
					"type": "string",
					"description": "Document body text"
				},
				"deal_id": {
					"type": "integer",
					"description": "Deal this document belongs to, if any"
				}
			},
			"required": ["title", "body"]
		}`),
	}
}

type createDocumentParams struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	DealID int64  `json:"deal_id,omitempty"`
}

func (t *CreateDocumentTool) Execute(ctx context.Context, params json.RawMessage) (domain.ToolResult, error) {
	return Execute(ctx, "tool.create_document", t.logger, params, t.propose)
}

func (t *CreateDocumentTool) propose(_ context.Context, _ trace.Span, p createDocumentParams) (any, error) {
	if err := ValidateAll(
		RequireField("title", p.Title),
		RequireField("body", p.Body),
	); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal document payload: %w", err)
	}

	preview := fmt.Sprintf("Create document %q (%d bytes)", p.Title, len(p.Body))
	if p.DealID != 0 {
		preview += fmt.Sprintf(" attached to deal %d", p.DealID)
	}

	return domain.PendingResult(domain.PendingAction{
		ToolName:  t.Name(),
		Preview:   preview,
		Payload:   payload,
		CreatedAt: time.Now(),
	}), nil
}

// Commit saves the confirmed document.
func (t *CreateDocumentTool) Commit(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p createDocumentParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshal document payload: %w", err)
	}

	now := time.Now()
	doc := &domain.Document{
		Title:     p.Title,
		Body:      p.Body,
		DealID:    p.DealID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	t.logger.Info("document created", "id", doc.ID, "title", doc.Title)
	return json.Marshal(doc)
}

var _ domain.WriteTool = (*CreateDocumentTool)(nil)

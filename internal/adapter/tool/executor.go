package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"dealdesk/internal/domain"
)

// CommitExecutor performs confirmed pending actions by committing the write
// tool that proposed them.
type CommitExecutor struct {
	registry *Registry
}

// NewCommitExecutor creates an executor backed by the given registry.
func NewCommitExecutor(registry *Registry) *CommitExecutor {
	return &CommitExecutor{registry: registry}
}

// ExecuteAction commits the action's tool with the payload captured at
// proposal time.
func (e *CommitExecutor) ExecuteAction(ctx context.Context, action domain.PendingAction) (json.RawMessage, error) {
	t, err := e.registry.Get(action.ToolName)
	if err != nil {
		return nil, err
	}
	wt, ok := t.(domain.WriteTool)
	if !ok {
		return nil, fmt.Errorf("tool %q cannot commit actions", action.ToolName)
	}
	return wt.Commit(ctx, action.Payload)
}

var _ domain.ActionExecutor = (*CommitExecutor)(nil)

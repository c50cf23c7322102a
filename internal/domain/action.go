package domain

import (
	"encoding/json"
	"time"
)

// PendingAction is a proposed write operation awaiting explicit user
// confirmation. At most one exists per agent at a time; it persists until
// confirmed, cancelled, or overwritten by a newer proposal.
type PendingAction struct {
	ToolName  string          `json:"tool_name"`
	Preview   string          `json:"preview"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// pendingEnvelope matches the marker a write tool embeds in its result data.
type pendingEnvelope struct {
	PendingAction *PendingAction `json:"pending_action"`
}

// PendingActionFrom extracts a pending-action marker from tool result data.
// This is the sole contract by which the agent learns it must gate execution.
// Returns nil if the data carries no marker.
func PendingActionFrom(data json.RawMessage) *PendingAction {
	if len(data) == 0 {
		return nil
	}
	var env pendingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.PendingAction == nil || env.PendingAction.ToolName == "" {
		return nil
	}
	if env.PendingAction.CreatedAt.IsZero() {
		env.PendingAction.CreatedAt = time.Now()
	}
	return env.PendingAction
}

// PendingResult wraps a PendingAction into the tool result a write tool
// returns from Execute.
func PendingResult(action PendingAction) ToolResult {
	data, err := json.Marshal(pendingEnvelope{PendingAction: &action})
	if err != nil {
		return ErrorResult("marshal pending action: %v", err)
	}
	return ToolResult{OK: true, Data: data}
}

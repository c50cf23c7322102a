package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
// Parameters is a JSON Schema object written as a data literal per tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
// Arguments are opaque text until parsed.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of exactly one tool invocation.
// Either Data (OK) or Error (!OK) is set, never both.
type ToolResult struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// DataResult marshals v into a success ToolResult.
func DataResult(v any) ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("marshal result: %v", err)
	}
	return ToolResult{OK: true, Data: data}
}

// RawResult wraps pre-marshaled JSON in a success ToolResult.
func RawResult(data json.RawMessage) ToolResult {
	return ToolResult{OK: true, Data: data}
}

// ErrorResult creates a failure ToolResult.
func ErrorResult(format string, args ...any) ToolResult {
	return ToolResult{OK: false, Error: fmt.Sprintf(format, args...)}
}

// FeedbackContent renders the result as the content of a tool message fed
// back to the model: the raw data on success, {"error": ...} on failure.
func (r ToolResult) FeedbackContent() string {
	if r.OK {
		return string(r.Data)
	}
	payload, err := json.Marshal(map[string]string{"error": r.Error})
	if err != nil {
		return `{"error":"unserializable tool error"}`
	}
	return string(payload)
}

// Tool is the interface every tool must implement. Read tools return data
// directly; write tools return a confirmation request (see PendingAction)
// instead of executing immediately.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (ToolResult, error)
}

// WriteTool is a tool whose Execute proposes a mutation as a PendingAction.
// Commit performs the mutation once the user has confirmed it.
type WriteTool interface {
	Tool
	Commit(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// ToolDispatcher abstracts tool lookup, schema listing, and execution.
type ToolDispatcher interface {
	// Execute looks up and runs the named tool. Failures of any kind are
	// converted into a ToolResult with OK=false; Execute never panics.
	Execute(ctx context.Context, name string, params json.RawMessage) ToolResult
	// Schemas returns all tool schemas in registration order.
	Schemas() []ToolSchema
}

// ActionExecutor performs a confirmed pending action.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, action PendingAction) (json.RawMessage, error)
}

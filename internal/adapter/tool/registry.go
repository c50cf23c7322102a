package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"dealdesk/internal/domain"
)

// Registry holds named tools and dispatches calls to them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on Register;
// compilation errors are logged and the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Re-registering a name replaces the previous tool and
// keeps its original position in Schemas.
func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas returns all tool schemas in registration order for LLM
// function-calling.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Execute looks up and runs the named tool. Every failure mode, including a
// panicking tool, comes back as an error result rather than an error or a
// crash: the model gets the failure as feedback and the conversation goes on.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (result domain.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("tool panicked", "tool", name, "panic", rec)
			}
			result = domain.ErrorResult("tool '%s' panicked: %v", name, rec)
		}
	}()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrorResult("tool '%s' not found", name)
	}

	res, err := t.Execute(ctx, params)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("tool execution failed", "tool", name, "error", err)
		}
		return domain.ErrorResult("%v", err)
	}
	return res
}

var _ domain.ToolDispatcher = (*Registry)(nil)

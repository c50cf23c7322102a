package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/tracer"
)

// emptyArgs replaces tool-call arguments that are missing or not valid JSON.
var emptyArgs = json.RawMessage(`{}`)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	LLM           domain.StreamingChatProvider
	Tools         domain.ToolDispatcher
	Executor      domain.ActionExecutor
	Logger        *slog.Logger
	SystemPrompt  string
	MaxIterations int
	ContextGuard  *ContextGuard // optional, nil = no token budget guard
}

// Agent orchestrates the receive-think-act loop over the chat provider.
type Agent struct {
	deps AgentDeps
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	return &Agent{deps: deps}
}

// Chat processes a single user message and returns the final reply.
//
// When the session carries a pending write action, the message is first
// checked against the confirmation gate: a clear yes commits the action, a
// clear no discards it, and anything else is treated as a normal turn with
// the pending action kept armed.
func (a *Agent) Chat(ctx context.Context, session *Session, userMsg string) (string, error) {
	session.turn.Lock()
	defer session.turn.Unlock()

	ctx, span := tracer.StartSpan(ctx, "agent.chat")
	defer span.End()

	if reply, handled := a.resolvePending(ctx, session, userMsg); handled {
		tracer.SetOK(span)
		return reply, nil
	}

	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userMsg})

	var lastText string
	for i := 0; i < a.deps.MaxIterations; i++ {
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		resp, err := a.deps.LLM.Chat(ctx, a.buildRequest(session, false))
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}

		msg := resp.Message
		session.AddMessage(msg)
		lastText = msg.Content

		a.deps.Logger.Debug("llm response",
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			return msg.Content, nil
		}

		for _, call := range msg.ToolCalls {
			a.dispatchCall(ctx, session, call)
		}
	}

	// Iteration cap reached: a soft stop, whatever text the model produced
	// last is the reply.
	a.deps.Logger.Warn("iteration cap reached", "session", session.ID, "cap", a.deps.MaxIterations)
	tracer.SetOK(span)
	return lastText, nil
}

// dispatchCall runs one tool call, arms the session's pending action when the
// result proposes one, and feeds the result back into the history.
func (a *Agent) dispatchCall(ctx context.Context, session *Session, call domain.ToolCall) domain.ToolResult {
	result := a.deps.Tools.Execute(ctx, call.Name, normalizeArgs(call.Arguments))

	if result.OK {
		if pending := domain.PendingActionFrom(result.Data); pending != nil {
			session.SetPending(pending)
		}
	}

	session.AddMessage(domain.Message{
		Role:       domain.RoleTool,
		ToolCallID: call.ID,
		Content:    result.FeedbackContent(),
	})
	return result
}

// resolvePending applies the confirmation gate. It reports handled=true when
// the message resolved the pending action and the returned reply is final.
func (a *Agent) resolvePending(ctx context.Context, session *Session, userMsg string) (string, bool) {
	if session.Pending() == nil {
		return "", false
	}

	switch ClassifyReply(userMsg) {
	case ReplyAffirmative:
		// Take-and-clear is atomic: even if two confirmations race past
		// the check above, only one obtains the action to commit.
		pending := session.TakePending()
		if pending == nil {
			return "", false
		}
		session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userMsg})

		var reply string
		if _, err := a.deps.Executor.ExecuteAction(ctx, *pending); err != nil {
			a.deps.Logger.Error("confirmed action failed",
				"tool", pending.ToolName, "error", err)
			reply = fmt.Sprintf("The action failed: %v", err)
		} else {
			a.deps.Logger.Info("pending action committed", "tool", pending.ToolName)
			reply = "Done. " + pending.Preview + "."
		}
		session.AddMessage(domain.Message{Role: domain.RoleAssistant, Content: reply})
		return reply, true

	case ReplyNegative:
		pending := session.TakePending()
		if pending == nil {
			return "", false
		}
		session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userMsg})
		reply := "Okay, I won't proceed with: " + pending.Preview + "."
		session.AddMessage(domain.Message{Role: domain.RoleAssistant, Content: reply})
		a.deps.Logger.Info("pending action cancelled", "tool", pending.ToolName)
		return reply, true

	default:
		// Ambiguous: keep the pending action armed, handle as a normal turn.
		return "", false
	}
}

// buildRequest assembles the outbound prompt: system message plus the full
// session history, with tool schemas attached.
func (a *Agent) buildRequest(session *Session, stream bool) domain.ChatRequest {
	if a.deps.ContextGuard != nil {
		a.deps.ContextGuard.Enforce(session)
	}

	history := session.Messages()
	messages := make([]domain.Message, 0, len(history)+1)
	if a.deps.SystemPrompt != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: a.deps.SystemPrompt})
	}
	messages = append(messages, history...)

	return domain.ChatRequest{
		Messages: messages,
		Tools:    a.deps.Tools.Schemas(),
		Stream:   stream,
	}
}

// normalizeArgs returns the arguments as-is when they are valid JSON and an
// empty object otherwise.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || !json.Valid(args) {
		return emptyArgs
	}
	return args
}

// ChatStream processes a user message with incremental output. The returned
// channel carries text fragments as they arrive, tool call announcements and
// results as they happen, and ends with exactly one done or error chunk.
func (a *Agent) ChatStream(ctx context.Context, session *Session, userMsg string) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk, 16)

	go func() {
		defer close(out)

		session.turn.Lock()
		defer session.turn.Unlock()

		ctx, span := tracer.StartSpan(ctx, "agent.chat_stream")
		defer span.End()

		if reply, handled := a.resolvePending(ctx, session, userMsg); handled {
			a.emit(ctx, out, domain.TextChunk(reply))
			a.emit(ctx, out, domain.DoneChunk())
			tracer.SetOK(span)
			return
		}

		session.AddMessage(domain.Message{Role: domain.RoleUser, Content: userMsg})
		a.streamTurn(ctx, span, session, out, 0)
	}()

	return out
}

// streamTurn runs one streaming model turn and recurses after tool dispatch.
func (a *Agent) streamTurn(ctx context.Context, span trace.Span, session *Session, out chan<- domain.StreamChunk, depth int) {
	if depth >= a.deps.MaxIterations {
		a.deps.Logger.Warn("iteration cap reached", "session", session.ID, "cap", a.deps.MaxIterations)
		a.emit(ctx, out, domain.DoneChunk())
		return
	}
	span.AddEvent("agent.stream_iteration", trace.WithAttributes(tracer.IntAttr("iteration", depth)))

	deltaCh, err := a.deps.LLM.ChatStream(ctx, a.buildRequest(session, true))
	if err != nil {
		tracer.RecordError(span, err)
		a.emit(ctx, out, domain.ErrorChunk(err))
		return
	}

	acc := newSlotAccumulator()
	var text strings.Builder
	for delta := range deltaCh {
		if delta.Err != nil {
			tracer.RecordError(span, delta.Err)
			a.emit(ctx, out, domain.ErrorChunk(delta.Err))
			return
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !a.emit(ctx, out, domain.TextChunk(delta.Content)) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			if name := acc.add(tc); name != "" {
				if !a.emit(ctx, out, domain.ToolCallChunk(name)) {
					return
				}
			}
		}
	}
	if ctx.Err() != nil {
		return
	}

	calls := acc.calls()
	assistant := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text.String(),
		ToolCalls: calls,
	}
	session.AddMessage(assistant)

	if len(calls) == 0 {
		tracer.SetOK(span)
		a.emit(ctx, out, domain.DoneChunk())
		return
	}

	for _, call := range calls {
		result := a.dispatchCall(ctx, session, call)
		if !a.emit(ctx, out, domain.ToolResultChunk(call.Name, result)) {
			return
		}
	}

	a.streamTurn(ctx, span, session, out, depth+1)
}

// emit sends a chunk unless the consumer is gone. Returns false when the
// context was cancelled.
func (a *Agent) emit(ctx context.Context, out chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// maxToolCallSlots bounds the accumulator arena. Indices beyond it are
// dropped to keep malformed deltas from exhausting memory.
const maxToolCallSlots = 50

// slotAccumulator reassembles streamed tool calls into complete calls. Slots
// are keyed by the wire index carried on each fragment: ID and Name
// overwrite the slot, Arguments fragments concatenate onto it.
type slotAccumulator struct {
	slots     []domain.ToolCall
	announced []bool
}

func newSlotAccumulator() *slotAccumulator {
	return &slotAccumulator{}
}

// add merges one fragment and returns the tool name the first time a slot
// learns it, so the caller can announce the call as soon as it is known.
func (acc *slotAccumulator) add(delta domain.ToolCallDelta) string {
	idx := delta.Index
	if idx < 0 || idx >= maxToolCallSlots {
		return ""
	}

	for len(acc.slots) <= idx {
		acc.slots = append(acc.slots, domain.ToolCall{})
		acc.announced = append(acc.announced, false)
	}

	slot := &acc.slots[idx]
	if delta.ID != "" {
		slot.ID = delta.ID
	}
	var announce string
	if delta.Name != "" {
		slot.Name = delta.Name
		if !acc.announced[idx] {
			acc.announced[idx] = true
			announce = delta.Name
		}
	}
	if delta.Arguments != "" {
		slot.Arguments = append(slot.Arguments, delta.Arguments...)
	}
	return announce
}

// calls returns the populated slots with their arguments normalized.
// Slots that never received a name are dropped.
func (acc *slotAccumulator) calls() []domain.ToolCall {
	var calls []domain.ToolCall
	for _, slot := range acc.slots {
		if slot.Name == "" {
			continue
		}
		slot.Arguments = normalizeArgs(slot.Arguments)
		calls = append(calls, slot)
	}
	return calls
}

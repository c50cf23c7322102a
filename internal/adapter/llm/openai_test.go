package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		resp := wireResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []wireChoice{
				{
					Message: wireMessage{
						Role:    "assistant",
						Content: "There are 4 open deals.",
					},
					FinishReason: "stop",
				},
			},
			Usage: wireUsage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	resp, err := client.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "How many open deals?"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "There are 4 open deals." {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 19 {
		t.Errorf("TotalTokens = %d, want 19", resp.Usage.TotalTokens)
	}
}

func TestClientChatWithToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "query_deals" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}
		if req.ToolChoice != "auto" {
			t.Errorf("tool_choice = %q, want auto", req.ToolChoice)
		}

		resp := wireResponse{
			ID: "chatcmpl-456",
			Choices: []wireChoice{
				{
					Message: wireMessage{
						Role: "assistant",
						ToolCalls: []wireToolCall{
							{
								ID:   "call_1",
								Type: "function",
								Function: wireToolCallFunction{
									Name:      "query_deals",
									Arguments: `{"status":"open"}`,
								},
							},
						},
					},
					FinishReason: "tool_calls",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())

	resp, err := client.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "show open deals"}},
		Tools: []domain.ToolSchema{
			{Name: "query_deals", Description: "Query cached deals", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "query_deals" || tc.ID != "call_1" {
		t.Errorf("tool call = %+v", tc)
	}
	if string(tc.Arguments) != `{"status":"open"}` {
		t.Errorf("arguments = %s", tc.Arguments)
	}
}

func TestClientChatToolMessageWire(t *testing.T) {
	var captured wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(wireResponse{
			Choices: []wireChoice{{Message: wireMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())

	_, err := client.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "create a bonus"},
			{
				Role: domain.RoleAssistant,
				ToolCalls: []domain.ToolCall{
					{ID: "call_9", Name: "create_bonus", Arguments: json.RawMessage(`{"employee":"Ada"}`)},
				},
			},
			{Role: domain.RoleTool, ToolCallID: "call_9", Content: `{"ok":true}`},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(captured.Messages))
	}
	assistant := captured.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Type != "function" {
		t.Errorf("assistant tool calls = %+v", assistant.ToolCalls)
	}
	toolMsg := captured.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_9" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestClientChatErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"server error", http.StatusInternalServerError, domain.ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())
			_, err := client.Chat(context.Background(), domain.ChatRequest{})
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestClientChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())

	ch, err := client.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var text string
	var done bool
	for delta := range ch {
		text += delta.Content
		if delta.Done {
			done = true
		}
	}

	if text != "Hello" {
		t.Errorf("streamed text = %q, want Hello", text)
	}
	if !done {
		t.Error("expected a Done delta")
	}
}

func TestClientChatStreamToolCallDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"query_deals","arguments":""}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"status\":"}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"open\"}"}}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())

	ch, err := client.ChatStream(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var fragments []domain.ToolCallDelta
	for delta := range ch {
		fragments = append(fragments, delta.ToolCalls...)
	}

	if len(fragments) != 3 {
		t.Fatalf("expected 3 tool-call fragments, got %d", len(fragments))
	}
	if fragments[0].Index != 0 || fragments[0].ID != "call_a" || fragments[0].Name != "query_deals" {
		t.Errorf("first fragment = %+v", fragments[0])
	}
	combined := fragments[0].Arguments + fragments[1].Arguments + fragments[2].Arguments
	if combined != `{"status":"open"}` {
		t.Errorf("combined arguments = %q", combined)
	}
}

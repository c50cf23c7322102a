package usecase

import (
	"errors"
	"testing"
	"time"

	"dealdesk/internal/domain"
)

func TestSessionAddMessageFillsTimestamp(t *testing.T) {
	s := NewSession()
	if s.ID == "" {
		t.Fatal("session must get an ID")
	}

	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "hi"})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AddMessage(domain.Message{Role: domain.RoleAssistant, Content: "hello", Timestamp: fixed})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("zero timestamp must be filled in")
	}
	if !msgs[1].Timestamp.Equal(fixed) {
		t.Error("explicit timestamp must be kept")
	}
}

func TestSessionMessagesReturnsCopy(t *testing.T) {
	s := NewSession()
	s.AddMessage(domain.Message{Role: domain.RoleUser, Content: "original"})

	msgs := s.Messages()
	msgs[0].Content = "mutated"

	if s.Messages()[0].Content != "original" {
		t.Error("Messages must return a copy")
	}
}

func TestSessionTruncate(t *testing.T) {
	s := NewSession()
	for i := 0; i < 6; i++ {
		s.AddMessage(domain.Message{Role: domain.RoleUser, Content: string(rune('a' + i))})
	}

	s.Truncate(2)
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "e" || msgs[1].Content != "f" {
		t.Errorf("kept = %q, %q", msgs[0].Content, msgs[1].Content)
	}

	// Truncating to a larger size is a no-op.
	s.Truncate(10)
	if len(s.Messages()) != 2 {
		t.Error("truncate must not grow the history")
	}
}

func TestSessionPendingLifecycle(t *testing.T) {
	s := NewSession()
	if s.Pending() != nil {
		t.Fatal("new session must have no pending action")
	}

	first := &domain.PendingAction{ToolName: "create_bonus", Preview: "first"}
	second := &domain.PendingAction{ToolName: "create_document", Preview: "second"}
	s.SetPending(first)
	s.SetPending(second)
	if got := s.Pending(); got == nil || got.Preview != "second" {
		t.Errorf("pending = %+v, want the replacement", got)
	}

	s.ClearPending()
	if s.Pending() != nil {
		t.Error("pending must be nil after clear")
	}
}

func TestSessionTakePending(t *testing.T) {
	s := NewSession()
	if s.TakePending() != nil {
		t.Fatal("take on an empty session must return nil")
	}

	action := &domain.PendingAction{ToolName: "create_bonus", Preview: "bonus"}
	s.SetPending(action)
	if got := s.TakePending(); got != action {
		t.Fatalf("take = %+v, want the armed action", got)
	}
	if s.TakePending() != nil {
		t.Error("a second take must return nil")
	}
	if s.Pending() != nil {
		t.Error("take must clear the pending slot")
	}
}

func TestSessionManager(t *testing.T) {
	m := NewSessionManager()

	_, err := m.Get("nope")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get unknown = %v", err)
	}

	created := m.GetOrCreate("")
	if created == nil || created.ID == "" {
		t.Fatal("GetOrCreate must create a session")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	// Existing IDs resolve to the same session.
	if got := m.GetOrCreate(created.ID); got != created {
		t.Error("GetOrCreate must return the existing session")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	// An unknown ID yields a fresh session under a new ID.
	other := m.GetOrCreate("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if other == created {
		t.Error("unknown ID must not alias an existing session")
	}
	if m.Count() != 2 {
		t.Errorf("count = %d, want 2", m.Count())
	}
}

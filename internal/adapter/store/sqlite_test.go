package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dealdesk/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDealsUpsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	deals := []domain.Deal{
		{ID: 1, Title: "Acme renewal", Value: 12000, Currency: "EUR", Status: "open", Stage: "proposal", OrgID: 10, AddTime: now, UpdateTime: now},
		{ID: 2, Title: "Globex upsell", Value: 4000, Currency: "EUR", Status: "open", Stage: "qualified", OrgID: 20, AddTime: now, UpdateTime: now},
		{ID: 3, Title: "Initech pilot", Value: 9000, Currency: "EUR", Status: "won", AddTime: now, UpdateTime: now},
	}
	if err := s.UpsertDeals(ctx, deals); err != nil {
		t.Fatalf("UpsertDeals: %v", err)
	}

	open, err := s.QueryDeals(ctx, domain.DealFilter{Status: "open"})
	if err != nil {
		t.Fatalf("QueryDeals: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open deals = %d, want 2", len(open))
	}
	// Ordered by value descending.
	if open[0].ID != 1 || open[1].ID != 2 {
		t.Errorf("order = %d, %d", open[0].ID, open[1].ID)
	}

	// Upsert with the same ID updates in place.
	deals[0].Status = "won"
	deals[0].Value = 13000
	if err := s.UpsertDeals(ctx, deals[:1]); err != nil {
		t.Fatalf("UpsertDeals again: %v", err)
	}
	won, err := s.QueryDeals(ctx, domain.DealFilter{Status: "won"})
	if err != nil {
		t.Fatalf("QueryDeals: %v", err)
	}
	if len(won) != 2 {
		t.Errorf("won deals = %d, want 2", len(won))
	}

	filtered, err := s.QueryDeals(ctx, domain.DealFilter{OrgID: 20, MinValue: 1000})
	if err != nil {
		t.Fatalf("QueryDeals: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != 2 {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestDealCloseTimeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	closeTime := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if err := s.UpsertDeals(ctx, []domain.Deal{
		{ID: 1, Title: "with close", Status: "open", CloseTime: &closeTime},
		{ID: 2, Title: "without close", Status: "open"},
	}); err != nil {
		t.Fatalf("UpsertDeals: %v", err)
	}

	deals, err := s.QueryDeals(ctx, domain.DealFilter{})
	if err != nil {
		t.Fatalf("QueryDeals: %v", err)
	}
	byID := map[int64]domain.Deal{}
	for _, d := range deals {
		byID[d.ID] = d
	}
	if byID[1].CloseTime == nil || !byID[1].CloseTime.Equal(closeTime) {
		t.Errorf("deal 1 close time = %v", byID[1].CloseTime)
	}
	if byID[2].CloseTime != nil {
		t.Errorf("deal 2 close time = %v, want nil", byID[2].CloseTime)
	}
}

func TestPersonsQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	persons := []domain.Person{
		{ID: 1, Name: "Ada Byron", Email: "ada@acme.test", OrgName: "Acme", UpdateTime: now},
		{ID: 2, Name: "Grace Hopper", Email: "grace@globex.test", OrgName: "Globex", UpdateTime: now},
	}
	if err := s.UpsertPersons(ctx, persons); err != nil {
		t.Fatalf("UpsertPersons: %v", err)
	}

	hits, err := s.QueryPersons(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("QueryPersons: %v", err)
	}
	if len(hits) != 1 || hits[0].Name != "Ada Byron" {
		t.Errorf("hits = %+v", hits)
	}

	all, err := s.QueryPersons(ctx, "", 0)
	if err != nil {
		t.Fatalf("QueryPersons: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}

func TestBonusInsertAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := &domain.Bonus{Employee: "Ada", Amount: 500, Currency: "EUR", Reason: "closed Acme"}
	if err := s.InsertBonus(ctx, b); err != nil {
		t.Fatalf("InsertBonus: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("expected an assigned ID")
	}

	bonuses, err := s.ListBonuses(ctx, 10)
	if err != nil {
		t.Fatalf("ListBonuses: %v", err)
	}
	if len(bonuses) != 1 || bonuses[0].Employee != "Ada" {
		t.Errorf("bonuses = %+v", bonuses)
	}
}

func TestDocumentsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &domain.Document{Title: "Q3 offer", Body: "Draft", DealID: 7}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if doc.ID == 0 {
		t.Fatal("expected an assigned ID")
	}

	docs, err := s.ListDocuments(ctx, 7, 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "Q3 offer" {
		t.Errorf("docs = %+v", docs)
	}

	none, err := s.ListDocuments(ctx, 99, 10)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected docs for deal 99: %+v", none)
	}
}

func TestEmailsSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	emails := []domain.EmailMessage{
		{ID: "m1", Subject: "Acme invoice", From: "billing@acme.test", Preview: "attached", ReceivedAt: now},
		{ID: "m2", Subject: "Lunch", From: "team@globex.test", Preview: "friday?", ReceivedAt: now.Add(-time.Hour)},
	}
	if err := s.UpsertEmails(ctx, emails); err != nil {
		t.Fatalf("UpsertEmails: %v", err)
	}
	// Re-sync must not duplicate.
	if err := s.UpsertEmails(ctx, emails); err != nil {
		t.Fatalf("UpsertEmails again: %v", err)
	}

	hits, err := s.SearchEmails(ctx, "acme", 10)
	if err != nil {
		t.Fatalf("SearchEmails: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m1" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertDeals(ctx, []domain.Deal{
		{ID: 1, Title: "a", Value: 1000, Status: "open", AddTime: now, UpdateTime: now},
		{ID: 2, Title: "b", Value: 2000, Status: "open", AddTime: now, UpdateTime: now},
		{ID: 3, Title: "c", Value: 5000, Status: "won", AddTime: now, UpdateTime: now},
		{ID: 4, Title: "d", Value: 700, Status: "lost", AddTime: now, UpdateTime: now},
	}); err != nil {
		t.Fatalf("UpsertDeals: %v", err)
	}
	if err := s.UpsertPersons(ctx, []domain.Person{{ID: 1, Name: "Ada", UpdateTime: now}}); err != nil {
		t.Fatalf("UpsertPersons: %v", err)
	}
	if err := s.UpsertActivities(ctx, []domain.Activity{{ID: 1, Type: "call", Subject: "intro", DueTime: now}}); err != nil {
		t.Fatalf("UpsertActivities: %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := domain.DashboardSummary{
		OpenDeals: 2, WonDeals: 1, LostDeals: 1,
		PipelineValue: 3000, WonValue: 5000,
		Contacts: 1, Activities: 1,
	}
	if *sum != want {
		t.Errorf("summary = %+v, want %+v", *sum, want)
	}
}

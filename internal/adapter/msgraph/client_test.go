package msgraph

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealdesk/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}
}

// newTestClient points both the API and token endpoints at the test server.
func newTestClient(serverURL string) *Client {
	c := NewClient(config.GraphConfig{
		Enabled:      true,
		BaseURL:      serverURL,
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		Mailbox:      "sales@example.test",
	}, fastRetry(), newTestLogger())
	c.tokens.tokenURL = serverURL + "/token"
	return c
}

func messagesPayload() string {
	return `{
		"value": [
			{
				"id": "m1",
				"subject": "Acme invoice",
				"from": {"emailAddress": {"address": "billing@acme.test"}},
				"toRecipients": [{"emailAddress": {"address": "sales@example.test"}}],
				"bodyPreview": "please find attached",
				"receivedDateTime": "2026-08-30T10:15:00Z"
			}
		]
	}`
}

func TestFetchMessages(t *testing.T) {
	var tokenCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			tokenCalls.Add(1)
			io.WriteString(w, `{"access_token": "tok-1", "expires_in": 3600}`)
		case r.URL.Path == "/users/sales@example.test/messages":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("auth = %q", r.Header.Get("Authorization"))
			}
			io.WriteString(w, messagesPayload())
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	emails, err := client.FetchMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("emails = %d, want 1", len(emails))
	}
	m := emails[0]
	if m.ID != "m1" || m.From != "billing@acme.test" || m.To != "sales@example.test" {
		t.Errorf("message = %+v", m)
	}
	if m.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not parsed")
	}

	// Second fetch reuses the cached token.
	if _, err := client.FetchMessages(context.Background(), 10); err != nil {
		t.Fatalf("FetchMessages again: %v", err)
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}
}

func TestFetchMessagesConcurrent(t *testing.T) {
	// Overlapping fetches share one token refresh instead of racing the
	// cached credentials.
	var tokenCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenCalls.Add(1)
			io.WriteString(w, `{"access_token": "tok-1", "expires_in": 3600}`)
		case "/users/sales@example.test/messages":
			io.WriteString(w, messagesPayload())
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.FetchMessages(context.Background(), 10); err != nil {
				t.Errorf("FetchMessages: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}
}

func TestFetchMessagesRefreshesOnceOn401(t *testing.T) {
	var tokenCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			n := tokenCalls.Add(1)
			if n == 1 {
				io.WriteString(w, `{"access_token": "stale", "expires_in": 3600}`)
			} else {
				io.WriteString(w, `{"access_token": "fresh", "expires_in": 3600}`)
			}
		default:
			if r.Header.Get("Authorization") == "Bearer stale" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, messagesPayload())
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	emails, err := client.FetchMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(emails) != 1 {
		t.Errorf("emails = %d, want 1", len(emails))
	}
	if got := tokenCalls.Load(); got != 2 {
		t.Errorf("token calls = %d, want 2 (initial + one refresh)", got)
	}
}

func TestFetchMessagesPersistent401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			io.WriteString(w, `{"access_token": "rejected", "expires_in": 3600}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.FetchMessages(context.Background(), 10); err == nil {
		t.Fatal("expected an error when every token is rejected")
	}
}

func TestFetchMessagesRetriesServerErrors(t *testing.T) {
	var apiCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			io.WriteString(w, `{"access_token": "tok", "expires_in": 3600}`)
			return
		}
		if apiCalls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, messagesPayload())
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	emails, err := client.FetchMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(emails) != 1 {
		t.Errorf("emails = %d, want 1", len(emails))
	}
	if got := apiCalls.Load(); got != 3 {
		t.Errorf("api calls = %d, want 3", got)
	}
}

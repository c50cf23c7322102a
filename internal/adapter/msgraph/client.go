package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

// tokenSource obtains and caches an app-only access token via the
// client-credentials flow. Safe for concurrent use; overlapping sync runs
// share the cached token.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(cfg config.GraphConfig, client *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL:     "https://login.microsoftonline.com/" + cfg.TenantID + "/oauth2/v2.0/token",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       client,
	}
}

// Token returns the cached token, fetching a fresh one if missing or expired.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Now().Before(ts.expiry) {
		return ts.token, nil
	}
	return ts.refreshLocked(ctx)
}

// refresh unconditionally fetches a new token.
func (ts *tokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshLocked(ctx)
}

func (ts *tokenSource) refreshLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}

	ts.token = out.AccessToken
	// Renew a minute early.
	ts.expiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return ts.token, nil
}

// Client is a thin Microsoft Graph client used by the mailbox sync job.
// A 401 response triggers exactly one token refresh and request replay;
// other failures follow the fixed retry schedule shared with the LLM
// transport.
type Client struct {
	baseURL string
	mailbox string
	tokens  *tokenSource
	client  *http.Client
	logger  *slog.Logger

	maxAttempts int
	delays      []time.Duration
}

// NewClient creates a Graph client from config.
func NewClient(cfg config.GraphConfig, retry config.RetryConfig, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	maxAttempts := retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	delays := retry.Delays
	if len(delays) == 0 {
		delays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		mailbox:     cfg.Mailbox,
		tokens:      newTokenSource(cfg, httpClient),
		client:      httpClient,
		logger:      logger,
		maxAttempts: maxAttempts,
		delays:      delays,
	}
}

func (c *Client) delayFor(attempt int) time.Duration {
	if attempt >= len(c.delays) {
		return c.delays[len(c.delays)-1]
	}
	return c.delays[attempt]
}

// get performs an authenticated GET with a one-time 401 token refresh and
// the fixed retry schedule for everything else.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.delayFor(attempt - 1)
			c.logger.Info("retrying graph request", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.doOnce(ctx, path, out, false); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// doOnce performs one request. On 401 it refreshes the token and replays the
// request exactly once; a second 401 is surfaced as an error.
func (c *Client) doOnce(ctx context.Context, path string, out any, retried bool) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !retried {
		c.logger.Info("graph token rejected, refreshing once")
		if _, err := c.tokens.refresh(ctx); err != nil {
			return err
		}
		return c.doOnce(ctx, path, out, true)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

type wireMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

// FetchMessages retrieves recent mailbox messages.
func (c *Client) FetchMessages(ctx context.Context, limit int) ([]domain.EmailMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/users/%s/messages?$top=%d&$select=id,subject,from,toRecipients,bodyPreview,receivedDateTime&$orderby=receivedDateTime%%20desc",
		url.PathEscape(c.mailbox), limit)

	var out struct {
		Value []wireMessage `json:"value"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}

	emails := make([]domain.EmailMessage, 0, len(out.Value))
	for _, w := range out.Value {
		m := domain.EmailMessage{
			ID:      w.ID,
			Subject: w.Subject,
			From:    w.From.EmailAddress.Address,
			Preview: w.BodyPreview,
		}
		if len(w.ToRecipients) > 0 {
			m.To = w.ToRecipients[0].EmailAddress.Address
		}
		m.ReceivedAt, _ = time.Parse(time.RFC3339, w.ReceivedDateTime)
		emails = append(emails, m)
	}
	c.logger.Debug("fetched messages", "count", len(emails))
	return emails, nil
}

var _ domain.MailSource = (*Client)(nil)

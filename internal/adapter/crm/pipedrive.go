package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

const pipedriveTimeFormat = "2006-01-02 15:04:05"

// Client is a thin Pipedrive API client used by the cache sync job.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Pipedrive client from config.
func NewClient(cfg config.CRMConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// envelope is the common Pipedrive response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	u := c.baseURL + path
	sep := "?"
	if _, q, ok := splitQuery(path); ok && q != "" {
		sep = "&"
	}
	u += sep + "api_token=" + url.QueryEscape(c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pipedrive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pipedrive returned %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode pipedrive response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("pipedrive request unsuccessful")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func splitQuery(path string) (base, query string, ok bool) {
	for i := range path {
		if path[i] == '?' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}

type wireDeal struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
	StageID  int64   `json:"stage_id"`
	PersonID struct {
		Value int64 `json:"value"`
	} `json:"person_id"`
	OrgID struct {
		Value int64 `json:"value"`
	} `json:"org_id"`
	OwnerName  string `json:"owner_name"`
	AddTime    string `json:"add_time"`
	UpdateTime string `json:"update_time"`
	CloseTime  string `json:"close_time"`
	StageName  string `json:"stage_name"`
}

// FetchDeals retrieves all deals from Pipedrive.
func (c *Client) FetchDeals(ctx context.Context) ([]domain.Deal, error) {
	var wire []wireDeal
	if err := c.get(ctx, "/deals?limit=500", &wire); err != nil {
		return nil, err
	}

	deals := make([]domain.Deal, 0, len(wire))
	for _, w := range wire {
		d := domain.Deal{
			ID:        w.ID,
			Title:     w.Title,
			Value:     w.Value,
			Currency:  w.Currency,
			Status:    w.Status,
			Stage:     w.StageName,
			PersonID:  w.PersonID.Value,
			OrgID:     w.OrgID.Value,
			OwnerName: w.OwnerName,
		}
		d.AddTime, _ = time.Parse(pipedriveTimeFormat, w.AddTime)
		d.UpdateTime, _ = time.Parse(pipedriveTimeFormat, w.UpdateTime)
		if w.CloseTime != "" {
			if ct, err := time.Parse(pipedriveTimeFormat, w.CloseTime); err == nil {
				d.CloseTime = &ct
			}
		}
		deals = append(deals, d)
	}
	c.logger.Debug("fetched deals", "count", len(deals))
	return deals, nil
}

type wirePerson struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email []struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	} `json:"email"`
	Phone []struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	} `json:"phone"`
	OrgID struct {
		Value int64  `json:"value"`
		Name  string `json:"name"`
	} `json:"org_id"`
	UpdateTime string `json:"update_time"`
}

// FetchPersons retrieves all contacts from Pipedrive.
func (c *Client) FetchPersons(ctx context.Context) ([]domain.Person, error) {
	var wire []wirePerson
	if err := c.get(ctx, "/persons?limit=500", &wire); err != nil {
		return nil, err
	}

	persons := make([]domain.Person, 0, len(wire))
	for _, w := range wire {
		p := domain.Person{
			ID:      w.ID,
			Name:    w.Name,
			OrgID:   w.OrgID.Value,
			OrgName: w.OrgID.Name,
		}
		for _, e := range w.Email {
			if e.Primary || p.Email == "" {
				p.Email = e.Value
			}
		}
		for _, ph := range w.Phone {
			if ph.Primary || p.Phone == "" {
				p.Phone = ph.Value
			}
		}
		p.UpdateTime, _ = time.Parse(pipedriveTimeFormat, w.UpdateTime)
		persons = append(persons, p)
	}
	c.logger.Debug("fetched persons", "count", len(persons))
	return persons, nil
}

type wireOrg struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	OpenDealCount int    `json:"open_deals_count"`
	UpdateTime    string `json:"update_time"`
}

// FetchOrganizations retrieves all organizations from Pipedrive.
func (c *Client) FetchOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var wire []wireOrg
	if err := c.get(ctx, "/organizations?limit=500", &wire); err != nil {
		return nil, err
	}

	orgs := make([]domain.Organization, 0, len(wire))
	for _, w := range wire {
		o := domain.Organization{
			ID:        w.ID,
			Name:      w.Name,
			Address:   w.Address,
			OpenDeals: w.OpenDealCount,
		}
		o.UpdateTime, _ = time.Parse(pipedriveTimeFormat, w.UpdateTime)
		orgs = append(orgs, o)
	}
	return orgs, nil
}

type wireActivity struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	DealID  int64  `json:"deal_id"`
	Done    bool   `json:"done"`
	DueDate string `json:"due_date"`
}

// FetchActivities retrieves all activities from Pipedrive.
func (c *Client) FetchActivities(ctx context.Context) ([]domain.Activity, error) {
	var wire []wireActivity
	if err := c.get(ctx, "/activities?limit=500", &wire); err != nil {
		return nil, err
	}

	activities := make([]domain.Activity, 0, len(wire))
	for _, w := range wire {
		a := domain.Activity{
			ID:      w.ID,
			Type:    w.Type,
			Subject: w.Subject,
			DealID:  w.DealID,
			Done:    w.Done,
		}
		a.DueTime, _ = time.Parse("2006-01-02", w.DueDate)
		activities = append(activities, a)
	}
	return activities, nil
}

var _ domain.CRMSource = (*Client)(nil)

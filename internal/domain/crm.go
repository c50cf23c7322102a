package domain

import "time"

// Deal statuses as used by the CRM upstream.
const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"
)

// Deal is a cached CRM deal record.
type Deal struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Value      float64    `json:"value"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage"`
	PersonID   int64      `json:"person_id,omitempty"`
	OrgID      int64      `json:"org_id,omitempty"`
	OwnerName  string     `json:"owner_name,omitempty"`
	AddTime    time.Time  `json:"add_time"`
	UpdateTime time.Time  `json:"update_time"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// Person is a cached CRM contact record.
type Person struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	OrgID      int64     `json:"org_id,omitempty"`
	OrgName    string    `json:"org_name,omitempty"`
	UpdateTime time.Time `json:"update_time"`
}

// Organization is a cached CRM organization record.
type Organization struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address,omitempty"`
	OpenDeals  int       `json:"open_deals"`
	UpdateTime time.Time `json:"update_time"`
}

// Activity is a cached CRM activity (call, meeting, task).
type Activity struct {
	ID      int64     `json:"id"`
	Type    string    `json:"type"`
	Subject string    `json:"subject"`
	DealID  int64     `json:"deal_id,omitempty"`
	Done    bool      `json:"done"`
	DueTime time.Time `json:"due_time"`
}

// Bonus is a sales bonus entry managed through the dashboard.
type Bonus struct {
	ID        int64     `json:"id"`
	Employee  string    `json:"employee"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Reason    string    `json:"reason,omitempty"`
	DealID    int64     `json:"deal_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is a dashboard document record.
type Document struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DealID    int64     `json:"deal_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailMessage is a cached mailbox message synced from Microsoft Graph.
type EmailMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Preview    string    `json:"preview"`
	ReceivedAt time.Time `json:"received_at"`
}

// DashboardSummary aggregates cached CRM data for the REST dashboard.
type DashboardSummary struct {
	OpenDeals     int     `json:"open_deals"`
	WonDeals      int     `json:"won_deals"`
	LostDeals     int     `json:"lost_deals"`
	PipelineValue float64 `json:"pipeline_value"`
	WonValue      float64 `json:"won_value"`
	Contacts      int     `json:"contacts"`
	Activities    int     `json:"activities"`
}

// CashflowPoint is one month of a cashflow projection.
type CashflowPoint struct {
	Month    string  `json:"month"` // "2026-01"
	Expected float64 `json:"expected"`
	BestCase float64 `json:"best_case"`
}

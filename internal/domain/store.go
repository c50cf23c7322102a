package domain

import "context"

// DealFilter narrows a deal query. Zero values mean "no constraint".
type DealFilter struct {
	Status   string
	Stage    string
	OrgID    int64
	MinValue float64
	Limit    int
}

// CacheStore is the local cache of CRM and mailbox data. Adapters sync into
// it; tools and the dashboard read from it.
type CacheStore interface {
	UpsertDeals(ctx context.Context, deals []Deal) error
	QueryDeals(ctx context.Context, filter DealFilter) ([]Deal, error)

	UpsertPersons(ctx context.Context, persons []Person) error
	QueryPersons(ctx context.Context, query string, limit int) ([]Person, error)

	UpsertOrganizations(ctx context.Context, orgs []Organization) error

	UpsertActivities(ctx context.Context, activities []Activity) error
	QueryActivities(ctx context.Context, dealID int64, limit int) ([]Activity, error)

	InsertBonus(ctx context.Context, bonus *Bonus) error
	ListBonuses(ctx context.Context, limit int) ([]Bonus, error)

	InsertDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, dealID int64, limit int) ([]Document, error)

	UpsertEmails(ctx context.Context, emails []EmailMessage) error
	SearchEmails(ctx context.Context, query string, limit int) ([]EmailMessage, error)

	Summary(ctx context.Context) (*DashboardSummary, error)

	Close() error
}

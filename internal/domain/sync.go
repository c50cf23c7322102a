package domain

import "context"

// CRMSource is the upstream CRM the cache syncs from.
type CRMSource interface {
	FetchDeals(ctx context.Context) ([]Deal, error)
	FetchPersons(ctx context.Context) ([]Person, error)
	FetchOrganizations(ctx context.Context) ([]Organization, error)
	FetchActivities(ctx context.Context) ([]Activity, error)
}

// MailSource is the upstream mailbox the cache syncs from.
type MailSource interface {
	FetchMessages(ctx context.Context, limit int) ([]EmailMessage, error)
}

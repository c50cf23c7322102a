package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
)

// Syncer refreshes the local cache from the CRM and the mailbox on a
// schedule. Either source may be nil, in which case its jobs are skipped.
type Syncer struct {
	store  domain.CacheStore
	crm    domain.CRMSource
	mail   domain.MailSource
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSyncer creates a syncer over the given sources.
func NewSyncer(store domain.CacheStore, crmSource domain.CRMSource, mailSource domain.MailSource, logger *slog.Logger) *Syncer {
	return &Syncer{
		store: store,
		crm:   crmSource,
		mail:  mailSource,
		// A sync that outlives its interval skips the next activation
		// instead of running twice concurrently.
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Start registers the sync jobs and starts the scheduler. Schedules are
// either cron expressions or duration strings ("10m" becomes "@every 10m").
func (s *Syncer) Start(cfg config.SchedulerConfig) error {
	if s.crm != nil && cfg.CRMSchedule != "" {
		spec := normalizeSchedule(cfg.CRMSchedule)
		if _, err := s.cron.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := s.SyncCRM(ctx); err != nil {
				s.logger.Error("crm sync failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}
	if s.mail != nil && cfg.MailSchedule != "" {
		spec := normalizeSchedule(cfg.MailSchedule)
		if _, err := s.cron.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := s.SyncMail(ctx); err != nil {
				s.logger.Error("mail sync failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Syncer) Stop() {
	<-s.cron.Stop().Done()
}

func normalizeSchedule(spec string) string {
	if _, err := time.ParseDuration(spec); err == nil {
		return "@every " + spec
	}
	return spec
}

// SyncCRM pulls deals, contacts, organizations, and activities into the cache.
func (s *Syncer) SyncCRM(ctx context.Context) error {
	start := time.Now()

	deals, err := s.crm.FetchDeals(ctx)
	if err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}
	if err := s.store.UpsertDeals(ctx, deals); err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}

	persons, err := s.crm.FetchPersons(ctx)
	if err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}
	if err := s.store.UpsertPersons(ctx, persons); err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}

	orgs, err := s.crm.FetchOrganizations(ctx)
	if err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}
	if err := s.store.UpsertOrganizations(ctx, orgs); err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}

	activities, err := s.crm.FetchActivities(ctx)
	if err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}
	if err := s.store.UpsertActivities(ctx, activities); err != nil {
		return domain.WrapOp("Syncer.SyncCRM", err)
	}

	s.logger.Info("crm sync completed",
		"deals", len(deals), "persons", len(persons),
		"organizations", len(orgs), "activities", len(activities),
		"took", time.Since(start),
	)
	return nil
}

// SyncMail pulls recent mailbox messages into the cache.
func (s *Syncer) SyncMail(ctx context.Context) error {
	start := time.Now()

	emails, err := s.mail.FetchMessages(ctx, 100)
	if err != nil {
		return domain.WrapOp("Syncer.SyncMail", err)
	}
	if err := s.store.UpsertEmails(ctx, emails); err != nil {
		return domain.WrapOp("Syncer.SyncMail", err)
	}

	s.logger.Info("mail sync completed", "messages", len(emails), "took", time.Since(start))
	return nil
}

// Package service runs one scheduled ingestion-and-evaluation cycle.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cloudpulse/internal/alerting"
	"cloudpulse/internal/pipeline"
	"cloudpulse/internal/storage"
)

const dateLayout = "2006-01-02"

// AccountLister enumerates accounts enabled for scheduled ingestion.
type AccountLister interface {
	ListActiveAccounts(ctx context.Context) ([]storage.CloudAccount, error)
}

// Fetcher ingests one account's costs for a date window.
type Fetcher interface {
	FetchAndStore(ctx context.Context, accountID, startDate, endDate string) (pipeline.Result, error)
}

// Evaluator produces a project's triggers.
type Evaluator interface {
	Evaluate(ctx context.Context, projectID string) ([]alerting.Trigger, error)
}

// Dispatcher delivers triggers.
type Dispatcher interface {
	Dispatch(ctx context.Context, projectID string, triggers []alerting.Trigger)
}

// Locker guards a cycle with a cross-process lock.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// Options tune cycle behaviour.
type Options struct {
	// LookbackDays extends the fetch window backwards from today to absorb
	// provider reporting lag.
	LookbackDays int
	// FetchConcurrency caps parallel per-account fetches.
	FetchConcurrency int
	// AdvisoryLockKey guards cycles across processes; zero disables the lock.
	AdvisoryLockKey int64
}

// Service drives one full cycle: fetch costs for every active account, then
// evaluate and dispatch alerts for every project a successful fetch touched.
type Service struct {
	accounts   AccountLister
	fetcher    Fetcher
	evaluator  Evaluator
	dispatcher Dispatcher
	locker     Locker
	opts       Options
	logger     zerolog.Logger
	now        func() time.Time
}

// New constructs the cycle service. locker may be nil.
func New(accounts AccountLister, fetcher Fetcher, evaluator Evaluator, dispatcher Dispatcher, locker Locker, opts Options, logger zerolog.Logger) *Service {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.LookbackDays < 0 {
		opts.LookbackDays = 0
	}
	return &Service{
		accounts:   accounts,
		fetcher:    fetcher,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		locker:     locker,
		opts:       opts,
		logger:     logger.With().Str("component", "service").Logger(),
		now:        time.Now,
	}
}

// RunCycle executes one cycle. Per-account fetch failures and per-project
// evaluation failures are logged and skipped; only accounts whose fetch
// succeeded contribute projects to the evaluation set.
func (s *Service) RunCycle(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return err
	}
	startDate, endDate := s.window()
	s.logger.Info().
		Int("accounts", len(accounts)).
		Str("start", startDate).
		Str("end", endDate).
		Msg("starting fetch cycle")

	var mu sync.Mutex
	projects := make(map[string]struct{})

	group := errgroup.Group{}
	group.SetLimit(s.opts.FetchConcurrency)
	for _, account := range accounts {
		account := account
		group.Go(func() error {
			result, err := s.fetcher.FetchAndStore(ctx, account.ID, startDate, endDate)
			if err != nil {
				s.logger.Error().Err(err).
					Str("account_id", account.ID).
					Str("label", account.AccountLabel).
					Msg("account fetch failed")
				return nil
			}

			mu.Lock()
			projects[account.ProjectID] = struct{}{}
			mu.Unlock()

			s.logger.Info().
				Str("account_id", account.ID).
				Str("label", account.AccountLabel).
				Int("records", result.RecordsUpserted).
				Msg("account fetch complete")
			return nil
		})
	}
	_ = group.Wait()

	for projectID := range projects {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		triggers, err := s.evaluator.Evaluate(ctx, projectID)
		if err != nil {
			s.logger.Error().Err(err).Str("project_id", projectID).Msg("alert evaluation failed")
			continue
		}
		if len(triggers) == 0 {
			continue
		}
		s.dispatcher.Dispatch(ctx, projectID, triggers)
	}

	s.logger.Info().Int("projects_evaluated", len(projects)).Msg("fetch cycle complete")
	return nil
}

// window returns the cycle's fetch range: today plus the prior LookbackDays
// days, with an exclusive end of tomorrow so today's partial data is covered.
func (s *Service) window() (string, string) {
	now := s.now().UTC()
	start := now.AddDate(0, 0, -s.opts.LookbackDays).Format(dateLayout)
	end := now.AddDate(0, 0, 1).Format(dateLayout)
	return start, end
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

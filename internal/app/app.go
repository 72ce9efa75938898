package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cloudpulse/internal/aggregate"
	"cloudpulse/internal/alerting"
	"cloudpulse/internal/config"
	"cloudpulse/internal/costsource"
	"cloudpulse/internal/costsource/awscost"
	"cloudpulse/internal/pipeline"
	"cloudpulse/internal/scheduler"
	"cloudpulse/internal/service"
	"cloudpulse/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewStore(pool, a.Config.Encryption.Key)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newPipeline(store *storage.Store) *pipeline.Pipeline {
	sources := map[string]costsource.Source{
		"AWS": awscost.New(awscost.Options{
			Region:  a.Config.AWS.Region,
			Timeout: a.Config.AWS.RequestTimeout,
		}, a.Logger),
	}
	return pipeline.New(store, store, sources, a.Logger)
}

func (a *App) newDispatcher(store *storage.Store) *alerting.Dispatcher {
	var email alerting.EmailSender
	if a.Config.SMTP.Host != "" {
		sender, err := alerting.NewSMTPSender(a.Config.SMTP, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("smtp misconfigured; email channel disabled")
		} else {
			email = sender
		}
	} else {
		a.Logger.Warn().Msg("smtp.host not configured; email channel disabled")
	}

	webhook := alerting.NewSlackNotifier(a.Config.Alerting.WebhookTimeout, a.Logger)
	return alerting.NewDispatcher(store, store, email, webhook, a.Config.Alerting.DedupWindow, a.Logger)
}

func (a *App) newService(store *storage.Store) *service.Service {
	engine := aggregate.New(store)
	evaluator := alerting.NewEvaluator(store, engine, a.Logger)
	dispatcher := a.newDispatcher(store)

	return service.New(store, a.newPipeline(store), evaluator, dispatcher, store, service.Options{
		LookbackDays:     a.Config.Scheduler.LookbackDays,
		FetchConcurrency: a.Config.Scheduler.FetchConcurrency,
		AdvisoryLockKey:  a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)

	backend := scheduler.Select(ctx, a.Config.Redis, scheduler.TimerOptions{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Str("backend", backend.Name()).Msg("starting cost monitoring service")
	err = backend.Run(ctx, svc.RunCycle)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("cost monitoring service stopped")
	return nil
}

// FetchOptions configure a manual fetch for one account.
type FetchOptions struct {
	AccountID string
	StartDate string
	EndDate   string
}

// SummaryOptions configure the summary command.
type SummaryOptions struct {
	ProjectID string
}

// HistoryOptions configure the alert history command.
type HistoryOptions struct {
	ProjectID string
	Limit     int
}

// ExportOptions hold parameters for exporting daily spend history.
type ExportOptions struct {
	ProjectID string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

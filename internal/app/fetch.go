package app

import (
	"context"
	"time"
)

const dateLayout = "2006-01-02"

// Fetch runs the fetch pipeline once for a single account, the manual
// counterpart of a scheduled cycle. Empty dates default to the scheduler's
// lookback window.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	startDate, endDate := opts.StartDate, opts.EndDate
	if startDate == "" || endDate == "" {
		now := time.Now().UTC()
		if startDate == "" {
			startDate = now.AddDate(0, 0, -a.Config.Scheduler.LookbackDays).Format(dateLayout)
		}
		if endDate == "" {
			endDate = now.AddDate(0, 0, 1).Format(dateLayout)
		}
	}

	result, err := a.newPipeline(store).FetchAndStore(ctx, opts.AccountID, startDate, endDate)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("account_id", opts.AccountID).
		Int("records", result.RecordsUpserted).
		Str("start", result.StartDate).
		Str("end", result.EndDate).
		Msg("manual fetch complete")
	return nil
}

// Package pipeline orchestrates one account's fetch-and-upsert pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cloudpulse/internal/costsource"
	"cloudpulse/internal/storage"
)

const dateLayout = "2006-01-02"

var (
	// ErrUnsupportedProvider indicates the account's provider has no cost
	// source binding.
	ErrUnsupportedProvider = errors.New("pipeline: provider not supported")
	// ErrCredentials indicates absent or undecryptable account credentials.
	ErrCredentials = errors.New("pipeline: invalid account credentials")
)

// AccountStore resolves accounts and their decrypted credentials.
type AccountStore interface {
	GetCloudAccount(ctx context.Context, accountID string) (storage.CloudAccount, error)
	GetDecryptedCredentials(ctx context.Context, accountID string) (costsource.Credentials, error)
}

// RecordStore applies cost record batches atomically.
type RecordStore interface {
	UpsertCostRecords(ctx context.Context, upserts []storage.CostRecordUpsert) (int, error)
}

// Result summarises one fetch-and-store pass.
type Result struct {
	RecordsUpserted int
	StartDate       string
	EndDate         string
}

// Pipeline fetches provider cost data and upserts it into the record store.
// Provider failures propagate unwrapped beyond context; retry policy belongs
// to the scheduler, not here.
type Pipeline struct {
	accounts AccountStore
	records  RecordStore
	sources  map[string]costsource.Source
	logger   zerolog.Logger
}

// New constructs a fetch pipeline. sources maps provider tags (e.g. "AWS")
// to their cost source implementations.
func New(accounts AccountStore, records RecordStore, sources map[string]costsource.Source, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		accounts: accounts,
		records:  records,
		sources:  sources,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// FetchAndStore ingests one account's costs for the half-open date range
// [startDate, endDate), both UTC calendar dates in YYYY-MM-DD form. The
// account's owning project is resolved once and stamped onto every record.
func (p *Pipeline) FetchAndStore(ctx context.Context, accountID, startDate, endDate string) (Result, error) {
	if _, err := time.Parse(dateLayout, startDate); err != nil {
		return Result{}, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	if _, err := time.Parse(dateLayout, endDate); err != nil {
		return Result{}, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	account, err := p.accounts.GetCloudAccount(ctx, accountID)
	if err != nil {
		return Result{}, err
	}

	source, ok := p.sources[account.Provider]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, account.Provider)
	}

	creds, err := p.accounts.GetDecryptedCredentials(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	if !hasUsableCredentials(creds) {
		return Result{}, fmt.Errorf("%w: account %s has neither a role arn nor an access key pair", ErrCredentials, accountID)
	}

	points, err := source.FetchCostsByService(ctx, creds, startDate, endDate)
	if err != nil {
		return Result{}, fmt.Errorf("fetch costs for account %s: %w", accountID, err)
	}

	upserts := make([]storage.CostRecordUpsert, 0, len(points))
	for _, point := range points {
		periodStart, err := time.Parse(dateLayout, point.PeriodStart)
		if err != nil {
			return Result{}, fmt.Errorf("malformed period start %q from provider: %w", point.PeriodStart, err)
		}
		periodEnd, err := time.Parse(dateLayout, point.PeriodEnd)
		if err != nil {
			return Result{}, fmt.Errorf("malformed period end %q from provider: %w", point.PeriodEnd, err)
		}

		upserts = append(upserts, storage.CostRecordUpsert{
			CloudAccountID: account.ID,
			ProjectID:      account.ProjectID,
			ServiceName:    point.ServiceName,
			Amount:         point.Amount,
			Currency:       point.Currency,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			Granularity:    storage.GranularityDaily,
		})
	}

	count, err := p.records.UpsertCostRecords(ctx, upserts)
	if err != nil {
		return Result{}, fmt.Errorf("store costs for account %s: %w", accountID, err)
	}

	p.logger.Info().
		Str("account_id", accountID).
		Str("label", account.AccountLabel).
		Int("records", count).
		Str("start", startDate).
		Str("end", endDate).
		Msg("cost data stored")

	return Result{RecordsUpserted: count, StartDate: startDate, EndDate: endDate}, nil
}

func hasUsableCredentials(creds costsource.Credentials) bool {
	if creds.RoleArn != nil && *creds.RoleArn != "" {
		return true
	}
	return creds.AccessKey != nil && *creds.AccessKey != "" &&
		creds.SecretKey != nil && *creds.SecretKey != ""
}

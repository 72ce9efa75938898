package costsource

import (
	"context"

	"github.com/shopspring/decimal"
)

// Credentials carry decrypted provider credentials for one fetch. They are
// resolved on demand and never persisted in plaintext.
type Credentials struct {
	Provider          string
	RoleArn           *string
	AccessKey         *string
	SecretKey         *string
	ExternalAccountID string
}

// DataPoint is one (service, day) cost observation returned by a provider.
// PeriodStart/PeriodEnd are calendar dates in YYYY-MM-DD form; the end date
// is exclusive.
type DataPoint struct {
	ServiceName string
	Amount      decimal.Decimal
	Currency    string
	PeriodStart string
	PeriodEnd   string
}

// Source fetches per-service cost data for a date range. Implementations
// filter out zero-amount entries before returning.
type Source interface {
	FetchCostsByService(ctx context.Context, creds Credentials, startDate, endDate string) ([]DataPoint, error)
}

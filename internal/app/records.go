package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// RecordsOptions configure the cost record listing command.
type RecordsOptions struct {
	AccountID string
	From      *time.Time
	To        *time.Time
}

// Records prints an account's stored cost records, newest period first.
func (a *App) Records(ctx context.Context, opts RecordsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC().AddDate(0, 0, 1)
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, 0, -30)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	records, err := store.ListCostRecords(ctx, opts.AccountID, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no cost records in window")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period\tService\tAmount\tCurrency")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			rec.PeriodStart.Format(dateLayout),
			rec.ServiceName,
			rec.Amount.StringFixed(2),
			rec.Currency,
		)
	}
	return writer.Flush()
}

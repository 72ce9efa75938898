package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cloudpulse/internal/aggregate"
)

// Summary prints a project's current spend picture.
func (a *App) Summary(ctx context.Context, opts SummaryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	project, err := store.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return err
	}

	summary, err := aggregate.New(store).Summarize(ctx, opts.ProjectID)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Project\t%s\n", project.Name)
	fmt.Fprintf(writer, "Today\t$%s\n", summary.TodaySpend.StringFixed(2))
	fmt.Fprintf(writer, "Month to date\t$%s\n", summary.MonthSpend.StringFixed(2))
	fmt.Fprintf(writer, "Month forecast\t$%s\n", summary.MonthForecast.StringFixed(2))
	return writer.Flush()
}

// History prints a project's delivered alerts, newest first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sent, err := store.ListAlertHistory(ctx, opts.ProjectID, opts.Limit)
	if err != nil {
		return err
	}
	if len(sent) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts sent")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tChannel\tReason")
	for _, row := range sent {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			row.SentAt.UTC().Format(time.RFC3339),
			row.Channel,
			sanitizeInline(row.Reason),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"cloudpulse/internal/storage"
)

// RuleAddOptions configure a new alert rule. Zero-valued budgets/threshold
// mean "not set".
type RuleAddOptions struct {
	ProjectID         string
	DailyBudget       float64
	MonthlyBudget     float64
	SpikeThresholdPct int
	EmailEnabled      bool
	SlackWebhookURL   string
}

// RuleAdd validates and creates one alert rule.
func (a *App) RuleAdd(ctx context.Context, opts RuleAddOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	params := storage.CreateAlertRuleParams{
		ProjectID:    opts.ProjectID,
		EmailEnabled: opts.EmailEnabled,
	}
	if opts.DailyBudget > 0 {
		budget := decimal.NewFromFloat(opts.DailyBudget)
		params.DailyBudget = &budget
	}
	if opts.MonthlyBudget > 0 {
		budget := decimal.NewFromFloat(opts.MonthlyBudget)
		params.MonthlyBudget = &budget
	}
	if opts.SpikeThresholdPct > 0 {
		pct := opts.SpikeThresholdPct
		params.SpikeThresholdPct = &pct
	}
	if opts.SlackWebhookURL != "" {
		url := opts.SlackWebhookURL
		params.SlackWebhookURL = &url
	}

	rule, err := store.CreateAlertRule(ctx, params)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("rule_id", rule.ID).Str("project_id", rule.ProjectID).Msg("alert rule created")
	return nil
}

// RuleList prints a project's alert rules.
func (a *App) RuleList(ctx context.Context, projectID string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := store.ListRulesForProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		fmt.Fprintln(os.Stdout, "no alert rules configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tDaily\tMonthly\tSpike%\tEmail\tWebhook")
	for _, rule := range rules {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\t%t\n",
			rule.ID,
			formatBudget(rule.DailyBudget),
			formatBudget(rule.MonthlyBudget),
			formatThreshold(rule.SpikeThresholdPct),
			rule.EmailEnabled,
			rule.SlackWebhookURL != nil,
		)
	}
	return writer.Flush()
}

func formatBudget(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return "$" + d.StringFixed(2)
}

func formatThreshold(pct *int) string {
	if pct == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *pct)
}

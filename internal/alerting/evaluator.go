package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cloudpulse/internal/aggregate"
	"cloudpulse/internal/storage"
)

// forecastWarningRatio is the fraction of the monthly budget above which the
// forecast warning fires.
var forecastWarningRatio = decimal.NewFromFloat(0.8)

// RuleSource lists the alert rules configured for a project.
type RuleSource interface {
	ListRulesForProject(ctx context.Context, projectID string) ([]storage.AlertRule, error)
}

// Aggregator supplies the spend figures rules are evaluated against.
type Aggregator interface {
	Summarize(ctx context.Context, projectID string) (aggregate.Summary, error)
	DetectSpike(ctx context.Context, projectID string, thresholdPct int) (*aggregate.SpikeResult, error)
}

// Trigger is an ephemeral signal that one rule condition was met in one
// evaluation pass.
type Trigger struct {
	Rule    storage.AlertRule
	Reason  string
	Payload Payload
}

// Evaluator applies a project's rule set against current aggregates. Each
// call is a pure function of the stored rules and spend figures.
type Evaluator struct {
	rules  RuleSource
	agg    Aggregator
	logger zerolog.Logger
}

// NewEvaluator constructs a rule evaluator.
func NewEvaluator(rules RuleSource, agg Aggregator, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		agg:    agg,
		logger: logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// Evaluate produces the triggers for one project. Rules are evaluated
// independently, so a single rule can produce several triggers in one pass.
// Projects with no rules skip aggregation entirely.
func (e *Evaluator) Evaluate(ctx context.Context, projectID string) ([]Trigger, error) {
	rules, err := e.rules.ListRulesForProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	summary, err := e.agg.Summarize(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("summarize project: %w", err)
	}

	triggers := make([]Trigger, 0)
	for _, rule := range rules {
		if rule.DailyBudget != nil && summary.TodaySpend.GreaterThan(*rule.DailyBudget) {
			triggers = append(triggers, Trigger{
				Rule: rule,
				Reason: fmt.Sprintf("Daily budget exceeded: $%s > $%s",
					summary.TodaySpend.StringFixed(2), rule.DailyBudget.StringFixed(2)),
				Payload: DailyBudgetExceeded{TodaySpend: summary.TodaySpend, Budget: *rule.DailyBudget},
			})
		}

		if rule.MonthlyBudget != nil {
			budget := *rule.MonthlyBudget
			switch {
			case summary.MonthSpend.GreaterThan(budget):
				triggers = append(triggers, Trigger{
					Rule: rule,
					Reason: fmt.Sprintf("Monthly budget exceeded: $%s > $%s",
						summary.MonthSpend.StringFixed(2), budget.StringFixed(2)),
					Payload: MonthlyBudgetExceeded{MonthSpend: summary.MonthSpend, Budget: budget},
				})
			case summary.MonthForecast.GreaterThan(budget.Mul(forecastWarningRatio)):
				// Suppressed once the hard budget trigger fires above;
				// warning on top of an exceeded budget is just noise.
				triggers = append(triggers, Trigger{
					Rule: rule,
					Reason: fmt.Sprintf("Monthly forecast warning: $%s projected vs $%s budget",
						summary.MonthForecast.StringFixed(2), budget.StringFixed(2)),
					Payload: ForecastWarning{Forecast: summary.MonthForecast, Budget: budget},
				})
			}
		}

		if rule.SpikeThresholdPct != nil {
			spike, err := e.agg.DetectSpike(ctx, projectID, *rule.SpikeThresholdPct)
			if err != nil {
				return nil, fmt.Errorf("detect spike: %w", err)
			}
			if spike != nil {
				triggers = append(triggers, Trigger{
					Rule: rule,
					Reason: fmt.Sprintf("Spend spike detected: %s%% above 7-day average ($%s vs avg $%s)",
						spike.PctIncrease.String(), spike.TodaySpend.StringFixed(2), spike.DailyAvg.StringFixed(2)),
					Payload: SpikeDetected{TodaySpend: spike.TodaySpend, DailyAvg: spike.DailyAvg, PctIncrease: spike.PctIncrease},
				})
			}
		}
	}

	if len(triggers) > 0 {
		e.logger.Info().Str("project_id", projectID).Int("triggers", len(triggers)).Msg("alert conditions met")
	}
	return triggers, nil
}

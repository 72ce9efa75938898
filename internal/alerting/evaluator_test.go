package alerting

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cloudpulse/internal/aggregate"
	"cloudpulse/internal/storage"
)

type fakeRuleSource struct {
	rules []storage.AlertRule
	err   error
}

func (f *fakeRuleSource) ListRulesForProject(context.Context, string) ([]storage.AlertRule, error) {
	return f.rules, f.err
}

type fakeAggregator struct {
	summary       aggregate.Summary
	summaryErr    error
	summaryCalls  int
	spike         *aggregate.SpikeResult
	spikeErr      error
	spikeRequests []int
}

func (f *fakeAggregator) Summarize(context.Context, string) (aggregate.Summary, error) {
	f.summaryCalls++
	return f.summary, f.summaryErr
}

func (f *fakeAggregator) DetectSpike(_ context.Context, _ string, thresholdPct int) (*aggregate.SpikeResult, error) {
	f.spikeRequests = append(f.spikeRequests, thresholdPct)
	return f.spike, f.spikeErr
}

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func TestEvaluateNoRulesSkipsAggregation(t *testing.T) {
	agg := &fakeAggregator{}
	ev := NewEvaluator(&fakeRuleSource{}, agg, zerolog.Nop())

	triggers, err := ev.Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Empty(t, triggers)
	require.Zero(t, agg.summaryCalls)
}

func TestEvaluateDailyBudgetExceeded(t *testing.T) {
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", DailyBudget: decPtr(50)},
	}}
	agg := &fakeAggregator{summary: aggregate.Summary{
		TodaySpend: decimal.NewFromFloat(52.5),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "Daily budget exceeded: $52.50 > $50.00", triggers[0].Reason)
	require.Equal(t, KindDailyBudget, triggers[0].Payload.Kind())
}

func TestEvaluateDailyBudgetNotExceededAtBoundary(t *testing.T) {
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", DailyBudget: decPtr(50)},
	}}
	agg := &fakeAggregator{summary: aggregate.Summary{
		TodaySpend: decimal.NewFromInt(50),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Empty(t, triggers)
}

func TestEvaluateForecastWarning(t *testing.T) {
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", MonthlyBudget: decPtr(1000)},
	}}
	agg := &fakeAggregator{summary: aggregate.Summary{
		MonthSpend:    decimal.NewFromInt(850),
		MonthForecast: decimal.NewFromInt(950),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "Monthly forecast warning: $950.00 projected vs $1000.00 budget", triggers[0].Reason)
	require.Equal(t, KindForecastWarning, triggers[0].Payload.Kind())
}

func TestEvaluateForecastWarningSuppressedByBudgetBreach(t *testing.T) {
	// Once the monthly budget itself is exceeded the forecast warning would
	// be redundant; only the breach fires.
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", MonthlyBudget: decPtr(1000)},
	}}
	agg := &fakeAggregator{summary: aggregate.Summary{
		MonthSpend:    decimal.NewFromInt(1050),
		MonthForecast: decimal.NewFromInt(2100),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "Monthly budget exceeded: $1050.00 > $1000.00", triggers[0].Reason)
	require.Equal(t, KindMonthlyBudget, triggers[0].Payload.Kind())
}

func TestEvaluateForecastAtWarningBoundary(t *testing.T) {
	// Exactly 80% of the budget does not warn.
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", MonthlyBudget: decPtr(1000)},
	}}
	agg := &fakeAggregator{summary: aggregate.Summary{
		MonthSpend:    decimal.NewFromInt(400),
		MonthForecast: decimal.NewFromInt(800),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Empty(t, triggers)
}

func TestEvaluateSpike(t *testing.T) {
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{ID: "rule-1", ProjectID: "proj-1", SpikeThresholdPct: intPtr(50)},
	}}
	agg := &fakeAggregator{spike: &aggregate.SpikeResult{
		TodaySpend:  decimal.NewFromInt(15),
		DailyAvg:    decimal.NewFromInt(10),
		PctIncrease: decimal.NewFromInt(50),
	}}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "Spend spike detected: 50% above 7-day average ($15.00 vs avg $10.00)", triggers[0].Reason)
	require.Equal(t, []int{50}, agg.spikeRequests)
}

func TestEvaluateMultipleTriggersPerRule(t *testing.T) {
	rules := &fakeRuleSource{rules: []storage.AlertRule{
		{
			ID:                "rule-1",
			ProjectID:         "proj-1",
			DailyBudget:       decPtr(10),
			MonthlyBudget:     decPtr(100),
			SpikeThresholdPct: intPtr(50),
		},
	}}
	agg := &fakeAggregator{
		summary: aggregate.Summary{
			TodaySpend:    decimal.NewFromInt(20),
			MonthSpend:    decimal.NewFromInt(150),
			MonthForecast: decimal.NewFromInt(300),
		},
		spike: &aggregate.SpikeResult{
			TodaySpend:  decimal.NewFromInt(20),
			DailyAvg:    decimal.NewFromInt(5),
			PctIncrease: decimal.NewFromInt(300),
		},
	}

	triggers, err := NewEvaluator(rules, agg, zerolog.Nop()).Evaluate(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Len(t, triggers, 3)

	kinds := make([]PayloadKind, 0, len(triggers))
	for _, trigger := range triggers {
		kinds = append(kinds, trigger.Payload.Kind())
	}
	require.Equal(t, []PayloadKind{KindDailyBudget, KindMonthlyBudget, KindSpike}, kinds)
}

func TestEvaluatePropagatesRuleListError(t *testing.T) {
	listErr := errors.New("db down")
	ev := NewEvaluator(&fakeRuleSource{err: listErr}, &fakeAggregator{}, zerolog.Nop())

	_, err := ev.Evaluate(context.Background(), "proj-1")
	require.ErrorIs(t, err, listErr)
}

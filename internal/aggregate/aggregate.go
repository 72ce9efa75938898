// Package aggregate derives rolling spend figures from stored cost records.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	decSeven   = decimal.NewFromInt(7)
	decHundred = decimal.NewFromInt(100)
)

// SpendReader sums cost record amounts whose period start falls in [from, to).
type SpendReader interface {
	SumProjectSpend(ctx context.Context, projectID string, from, to time.Time) (decimal.Decimal, error)
}

// Summary is a project's current spend picture, computed fresh per call.
type Summary struct {
	TodaySpend    decimal.Decimal
	MonthSpend    decimal.Decimal
	MonthForecast decimal.Decimal
}

// SpikeResult describes a spend spike relative to the trailing 7-day average.
type SpikeResult struct {
	TodaySpend  decimal.Decimal
	DailyAvg    decimal.Decimal
	PctIncrease decimal.Decimal
}

// Engine computes summaries and spike detection for projects.
type Engine struct {
	spend SpendReader
	now   func() time.Time
}

// New constructs an aggregation engine over the given spend reader.
func New(spend SpendReader) *Engine {
	return &Engine{spend: spend, now: time.Now}
}

// Summarize returns today's spend, month-to-date spend, and the month
// forecast for a project. The forecast is a naive linear extrapolation,
// (monthSpend / dayOfMonth) * daysInMonth: it under-forecasts early in the
// month and stabilises late. It is not a statistical forecast.
func (e *Engine) Summarize(ctx context.Context, projectID string) (Summary, error) {
	now := e.now().UTC()
	dayStart := startOfDay(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	tomorrow := dayStart.AddDate(0, 0, 1)

	todaySpend, err := e.spend.SumProjectSpend(ctx, projectID, dayStart, tomorrow)
	if err != nil {
		return Summary{}, fmt.Errorf("sum today spend: %w", err)
	}

	monthSpend, err := e.spend.SumProjectSpend(ctx, projectID, monthStart, tomorrow)
	if err != nil {
		return Summary{}, fmt.Errorf("sum month spend: %w", err)
	}

	return Summary{
		TodaySpend:    todaySpend,
		MonthSpend:    monthSpend,
		MonthForecast: forecast(monthSpend, now),
	}, nil
}

// DetectSpike compares today's spend to the average over the 7 days strictly
// preceding today. It returns nil when that average is not positive, so
// brand-new projects with no history never report spikes, and otherwise
// returns a result iff the percentage increase meets thresholdPct.
func (e *Engine) DetectSpike(ctx context.Context, projectID string, thresholdPct int) (*SpikeResult, error) {
	now := e.now().UTC()
	dayStart := startOfDay(now)
	weekStart := dayStart.AddDate(0, 0, -7)

	weekTotal, err := e.spend.SumProjectSpend(ctx, projectID, weekStart, dayStart)
	if err != nil {
		return nil, fmt.Errorf("sum trailing week spend: %w", err)
	}

	dailyAvg := weekTotal.Div(decSeven)
	if !dailyAvg.IsPositive() {
		return nil, nil
	}

	todaySpend, err := e.spend.SumProjectSpend(ctx, projectID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("sum today spend: %w", err)
	}

	pctIncrease := todaySpend.Sub(dailyAvg).Div(dailyAvg).Mul(decHundred)
	if pctIncrease.LessThan(decimal.NewFromInt(int64(thresholdPct))) {
		return nil, nil
	}

	return &SpikeResult{
		TodaySpend:  todaySpend,
		DailyAvg:    dailyAvg,
		PctIncrease: pctIncrease.Round(0),
	}, nil
}

func forecast(monthSpend decimal.Decimal, now time.Time) decimal.Decimal {
	dayOfMonth := now.Day()
	if dayOfMonth == 0 {
		return decimal.Zero
	}
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()

	return monthSpend.
		Div(decimal.NewFromInt(int64(dayOfMonth))).
		Mul(decimal.NewFromInt(int64(daysInMonth))).
		Round(2)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

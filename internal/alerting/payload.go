package alerting

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PayloadKind tags the alert payload union.
type PayloadKind string

const (
	KindDailyBudget     PayloadKind = "daily_budget"
	KindMonthlyBudget   PayloadKind = "monthly_budget"
	KindForecastWarning PayloadKind = "forecast_warning"
	KindSpike           PayloadKind = "spike"
)

// Payload carries the numeric inputs that caused a trigger, one variant per
// alert kind.
type Payload interface {
	Kind() PayloadKind
}

// DailyBudgetExceeded fires when today's spend passes the daily budget.
type DailyBudgetExceeded struct {
	TodaySpend decimal.Decimal `json:"todaySpend"`
	Budget     decimal.Decimal `json:"budget"`
}

func (DailyBudgetExceeded) Kind() PayloadKind { return KindDailyBudget }

// MonthlyBudgetExceeded fires when month-to-date spend passes the monthly
// budget.
type MonthlyBudgetExceeded struct {
	MonthSpend decimal.Decimal `json:"monthSpend"`
	Budget     decimal.Decimal `json:"budget"`
}

func (MonthlyBudgetExceeded) Kind() PayloadKind { return KindMonthlyBudget }

// ForecastWarning fires when the projected month total passes 80% of the
// monthly budget before the budget itself is exceeded.
type ForecastWarning struct {
	Forecast decimal.Decimal `json:"forecast"`
	Budget   decimal.Decimal `json:"budget"`
}

func (ForecastWarning) Kind() PayloadKind { return KindForecastWarning }

// SpikeDetected fires when today's spend exceeds the trailing 7-day average
// by at least the configured percentage.
type SpikeDetected struct {
	TodaySpend  decimal.Decimal `json:"todaySpend"`
	DailyAvg    decimal.Decimal `json:"dailyAvg"`
	PctIncrease decimal.Decimal `json:"pctIncrease"`
}

func (SpikeDetected) Kind() PayloadKind { return KindSpike }

// EncodePayload serialises a payload for the alert history snapshot, tagged
// with its kind.
func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal alert payload: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("reshape alert payload: %w", err)
	}
	fields["type"] = json.RawMessage(fmt.Sprintf("%q", p.Kind()))

	tagged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal tagged payload: %w", err)
	}
	return tagged, nil
}

// payloadDetail renders the per-kind detail line shared by all channels. The
// switch is exhaustive over the payload union.
func payloadDetail(p Payload) string {
	switch v := p.(type) {
	case DailyBudgetExceeded:
		return fmt.Sprintf("Today's spend: $%s / Budget: $%s", v.TodaySpend.StringFixed(2), v.Budget.StringFixed(2))
	case MonthlyBudgetExceeded:
		return fmt.Sprintf("This month: $%s / Budget: $%s", v.MonthSpend.StringFixed(2), v.Budget.StringFixed(2))
	case ForecastWarning:
		return fmt.Sprintf("Projected: $%s / Budget: $%s", v.Forecast.StringFixed(2), v.Budget.StringFixed(2))
	case SpikeDetected:
		return fmt.Sprintf("Today: $%s / 7-day avg: $%s (%s%% increase)", v.TodaySpend.StringFixed(2), v.DailyAvg.StringFixed(2), v.PctIncrease.String())
	default:
		return ""
	}
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	spikeThresholdMin = 10
	spikeThresholdMax = 1000
)

const (
	insertAlertRuleSQL = `INSERT INTO alert_rules (
        id,
        project_id,
        daily_budget,
        monthly_budget,
        spike_threshold_pct,
        email_enabled,
        slack_webhook_url
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING created_at;`

	listRulesForProjectSQL = `SELECT
        id,
        project_id,
        daily_budget::text,
        monthly_budget::text,
        spike_threshold_pct,
        email_enabled,
        slack_webhook_url,
        created_at
    FROM alert_rules
    WHERE project_id = $1
    ORDER BY created_at DESC;`

	deleteAlertRuleSQL = `DELETE FROM alert_rules WHERE id = $1;`
)

// CreateAlertRuleParams is the validated input for a new alert rule.
type CreateAlertRuleParams struct {
	ProjectID         string
	DailyBudget       *decimal.Decimal
	MonthlyBudget     *decimal.Decimal
	SpikeThresholdPct *int
	EmailEnabled      bool
	SlackWebhookURL   *string
}

// Validate rejects rules that could never fire or carry out-of-range values.
func (p CreateAlertRuleParams) Validate() error {
	if p.ProjectID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidRule)
	}
	if p.DailyBudget == nil && p.MonthlyBudget == nil && p.SpikeThresholdPct == nil {
		return fmt.Errorf("%w: at least one of daily_budget, monthly_budget, spike_threshold_pct is required", ErrInvalidRule)
	}
	if p.DailyBudget != nil && !p.DailyBudget.IsPositive() {
		return fmt.Errorf("%w: daily_budget must be positive", ErrInvalidRule)
	}
	if p.MonthlyBudget != nil && !p.MonthlyBudget.IsPositive() {
		return fmt.Errorf("%w: monthly_budget must be positive", ErrInvalidRule)
	}
	if p.SpikeThresholdPct != nil {
		if *p.SpikeThresholdPct < spikeThresholdMin || *p.SpikeThresholdPct > spikeThresholdMax {
			return fmt.Errorf("%w: spike_threshold_pct must be between %d and %d", ErrInvalidRule, spikeThresholdMin, spikeThresholdMax)
		}
	}
	if p.SlackWebhookURL != nil {
		parsed, err := url.Parse(*p.SlackWebhookURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: slack_webhook_url must be an absolute URL", ErrInvalidRule)
		}
	}
	return nil
}

// CreateAlertRule validates and persists a new rule for a project.
func (s *Store) CreateAlertRule(ctx context.Context, params CreateAlertRuleParams) (AlertRule, error) {
	if err := params.Validate(); err != nil {
		return AlertRule{}, err
	}

	pool, err := s.getPool()
	if err != nil {
		return AlertRule{}, err
	}

	// Reject rules against unknown projects before insert.
	if _, err := s.GetProject(ctx, params.ProjectID); err != nil {
		return AlertRule{}, err
	}

	rule := AlertRule{
		ID:                uuid.NewString(),
		ProjectID:         params.ProjectID,
		DailyBudget:       params.DailyBudget,
		MonthlyBudget:     params.MonthlyBudget,
		SpikeThresholdPct: params.SpikeThresholdPct,
		EmailEnabled:      params.EmailEnabled,
		SlackWebhookURL:   params.SlackWebhookURL,
	}

	scanErr := pool.QueryRow(ctx, insertAlertRuleSQL,
		rule.ID,
		rule.ProjectID,
		decimalOrNil(rule.DailyBudget),
		decimalOrNil(rule.MonthlyBudget),
		rule.SpikeThresholdPct,
		rule.EmailEnabled,
		rule.SlackWebhookURL,
	).Scan(&rule.CreatedAt)
	if scanErr != nil {
		return AlertRule{}, fmt.Errorf("insert alert rule: %w", scanErr)
	}
	return rule, nil
}

// ListRulesForProject returns a project's rules, newest first.
func (s *Store) ListRulesForProject(ctx context.Context, projectID string) ([]AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRulesForProjectSQL, projectID)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]AlertRule, 0)
	for rows.Next() {
		rule, scanErr := scanAlertRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// DeleteAlertRule removes one rule.
func (s *Store) DeleteAlertRule(ctx context.Context, ruleID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAlertRuleSQL, ruleID)
	if execErr != nil {
		return fmt.Errorf("delete alert rule: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("alert rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

func scanAlertRule(rows pgx.Rows) (AlertRule, error) {
	var (
		rule       AlertRule
		dailyStr   sql.NullString
		monthlyStr sql.NullString
		spikePct   sql.NullInt64
		webhook    sql.NullString
		createdAt  time.Time
	)

	if err := rows.Scan(
		&rule.ID,
		&rule.ProjectID,
		&dailyStr,
		&monthlyStr,
		&spikePct,
		&rule.EmailEnabled,
		&webhook,
		&createdAt,
	); err != nil {
		return AlertRule{}, err
	}

	if dailyStr.Valid {
		parsed, err := decimal.NewFromString(dailyStr.String)
		if err != nil {
			return AlertRule{}, fmt.Errorf("parse daily budget: %w", err)
		}
		rule.DailyBudget = &parsed
	}
	if monthlyStr.Valid {
		parsed, err := decimal.NewFromString(monthlyStr.String)
		if err != nil {
			return AlertRule{}, fmt.Errorf("parse monthly budget: %w", err)
		}
		rule.MonthlyBudget = &parsed
	}
	if spikePct.Valid {
		pct := int(spikePct.Int64)
		rule.SpikeThresholdPct = &pct
	}
	rule.SlackWebhookURL = nullableString(webhook)
	rule.CreatedAt = createdAt

	return rule, nil
}

func decimalOrNil(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

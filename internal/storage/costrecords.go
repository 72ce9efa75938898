package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	upsertCostRecordSQL = `INSERT INTO cost_records (
        id,
        cloud_account_id,
        project_id,
        service_name,
        amount,
        currency,
        period_start,
        period_end,
        granularity
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (cloud_account_id, service_name, period_start, period_end) DO UPDATE
    SET
        amount     = EXCLUDED.amount,
        currency   = EXCLUDED.currency,
        updated_at = now();`

	listCostRecordsSQL = `SELECT
        id,
        cloud_account_id,
        project_id,
        service_name,
        amount::text,
        currency,
        period_start,
        period_end,
        granularity,
        created_at,
        updated_at
    FROM cost_records
    WHERE cloud_account_id = $1
      AND period_start >= $2
      AND period_end <= $3
    ORDER BY period_start DESC
    LIMIT $4;`

	sumProjectSpendSQL = `SELECT COALESCE(SUM(amount), 0)::text
    FROM cost_records
    WHERE project_id = $1
      AND period_start >= $2
      AND period_start < $3;`

	dailyProjectSpendSQL = `SELECT
        period_start,
        COALESCE(SUM(amount), 0)::text
    FROM cost_records
    WHERE project_id = $1
      AND period_start >= $2
      AND period_start < $3
    GROUP BY period_start
    ORDER BY period_start;`
)

// listCostRecordsCap bounds range queries for display.
const listCostRecordsCap = 500

// CostRecordUpsert is the input for one idempotent cost record write.
type CostRecordUpsert struct {
	CloudAccountID string
	ProjectID      string
	ServiceName    string
	Amount         decimal.Decimal
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Granularity    string
}

// UpsertCostRecords applies a fetch batch atomically. Conflicts on the
// (account, service, period) key resolve last-write-wins so corrected
// provider data replaces earlier amounts.
func (s *Store) UpsertCostRecords(ctx context.Context, upserts []CostRecordUpsert) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(upserts) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, up := range upserts {
		granularity := up.Granularity
		if granularity == "" {
			granularity = GranularityDaily
		}
		batch.Queue(upsertCostRecordSQL,
			uuid.NewString(),
			up.CloudAccountID,
			up.ProjectID,
			up.ServiceName,
			up.Amount.String(),
			up.Currency,
			up.PeriodStart,
			up.PeriodEnd,
			granularity,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range upserts {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("upsert cost record: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close upsert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}
	return len(upserts), nil
}

// ListCostRecords returns records for one account within [from, to), newest
// period first, capped at 500 rows.
func (s *Store) ListCostRecords(ctx context.Context, accountID string, from, to time.Time) ([]CostRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCostRecordsSQL, accountID, from, to, listCostRecordsCap)
	if queryErr != nil {
		return nil, fmt.Errorf("list cost records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]CostRecord, 0)
	for rows.Next() {
		var rec CostRecord
		var amountStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.CloudAccountID,
			&rec.ProjectID,
			&rec.ServiceName,
			&amountStr,
			&rec.Currency,
			&rec.PeriodStart,
			&rec.PeriodEnd,
			&rec.Granularity,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse cost amount: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// SumProjectSpend totals cost record amounts for a project whose period start
// falls within [from, to).
func (s *Store) SumProjectSpend(ctx context.Context, projectID string, from, to time.Time) (decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Zero, err
	}

	var sumStr string
	if scanErr := pool.QueryRow(ctx, sumProjectSpendSQL, projectID, from, to).Scan(&sumStr); scanErr != nil {
		return decimal.Zero, fmt.Errorf("sum project spend: %w", scanErr)
	}

	sum, convErr := decimal.NewFromString(sumStr)
	if convErr != nil {
		return decimal.Zero, fmt.Errorf("parse spend sum: %w", convErr)
	}
	return sum, nil
}

// DailyProjectSpend aggregates project spend per period day within [from, to).
func (s *Store) DailyProjectSpend(ctx context.Context, projectID string, from, to time.Time) ([]DailySpend, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, dailyProjectSpendSQL, projectID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("daily project spend: %w", queryErr)
	}
	defer rows.Close()

	days := make([]DailySpend, 0)
	for rows.Next() {
		var day DailySpend
		var amountStr string
		if err := rows.Scan(&day.Day, &amountStr); err != nil {
			return nil, err
		}
		day.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse daily spend: %w", err)
		}
		days = append(days, day)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return days, nil
}

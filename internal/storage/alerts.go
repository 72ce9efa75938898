package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	insertAlertSentSQL = `INSERT INTO alert_sent (
        id,
        user_id,
        project_id,
        alert_rule_id,
        channel,
        reason,
        payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING sent_at;`

	hasRecentAlertSQL = `SELECT EXISTS (
        SELECT 1
        FROM alert_sent
        WHERE alert_rule_id = $1
          AND reason = $2
          AND sent_at >= $3
    );`

	listAlertHistorySQL = `SELECT
        id,
        user_id,
        project_id,
        alert_rule_id,
        channel,
        reason,
        payload,
        sent_at
    FROM alert_sent
    WHERE project_id = $1
    ORDER BY sent_at DESC
    LIMIT $2;`
)

// InsertAlertSent appends one delivered-notification row. Called only after a
// confirmed successful send on that channel.
func (s *Store) InsertAlertSent(ctx context.Context, sent AlertSent) (AlertSent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertSent{}, err
	}

	if sent.ID == "" {
		sent.ID = uuid.NewString()
	}

	scanErr := pool.QueryRow(ctx, insertAlertSentSQL,
		sent.ID,
		sent.UserID,
		sent.ProjectID,
		sent.AlertRuleID,
		sent.Channel,
		sent.Reason,
		[]byte(sent.Payload),
	).Scan(&sent.SentAt)
	if scanErr != nil {
		return AlertSent{}, fmt.Errorf("insert alert sent: %w", scanErr)
	}
	return sent, nil
}

// HasRecentAlert reports whether the same rule already sent an identical
// reason at or after the given cutoff. This is the deduplication gate.
func (s *Store) HasRecentAlert(ctx context.Context, ruleID, reason string, since time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var exists bool
	if scanErr := pool.QueryRow(ctx, hasRecentAlertSQL, ruleID, reason, since).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("check recent alert: %w", scanErr)
	}
	return exists, nil
}

// ListAlertHistory returns a project's delivered alerts, newest first.
func (s *Store) ListAlertHistory(ctx context.Context, projectID string, limit int) ([]AlertSent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, queryErr := pool.Query(ctx, listAlertHistorySQL, projectID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert history: %w", queryErr)
	}
	defer rows.Close()

	sentRows := make([]AlertSent, 0, limit)
	for rows.Next() {
		var sent AlertSent
		if err := rows.Scan(
			&sent.ID,
			&sent.UserID,
			&sent.ProjectID,
			&sent.AlertRuleID,
			&sent.Channel,
			&sent.Reason,
			&sent.Payload,
			&sent.SentAt,
		); err != nil {
			return nil, err
		}
		sentRows = append(sentRows, sent)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sentRows, nil
}

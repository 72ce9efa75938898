package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GranularityDaily is the only cost record granularity the system ingests.
const GranularityDaily = "DAILY"

// Alert delivery channels.
const (
	ChannelEmail = "EMAIL"
	ChannelSlack = "SLACK"
)

// CostRecord is one persisted (account, service, period) cost observation.
// Periods are half-open date intervals [PeriodStart, PeriodEnd).
type CostRecord struct {
	ID             string
	CloudAccountID string
	ProjectID      string
	ServiceName    string
	Amount         decimal.Decimal
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Granularity    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CloudAccount is a linked provider account whose costs are ingested.
// Credential material stays encrypted at rest.
type CloudAccount struct {
	ID                 string
	UserID             string
	ProjectID          string
	Provider           string
	AccountLabel       string
	ExternalAccountID  string
	RoleArn            *string
	AccessKeyEncrypted *string
	SecretKeyEncrypted *string
	IsActive           bool
	CreatedAt          time.Time
}

// Project groups cloud accounts and alert rules under one owner.
type Project struct {
	ID     string
	UserID string
	Name   string
}

// ProjectOwner pairs a project with its owning user's contact details, as
// needed by notification dispatch.
type ProjectOwner struct {
	Project   Project
	UserID    string
	UserName  string
	UserEmail *string
}

// AlertRule configures budget and spike alerting for one project. At least
// one of DailyBudget, MonthlyBudget, SpikeThresholdPct is always set.
type AlertRule struct {
	ID                string
	ProjectID         string
	DailyBudget       *decimal.Decimal
	MonthlyBudget     *decimal.Decimal
	SpikeThresholdPct *int
	EmailEnabled      bool
	SlackWebhookURL   *string
	CreatedAt         time.Time
}

// AlertSent records one successfully delivered notification on one channel.
// Rows are append-only and drive deduplication.
type AlertSent struct {
	ID          string
	UserID      string
	ProjectID   string
	AlertRuleID string
	Channel     string
	Reason      string
	Payload     json.RawMessage
	SentAt      time.Time
}

// DailySpend is an aggregated per-day project total, used for display and
// chart export.
type DailySpend struct {
	Day    time.Time
	Amount decimal.Decimal
}

package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cloudpulse/internal/storage"
)

// AlertLog reads and appends delivered-notification history.
type AlertLog interface {
	HasRecentAlert(ctx context.Context, ruleID, reason string, since time.Time) (bool, error)
	InsertAlertSent(ctx context.Context, sent storage.AlertSent) (storage.AlertSent, error)
}

// ProjectSource resolves a project's owner for notification routing.
type ProjectSource interface {
	GetProjectOwner(ctx context.Context, projectID string) (storage.ProjectOwner, error)
}

// EmailAlert is the input to the email channel.
type EmailAlert struct {
	To          string
	UserName    string
	ProjectName string
	Reason      string
	Payload     Payload
}

// WebhookAlert is the input to the chat webhook channel.
type WebhookAlert struct {
	ProjectName string
	Reason      string
	Payload     Payload
}

// EmailSender delivers one alert email.
type EmailSender interface {
	SendAlert(ctx context.Context, alert EmailAlert) error
}

// WebhookSender posts one alert to a chat webhook URL.
type WebhookSender interface {
	SendAlert(ctx context.Context, webhookURL string, alert WebhookAlert) error
}

// Dispatcher deduplicates triggers against recent send history and fans out
// to the enabled channels. Channel failures are isolated: a failed send is
// logged, leaves no history row, and never blocks the other channel, so the
// same condition can re-trigger on the next scheduled evaluation.
type Dispatcher struct {
	projects    ProjectSource
	history     AlertLog
	email       EmailSender
	webhook     WebhookSender
	dedupWindow time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDispatcher constructs a notification dispatcher. email may be nil when
// no SMTP transport is configured; email-enabled rules then only use their
// webhook channel.
func NewDispatcher(projects ProjectSource, history AlertLog, email EmailSender, webhook WebhookSender, dedupWindow time.Duration, logger zerolog.Logger) *Dispatcher {
	if dedupWindow <= 0 {
		dedupWindow = 6 * time.Hour
	}
	return &Dispatcher{
		projects:    projects,
		history:     history,
		email:       email,
		webhook:     webhook,
		dedupWindow: dedupWindow,
		now:         time.Now,
		logger:      logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Dispatch processes triggers for one project. Per trigger: the dedup gate
// skips anything whose (rule, reason) was already sent inside the window,
// then each enabled channel is attempted independently and every confirmed
// send is recorded as one history row.
func (d *Dispatcher) Dispatch(ctx context.Context, projectID string, triggers []Trigger) {
	for _, trigger := range triggers {
		cutoff := d.now().Add(-d.dedupWindow)
		recent, err := d.history.HasRecentAlert(ctx, trigger.Rule.ID, trigger.Reason, cutoff)
		if err != nil {
			d.logger.Error().Err(err).Str("rule_id", trigger.Rule.ID).Msg("dedup lookup failed; skipping trigger")
			continue
		}
		if recent {
			d.logger.Debug().Str("rule_id", trigger.Rule.ID).Str("reason", trigger.Reason).Msg("alert suppressed by dedup window")
			continue
		}

		owner, err := d.projects.GetProjectOwner(ctx, projectID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Project deleted between evaluation and dispatch.
				continue
			}
			d.logger.Error().Err(err).Str("project_id", projectID).Msg("resolve project owner failed; skipping trigger")
			continue
		}

		payload, err := EncodePayload(trigger.Payload)
		if err != nil {
			d.logger.Error().Err(err).Str("rule_id", trigger.Rule.ID).Msg("encode payload failed; skipping trigger")
			continue
		}

		if trigger.Rule.EmailEnabled && owner.UserEmail != nil && d.email != nil {
			alert := EmailAlert{
				To:          *owner.UserEmail,
				UserName:    owner.UserName,
				ProjectName: owner.Project.Name,
				Reason:      trigger.Reason,
				Payload:     trigger.Payload,
			}
			if err := d.email.SendAlert(ctx, alert); err != nil {
				d.logger.Error().Err(err).Str("rule_id", trigger.Rule.ID).Msg("email send failed")
			} else {
				d.record(ctx, owner, trigger, storage.ChannelEmail, payload)
			}
		}

		if trigger.Rule.SlackWebhookURL != nil && d.webhook != nil {
			alert := WebhookAlert{
				ProjectName: owner.Project.Name,
				Reason:      trigger.Reason,
				Payload:     trigger.Payload,
			}
			if err := d.webhook.SendAlert(ctx, *trigger.Rule.SlackWebhookURL, alert); err != nil {
				d.logger.Error().Err(err).Str("rule_id", trigger.Rule.ID).Msg("webhook send failed")
			} else {
				d.record(ctx, owner, trigger, storage.ChannelSlack, payload)
			}
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, owner storage.ProjectOwner, trigger Trigger, channel string, payload []byte) {
	sent := storage.AlertSent{
		UserID:      owner.UserID,
		ProjectID:   owner.Project.ID,
		AlertRuleID: trigger.Rule.ID,
		Channel:     channel,
		Reason:      trigger.Reason,
		Payload:     payload,
	}
	if _, err := d.history.InsertAlertSent(ctx, sent); err != nil {
		// The send already happened; a missing row only weakens dedup
		// for the next window.
		d.logger.Error().Err(err).Str("rule_id", trigger.Rule.ID).Str("channel", channel).Msg("failed to record alert send")
	}
}

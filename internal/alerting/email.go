package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	mail "github.com/wneessen/go-mail"

	"cloudpulse/internal/config"
)

// SMTPSender delivers alert emails over SMTP.
type SMTPSender struct {
	client *mail.Client
	from   string
	logger zerolog.Logger
}

// NewSMTPSender constructs the email channel from SMTP settings.
func NewSMTPSender(cfg config.SMTPConfig, logger zerolog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp.host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPSender{
		client: client,
		from:   cfg.From,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}, nil
}

// SendAlert delivers one alert email; the send is bounded by the client
// timeout and the caller's context.
func (s *SMTPSender) SendAlert(ctx context.Context, alert EmailAlert) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(alert.To); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(fmt.Sprintf("CloudPulse Alert: %s", alert.ProjectName))
	msg.SetBodyString(mail.TypeTextPlain, renderEmailBody(alert))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	s.logger.Info().Str("to", alert.To).Str("project", alert.ProjectName).Msg("alert email sent")
	return nil
}

func renderEmailBody(alert EmailAlert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Hi %s,\n\n", alert.UserName))
	builder.WriteString(alert.Reason)
	builder.WriteString("\n\n")
	builder.WriteString(fmt.Sprintf("Project: %s\n", alert.ProjectName))
	if detail := payloadDetail(alert.Payload); detail != "" {
		builder.WriteString(detail)
		builder.WriteString("\n")
	}
	builder.WriteString("\nThis alert was sent by CloudPulse. Manage your alert rules in the dashboard.\n")
	return builder.String()
}

var _ EmailSender = (*SMTPSender)(nil)

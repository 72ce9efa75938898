package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SlackNotifier posts alerts to Slack-style incoming webhooks.
type SlackNotifier struct {
	client *http.Client
	logger zerolog.Logger
}

// NewSlackNotifier constructs the webhook channel.
func NewSlackNotifier(timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_slack").Logger(),
	}
}

// SendAlert posts the alert as a webhook message. Any non-2xx response is a
// delivery failure.
func (n *SlackNotifier) SendAlert(ctx context.Context, webhookURL string, alert WebhookAlert) error {
	payload := map[string]string{
		"text": renderWebhookText(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("project", alert.ProjectName).Msg("alert webhook sent")
	return nil
}

func renderWebhookText(alert WebhookAlert) string {
	builder := strings.Builder{}
	builder.WriteString(":warning: *CloudPulse Alert*\n")
	builder.WriteString(fmt.Sprintf("Project: %s\n", alert.ProjectName))
	builder.WriteString(alert.Reason)
	if detail := payloadDetail(alert.Payload); detail != "" {
		builder.WriteString("\n")
		builder.WriteString(detail)
	}
	return builder.String()
}

var _ WebhookSender = (*SlackNotifier)(nil)

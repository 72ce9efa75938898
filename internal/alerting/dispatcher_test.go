package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cloudpulse/internal/storage"
)

type fakeAlertLog struct {
	inserted  []storage.AlertSent
	lookupErr error
	insertErr error
	clock     *time.Time
}

func (f *fakeAlertLog) HasRecentAlert(_ context.Context, ruleID, reason string, since time.Time) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, sent := range f.inserted {
		if sent.AlertRuleID == ruleID && sent.Reason == reason && !sent.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAlertLog) InsertAlertSent(_ context.Context, sent storage.AlertSent) (storage.AlertSent, error) {
	if f.insertErr != nil {
		return storage.AlertSent{}, f.insertErr
	}
	sent.SentAt = *f.clock
	f.inserted = append(f.inserted, sent)
	return sent, nil
}

type fakeOwnerSource struct {
	owner storage.ProjectOwner
	err   error
}

func (f *fakeOwnerSource) GetProjectOwner(context.Context, string) (storage.ProjectOwner, error) {
	if f.err != nil {
		return storage.ProjectOwner{}, f.err
	}
	return f.owner, nil
}

type fakeEmailSender struct {
	sent []EmailAlert
	err  error
}

func (f *fakeEmailSender) SendAlert(_ context.Context, alert EmailAlert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, alert)
	return nil
}

type fakeWebhookSender struct {
	sent []WebhookAlert
	urls []string
	err  error
}

func (f *fakeWebhookSender) SendAlert(_ context.Context, webhookURL string, alert WebhookAlert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, alert)
	f.urls = append(f.urls, webhookURL)
	return nil
}

func strPtr(v string) *string {
	return &v
}

func testOwner() storage.ProjectOwner {
	return storage.ProjectOwner{
		Project:   storage.Project{ID: "proj-1", UserID: "user-1", Name: "Production"},
		UserID:    "user-1",
		UserName:  "Ada",
		UserEmail: strPtr("ada@example.com"),
	}
}

func testTrigger() Trigger {
	budget := decimal.NewFromInt(50)
	spend := decimal.NewFromFloat(52.5)
	return Trigger{
		Rule: storage.AlertRule{
			ID:              "rule-1",
			ProjectID:       "proj-1",
			DailyBudget:     &budget,
			EmailEnabled:    true,
			SlackWebhookURL: strPtr("https://hooks.example.com/T123"),
		},
		Reason:  fmt.Sprintf("Daily budget exceeded: $%s > $%s", spend.StringFixed(2), budget.StringFixed(2)),
		Payload: DailyBudgetExceeded{TodaySpend: spend, Budget: budget},
	}
}

func newTestDispatcher(history *fakeAlertLog, owner *fakeOwnerSource, email EmailSender, webhook WebhookSender, clock *time.Time) *Dispatcher {
	d := NewDispatcher(owner, history, email, webhook, 6*time.Hour, zerolog.Nop())
	d.now = func() time.Time { return *clock }
	history.clock = clock
	return d
}

func TestDispatchSendsAndRecordsBothChannels(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeAlertLog{}
	email := &fakeEmailSender{}
	webhook := &fakeWebhookSender{}
	d := newTestDispatcher(history, &fakeOwnerSource{owner: testOwner()}, email, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})

	require.Len(t, email.sent, 1)
	require.Equal(t, "ada@example.com", email.sent[0].To)
	require.Len(t, webhook.sent, 1)
	require.Equal(t, []string{"https://hooks.example.com/T123"}, webhook.urls)

	require.Len(t, history.inserted, 2)
	require.Equal(t, storage.ChannelEmail, history.inserted[0].Channel)
	require.Equal(t, storage.ChannelSlack, history.inserted[1].Channel)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(history.inserted[0].Payload, &payload))
	require.Equal(t, `"daily_budget"`, string(payload["type"]))
}

func TestDispatchDedupWindow(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeAlertLog{}
	webhook := &fakeWebhookSender{}
	d := newTestDispatcher(history, &fakeOwnerSource{owner: testOwner()}, nil, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})
	require.Len(t, webhook.sent, 1)

	// Same condition inside the window is suppressed.
	clock = clock.Add(2 * time.Hour)
	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})
	require.Len(t, webhook.sent, 1)

	// Once the window passes the condition re-sends.
	clock = clock.Add(5 * time.Hour)
	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})
	require.Len(t, webhook.sent, 2)
	require.Len(t, history.inserted, 2)
}

func TestDispatchChannelFailureIsolated(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeAlertLog{}
	email := &fakeEmailSender{err: errors.New("smtp timeout")}
	webhook := &fakeWebhookSender{}
	d := newTestDispatcher(history, &fakeOwnerSource{owner: testOwner()}, email, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})

	require.Empty(t, email.sent)
	require.Len(t, webhook.sent, 1)
	require.Len(t, history.inserted, 1)
	require.Equal(t, storage.ChannelSlack, history.inserted[0].Channel)
}

func TestDispatchSkipsWhenDedupLookupFails(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeAlertLog{lookupErr: errors.New("db down")}
	webhook := &fakeWebhookSender{}
	d := newTestDispatcher(history, &fakeOwnerSource{owner: testOwner()}, nil, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})

	require.Empty(t, webhook.sent)
}

func TestDispatchSkipsDeletedProject(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeAlertLog{}
	webhook := &fakeWebhookSender{}
	owner := &fakeOwnerSource{err: fmt.Errorf("project proj-1: %w", storage.ErrNotFound)}
	d := newTestDispatcher(history, owner, nil, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})

	require.Empty(t, webhook.sent)
	require.Empty(t, history.inserted)
}

func TestDispatchEmailRequiresAddressAndSender(t *testing.T) {
	clock := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)

	// Owner without an email address only gets the webhook.
	owner := testOwner()
	owner.UserEmail = nil
	history := &fakeAlertLog{}
	email := &fakeEmailSender{}
	webhook := &fakeWebhookSender{}
	d := newTestDispatcher(history, &fakeOwnerSource{owner: owner}, email, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})
	require.Empty(t, email.sent)
	require.Len(t, webhook.sent, 1)

	// No SMTP transport configured behaves the same way.
	history = &fakeAlertLog{}
	webhook = &fakeWebhookSender{}
	d = newTestDispatcher(history, &fakeOwnerSource{owner: testOwner()}, nil, webhook, &clock)

	d.Dispatch(context.Background(), "proj-1", []Trigger{testTrigger()})
	require.Len(t, webhook.sent, 1)
	require.Len(t, history.inserted, 1)
}

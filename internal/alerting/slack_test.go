package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifierSuccess(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(time.Second, zerolog.Nop())
	alert := WebhookAlert{
		ProjectName: "Production",
		Reason:      "Daily budget exceeded: $52.50 > $50.00",
		Payload: DailyBudgetExceeded{
			TodaySpend: decimal.NewFromFloat(52.5),
			Budget:     decimal.NewFromInt(50),
		},
	}

	require.NoError(t, notifier.SendAlert(context.Background(), srv.URL, alert))
	require.Contains(t, received["text"], "Production")
	require.Contains(t, received["text"], alert.Reason)
	require.Contains(t, received["text"], "Today's spend: $52.50 / Budget: $50.00")
}

func TestSlackNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(time.Second, zerolog.Nop())
	err := notifier.SendAlert(context.Background(), srv.URL, WebhookAlert{ProjectName: "Production", Reason: "test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestEncodePayloadTagsKind(t *testing.T) {
	raw, err := EncodePayload(SpikeDetected{
		TodaySpend:  decimal.NewFromInt(15),
		DailyAvg:    decimal.NewFromInt(10),
		PctIncrease: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "spike", decoded["type"])
	require.Equal(t, "15", decoded["todaySpend"])
	require.Equal(t, "10", decoded["dailyAvg"])
	require.Equal(t, "50", decoded["pctIncrease"])
}

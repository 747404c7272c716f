package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/config"
)

func defaultAlerter() *Alerter {
	return NewAlerter(config.MonitoringConfig{
		FailureRateThreshold:  0.25,
		FallbackRateThreshold: 0.5,
		CostThresholdUSD:      5.0,
	})
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	snap := &Snapshot{
		RunsTotal:     20,
		RunsComplete:  19,
		RunsFailed:    1,
		RunFailRate:   0.05,
		Attempts:      100,
		Fallbacks:     10,
		FallbackRate:  0.1,
		CostUSD:       1.25,
		LookbackHours: 24,
	}
	assert.Empty(t, defaultAlerter().Evaluate(snap))
}

func TestAlerter_Evaluate_RunFailureRate(t *testing.T) {
	snap := &Snapshot{
		RunsTotal:     10,
		RunsComplete:  6,
		RunsFailed:    4,
		RunFailRate:   0.4,
		ItemErrors:    12,
		LookbackHours: 24,
	}

	alerts := defaultAlerter().Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 12, alerts[0].Details["item_errors"])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	snap := &Snapshot{
		RunsTotal:     3,
		RunsComplete:  1,
		RunsFailed:    2,
		RunFailRate:   0.666,
		LookbackHours: 24,
	}
	assert.Empty(t, defaultAlerter().Evaluate(snap))
}

func TestAlerter_Evaluate_FallbackRate(t *testing.T) {
	snap := &Snapshot{
		Attempts:      40,
		Fallbacks:     30,
		Failures:      2,
		FallbackRate:  0.75,
		LookbackHours: 6,
	}

	alerts := defaultAlerter().Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFallbackRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "30 of 40 attempts")

	snap.Attempts, snap.Fallbacks = 8, 6
	assert.Empty(t, defaultAlerter().Evaluate(snap), "too few attempts to judge")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	snap := &Snapshot{
		Attempts:      10,
		CostUSD:       12.5,
		LookbackHours: 24,
	}

	alerts := defaultAlerter().Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$12.50")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	snap := &Snapshot{
		RunsComplete:  5,
		RunsFailed:    5,
		RunFailRate:   0.5,
		Attempts:      50,
		Fallbacks:     50,
		FallbackRate:  1,
		CostUSD:       20,
		LookbackHours: 24,
	}

	alerts := defaultAlerter().Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertRunFailureRate])
	assert.True(t, types[AlertFallbackRate])
	assert.True(t, types[AlertCostOverrun])
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	snap := &Snapshot{
		RunsComplete: 0,
		RunsFailed:   10,
		RunFailRate:  1,
		Attempts:     100,
		Fallbacks:    100,
		FallbackRate: 1,
		CostUSD:      999,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertFallbackRate, Severity: "high", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertRunFailureRate, Message: "test"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
}

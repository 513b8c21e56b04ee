package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	mu   sync.Mutex
	sent []Alert
	fail bool
}

func (c *captureAlerter) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("channel down")
	}
	c.sent = append(c.sent, a)
	return nil
}

func (c *captureAlerter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiAlerter_FansOut(t *testing.T) {
	a1 := &captureAlerter{}
	a2 := &captureAlerter{}
	m := NewMultiAlerter(time.Minute, testLogger(), a1, a2)

	err := m.Send(context.Background(), Alert{Type: AlertTypeBrewError, BrewID: "b1", Title: "scale lost"})
	require.NoError(t, err)
	assert.Equal(t, 1, a1.count())
	assert.Equal(t, 1, a2.count())
}

func TestMultiAlerter_CooldownSuppressesRepeats(t *testing.T) {
	a := &captureAlerter{}
	m := NewMultiAlerter(time.Minute, testLogger(), a)

	alert := Alert{Type: AlertTypeBrewError, BrewID: "b1"}
	require.NoError(t, m.Send(context.Background(), alert))
	require.NoError(t, m.Send(context.Background(), alert))
	assert.Equal(t, 1, a.count(), "second send within cooldown suppressed")

	// Different type for the same brew is a different key.
	require.NoError(t, m.Send(context.Background(), Alert{Type: AlertTypeRecovery, BrewID: "b1"}))
	assert.Equal(t, 2, a.count())
}

func TestMultiAlerter_ReturnsFirstError(t *testing.T) {
	bad := &captureAlerter{fail: true}
	good := &captureAlerter{}
	m := NewMultiAlerter(time.Minute, testLogger(), bad, good)

	err := m.Send(context.Background(), Alert{Type: AlertTypeBatteryLow, BrewID: "b2"})
	require.Error(t, err)
	assert.Equal(t, 1, good.count(), "healthy channel still delivered")
}

func TestSlackAlerter_Send(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackAlerter(srv.URL)
	err := s.Send(context.Background(), Alert{
		Type:    AlertTypeCompleted,
		BrewID:  "b3",
		Title:   "brew finished",
		Message: "1108g of coffee collected",
		Fields:  map[string]string{"strategy": "pid"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(gotBody), "COMPLETED")
	assert.Contains(t, string(gotBody), "b3")
	assert.Contains(t, string(gotBody), "strategy")
}

func TestSlackAlerter_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSlackAlerter(srv.URL)
	assert.Error(t, s.Send(context.Background(), Alert{Type: AlertTypeBrewError}))
}

func TestWebhookAlerter_Send(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhookAlerter(srv.URL)
	err := wh.Send(context.Background(), Alert{Type: AlertTypeBatteryLow, BrewID: "b4", Message: "battery at 5%"})
	require.NoError(t, err)
	assert.Contains(t, string(gotBody), "BATTERY_LOW")
	assert.Contains(t, string(gotBody), "b4")
}

func TestNoopAlerter(t *testing.T) {
	var n NoopAlerter
	assert.NoError(t, n.Send(context.Background(), Alert{Type: AlertTypeBrewError}))
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomnis/coldbrewer/internal/device"
	"github.com/tomnis/coldbrewer/internal/orchestrator"
	"github.com/tomnis/coldbrewer/internal/strategy"
	"github.com/tomnis/coldbrewer/internal/timeseries"
)

type apiRig struct {
	srv   *Server
	ts    *httptest.Server
	scale *device.MockScale
	valve *device.MockValve
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	scale := device.NewMockScale()
	valve := device.NewMockValve()
	base := strategy.DefaultBaseParams()
	base.ScaleInterval = 5 * time.Millisecond
	base.ValveInterval = time.Minute

	orch := orchestrator.New(orchestrator.Config{
		Scale:    scale,
		Valve:    valve,
		Store:    timeseries.NewMemoryStore(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Defaults: base,
	})

	srv := NewServer(orch, slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Tests hammer the mutation endpoints; lift the limits out of the way.
	srv.limiter.rules = []endpointRule{
		{limit: endpointLimit{rps: 10000, burst: 10000}},
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		orch.Kill()
		orch.Wait()
	})
	return &apiRig{srv: srv, ts: ts, scale: scale, valve: valve}
}

func (a *apiRig) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(a.ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (a *apiRig) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(a.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBrewLifecycleOverHTTP(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.post(t, "/api/brew/start", map[string]any{"strategy": "pid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "started", body["status"])
	brewID, _ := body["brew_id"].(string)
	require.NotEmpty(t, brewID)

	resp, body = a.get(t, "/api/brew/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "brewing", body["brew_state"])
	assert.Equal(t, brewID, body["brew_id"])
	assert.Equal(t, "pid", body["strategy"])

	resp, body = a.post(t, "/api/brew/stop?brew_id="+brewID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", body["status"])

	resp, body = a.get(t, "/api/brew/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["brew_state"])
}

func TestStart_ConflictReturns409(t *testing.T) {
	a := newAPIRig(t)

	resp, _ := a.post(t, "/api/brew/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.post(t, "/api/brew/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["recovery_suggestion"])
}

func TestStart_UnknownStrategyReturns400(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.post(t, "/api/brew/start", map[string]any{"strategy": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestStart_MalformedBodyReturns400(t *testing.T) {
	a := newAPIRig(t)

	resp, err := http.Post(a.ts.URL+"/api/brew/start", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStop_BrewIDGuard(t *testing.T) {
	a := newAPIRig(t)

	resp, _ := a.post(t, "/api/brew/stop", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing brew_id")

	resp, _ = a.post(t, "/api/brew/stop?brew_id=bogus", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "wrong brew_id")
}

func TestPauseResumeEndpoints(t *testing.T) {
	a := newAPIRig(t)

	resp, _ := a.post(t, "/api/brew/pause", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nothing to pause")

	_, body := a.post(t, "/api/brew/start", nil)
	brewID := body["brew_id"].(string)

	resp, body = a.post(t, "/api/brew/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["status"])
	assert.Equal(t, brewID, body["brew_id"])

	resp, body = a.post(t, "/api/brew/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "brewing", body["status"])
}

func TestKillEndpoint(t *testing.T) {
	a := newAPIRig(t)

	resp, _ := a.post(t, "/api/brew/kill", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body := a.post(t, "/api/brew/start", nil)
	brewID := body["brew_id"].(string)

	resp, body = a.post(t, "/api/brew/kill", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "killed", body["status"])
	assert.Equal(t, brewID, body["brew_id"])
}

func TestAcquireAndManualValve(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.post(t, "/api/brew/acquire", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acquired", body["status"])
	brewID := body["brew_id"].(string)

	resp, _ = a.post(t, "/api/brew/valve/forward?brew_id="+brewID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.post(t, "/api/brew/valve/forward?brew_id="+brewID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.post(t, "/api/brew/valve/backward?brew_id="+brewID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, a.valve.Position())

	resp, _ = a.post(t, "/api/brew/valve/forward?brew_id=bogus", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = a.post(t, "/api/brew/release?brew_id="+brewID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "released", body["status"])
}

func TestFlowRate_NoSamples(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.get(t, "/api/brew/flow_rate")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["flow_rate"])
}

func TestScaleEndpoint(t *testing.T) {
	a := newAPIRig(t)
	a.scale.SetWeight(88)

	resp, body := a.get(t, "/api/scale")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["connected"])
	assert.InDelta(t, 88.0, body["weight"].(float64), 1e-9)
	assert.Equal(t, "grams", body["units"])
}

func TestStrategiesEndpoint(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.get(t, "/api/strategies")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	names, ok := body["strategies"].([]any)
	require.True(t, ok)
	assert.Len(t, names, 6)
	assert.Contains(t, names, "pid")
	assert.Contains(t, names, "default")

	schemas, ok := body["schemas"].(map[string]any)
	require.True(t, ok)
	pid, ok := schemas["pid"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, pid, "kp")
}

func TestHealthz(t *testing.T) {
	a := newAPIRig(t)

	resp, body := a.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRateLimit_Returns429(t *testing.T) {
	a := newAPIRig(t)
	a.srv.limiter.rules = []endpointRule{
		{method: "POST", prefix: "/api/brew/", limit: endpointLimit{rps: 0.01, burst: 1}},
		{limit: endpointLimit{rps: 10000, burst: 10000}},
	}

	resp, _ := a.post(t, "/api/brew/pause", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode, "burst allows the first request")

	resp, err := http.Post(a.ts.URL+"/api/brew/pause", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Reads keep flowing under the default rule.
	getResp, _ := a.get(t, "/api/brew/status")
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestWebsocketStatusStream(t *testing.T) {
	a := newAPIRig(t)
	a.srv.hub.pushInterval = 10 * time.Millisecond

	_, body := a.post(t, "/api/brew/start", nil)
	brewID := body["brew_id"].(string)

	wsURL := "ws" + strings.TrimPrefix(a.ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var status map[string]any
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "brewing", status["brew_state"])
	assert.Equal(t, brewID, status["brew_id"])

	// Frames keep arriving on the push cadence.
	require.NoError(t, conn.ReadJSON(&status))
}

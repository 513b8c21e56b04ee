// Package httpapi is the rig's wire surface: a REST API over the
// orchestrator plus a websocket status stream. Handlers stay thin; all brew
// semantics live in the orchestrator.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/tomnis/coldbrewer/internal/brewerr"
	"github.com/tomnis/coldbrewer/internal/domain/model"
	"github.com/tomnis/coldbrewer/internal/metrics"
	"github.com/tomnis/coldbrewer/internal/orchestrator"
	"github.com/tomnis/coldbrewer/internal/strategy"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Server exposes the brew API. Construct with NewServer and mount Handler.
type Server struct {
	orch    *orchestrator.Orchestrator
	logger  *slog.Logger
	limiter *RateLimiter
	hub     *statusHub
}

// NewServer wires the API around an orchestrator. Call Close on shutdown to
// stop the rate limiter sweep and the websocket pushers.
func NewServer(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")
	return &Server{
		orch:    orch,
		logger:  logger,
		limiter: NewRateLimiter(logger),
		hub:     newStatusHub(orch, logger),
	}
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
	s.hub.close()
}

// Handler returns the routed handler with rate limiting, CORS and request
// metrics applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/brew/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/brew/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/resume", s.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/acquire", s.handleAcquire).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/release", s.handleRelease).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/kill", s.handleKill).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/flow_rate", s.handleFlowRate).Methods(http.MethodGet)
	r.HandleFunc("/api/brew/valve/forward", s.handleValveForward).Methods(http.MethodPost)
	r.HandleFunc("/api/brew/valve/backward", s.handleValveBackward).Methods(http.MethodPost)
	r.HandleFunc("/api/scale", s.handleScale).Methods(http.MethodGet)
	r.HandleFunc("/api/strategies", s.handleStrategies).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.hub.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{"*"}),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return s.limiter.Wrap(cors(requestMetrics(r)))
}

// requestMetrics counts requests by route template, method and status.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the metrics wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError classifies err and writes the classification as the response
// body with a kind-appropriate status code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	c := brewerr.Classify(err)
	status := statusForKind(c.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", string(c.Kind), "error", err)
	}
	writeJSON(w, status, c)
}

func statusForKind(k brewerr.Kind) int {
	switch k {
	case brewerr.KindBrewConflict:
		return http.StatusConflict
	case brewerr.KindBrewNotFound:
		return http.StatusNotFound
	case brewerr.KindInvalidBrewState, brewerr.KindStrategyCreation, brewerr.KindConfiguration:
		return http.StatusBadRequest
	case brewerr.KindValveNotAcquired:
		return http.StatusConflict
	case brewerr.KindScaleConnection, brewerr.KindScaleNotFound, brewerr.KindTimeSeriesConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireBrewID enforces the brew_id query parameter on mutating endpoints.
func requireBrewID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("brew_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "brew_id query param required"})
		return "", false
	}
	return id, true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req model.StartBrewRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	brew, err := s.orch.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("brew started via API", "brew_id", brew.ID, "strategy", brew.Strategy)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "brew_id": brew.ID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := requireBrewID(w, r)
	if !ok {
		return
	}
	if err := s.orch.Stop(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "brew_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status(r.Context()))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	state, err := s.orch.Pause()
	if err != nil {
		s.writeError(w, err)
		return
	}
	brew, _ := s.orch.Brew()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(state), "brew_id": brew.ID})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	state, err := s.orch.Resume()
	if err != nil {
		s.writeError(w, err)
		return
	}
	brew, _ := s.orch.Brew()
	writeJSON(w, http.StatusOK, map[string]string{"status": string(state), "brew_id": brew.ID})
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	brew, err := s.orch.Acquire(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acquired", "brew_id": brew.ID})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := requireBrewID(w, r)
	if !ok {
		return
	}
	if err := s.orch.Release(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released", "brew_id": id})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	id, err := s.orch.Kill()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "killed", "brew_id": id})
}

type flowRateResponse struct {
	BrewID   string   `json:"brew_id,omitempty"`
	FlowRate *float64 `json:"flow_rate"`
}

func (s *Server) handleFlowRate(w http.ResponseWriter, r *http.Request) {
	resp := flowRateResponse{}
	if brew, ok := s.orch.Brew(); ok {
		resp.BrewID = brew.ID
	}
	if rate, ok := s.orch.FlowRate(r.Context()); ok {
		resp.FlowRate = &rate
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValveForward(w http.ResponseWriter, r *http.Request) {
	id, ok := requireBrewID(w, r)
	if !ok {
		return
	}
	if err := s.orch.StepValveForward(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stepped forward", "brew_id": id})
}

func (s *Server) handleValveBackward(w http.ResponseWriter, r *http.Request) {
	id, ok := requireBrewID(w, r)
	if !ok {
		return
	}
	if err := s.orch.StepValveBackward(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stepped backward", "brew_id": id})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ScaleStatus())
}

type strategiesResponse struct {
	Strategies []strategy.Type                                 `json:"strategies"`
	Schemas    map[strategy.Type]map[string]strategy.ParamSpec `json:"schemas"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, strategiesResponse{
		Strategies: strategy.Types(),
		Schemas:    strategy.Schemas(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

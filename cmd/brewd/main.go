package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tomnis/coldbrewer/internal/alert"
	"github.com/tomnis/coldbrewer/internal/config"
	"github.com/tomnis/coldbrewer/internal/device"
	"github.com/tomnis/coldbrewer/internal/httpapi"
	"github.com/tomnis/coldbrewer/internal/orchestrator"
	"github.com/tomnis/coldbrewer/internal/timeseries"
	"github.com/tomnis/coldbrewer/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (timeseries.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		logger.Info("using redis sample store", "url", cfg.Store.RedisURL)
		return timeseries.NewRedisStore(cfg.Store.RedisURL, cfg.Store.Retention)
	case config.BackendInflux:
		logger.Info("using influxdb sample store", "url", cfg.Store.Influx.URL, "bucket", cfg.Store.Influx.Bucket)
		return timeseries.NewInfluxStore(ctx, cfg.Store.Influx)
	default:
		logger.Info("using in-memory sample store")
		return timeseries.NewMemoryStore(), nil
	}
}

// buildScale returns the mock scale until a physical transport is plugged
// in; a configured MAC address is rejected loudly rather than silently
// mocked.
func buildScale(cfg *config.Config, logger *slog.Logger) (device.Scale, error) {
	if cfg.Scale.MACAddress != "" {
		return nil, fmt.Errorf("physical scale transport not linked into this build; unset COLDBREW_SCALE_MAC_ADDRESS")
	}
	scale := device.NewMockScale()
	scale.DripRate = cfg.Scale.MockDripRate
	if scale.DripRate > 0 {
		logger.Info("mock scale dripping", "rate_gps", scale.DripRate)
	}
	return scale, nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	base := cfg.BaseParams()
	logger.Info("starting brewd",
		"addr", cfg.Server.Addr,
		"store_backend", cfg.Store.Backend,
		"target_flow_rate", base.TargetFlowRate,
		"target_weight", base.TargetWeight,
		"vessel_weight", base.VesselWeight,
		"scale_interval", base.ScaleInterval,
		"valve_interval", base.ValveInterval,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "coldbrewer", cfg.Trace.Endpoint, cfg.Trace.Insecure, cfg.Trace.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Trace.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Trace.Endpoint, "sample_ratio", cfg.Trace.SampleRatio)
	}

	store, err := buildStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sample store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	scale, err := buildScale(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scale", "error", err)
		os.Exit(1)
	}
	valve := device.NewMockValve()

	orch := orchestrator.New(orchestrator.Config{
		Scale:         scale,
		Valve:         valve,
		Store:         store,
		Alerter:       buildAlerter(cfg, logger),
		Logger:        logger,
		Defaults:      base,
		LowBatteryPct: cfg.Scale.LowBatteryPct,
	})

	api := httpapi.NewServer(orch, logger)
	defer api.Close()

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server started", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	// Park the hardware: any live brew is torn down, the valve homed and
	// released, the scale disconnected.
	if _, killErr := orch.Kill(); killErr == nil {
		logger.Info("live brew killed during shutdown")
	}
	orch.Wait()
	if dErr := scale.Disconnect(); dErr != nil {
		logger.Warn("scale disconnect failed during shutdown", "error", dErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("brewd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("brewd shut down gracefully")
}

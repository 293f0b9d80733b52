// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianServe/pkg/logging"
	"github.com/AleutianAI/AleutianServe/services/scoring/artifact"
	"github.com/AleutianAI/AleutianServe/services/scoring/datatypes"
	"github.com/AleutianAI/AleutianServe/services/scoring/handlers"
	"github.com/AleutianAI/AleutianServe/services/scoring/ledger"
	"github.com/AleutianAI/AleutianServe/services/scoring/middleware"
	"github.com/AleutianAI/AleutianServe/services/scoring/monitor"
	"github.com/AleutianAI/AleutianServe/services/scoring/routes"
	"github.com/AleutianAI/AleutianServe/services/scoring/telemetry"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load the configuration: %v", err)
	}

	level, levelErr := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(logging.Config{
		Level:   level,
		Output:  os.Stdout,
		Service: "scoring",
		JSON:    !strings.EqualFold(cfg.LogFormat, "text"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())
	if levelErr != nil {
		slog.Warn("Unknown SCORING_LOG_LEVEL, using info", "value", cfg.LogLevel)
	}

	if level == logging.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Custom binding rules must exist before the first request binds
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := datatypes.RegisterValidations(v); err != nil {
			log.Fatalf("failed to register the validation rules: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter("scoring")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		log.Fatalf("failed to create the metric instruments: %v", err)
	}

	adapter, err := artifact.NewAdapter(cfg.ArtifactPath, slog.Default())
	if err != nil {
		log.Fatalf("failed to load the scoring artifact from %s: %v", cfg.ArtifactPath, err)
	}

	store, err := openLedger(cfg)
	if err != nil {
		log.Fatalf("failed to open the outcome ledger: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Ledger close failed", "error", err)
		}
	}()

	var trigger monitor.Trigger
	if cfg.RetrainWebhookURL != "" {
		trigger, err = monitor.NewWebhookTrigger(cfg.RetrainWebhookURL, slog.Default())
		if err != nil {
			log.Fatalf("failed to configure the retraining webhook: %v", err)
		}
	} else {
		slog.Info("SCORING_RETRAIN_WEBHOOK_URL not set, drift signals will be logged only")
		trigger = monitor.NewLogTrigger(slog.Default())
	}

	statistic, err := monitor.ParseStatistic(cfg.MonitorStatistic)
	if err != nil {
		log.Fatalf("failed to resolve the drift statistic: %v", err)
	}

	mon, err := monitor.New(monitor.Config{
		Interval:   cfg.MonitorInterval,
		Window:     cfg.MonitorWindow,
		MinSamples: cfg.MonitorMinSamples,
		Threshold:  cfg.MonitorThreshold,
		Cooldown:   cfg.MonitorCooldown,
		Statistic:  statistic,
	}, store, trigger, metrics, slog.Default())
	if err != nil {
		log.Fatalf("failed to create the drift monitor: %v", err)
	}

	retention, err := ledger.NewRetentionRunner(store, ledger.RetentionOptions{
		Horizon:  cfg.LedgerRetention,
		Interval: cfg.LedgerPruneInterval,
		Logger:   slog.Default(),
	})
	if err != nil {
		log.Fatalf("failed to create the retention runner: %v", err)
	}

	registerGauges(meter, metrics, store, adapter, mon, cfg.MonitorStatistic)

	if err := mon.Start(ctx); err != nil {
		log.Fatalf("failed to start the drift monitor: %v", err)
	}
	defer mon.Stop()

	if err := retention.Start(); err != nil {
		log.Fatalf("failed to start the retention runner: %v", err)
	}
	defer retention.Stop()

	if cfg.WatchArtifact {
		watcher, err := artifact.NewWatcher(cfg.ArtifactPath, func() error {
			_, err := adapter.Reload()
			recordWatcherReload(metrics, err)
			return err
		}, nil)
		if err != nil {
			log.Fatalf("failed to create the artifact watcher: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("failed to start the artifact watcher: %v", err)
		}
		defer watcher.Stop()
	}

	h := handlers.NewHandlers(adapter, store, slog.Default()).
		WithMonitor(mon).
		WithMetrics(metrics)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("scoring-service"))
	router.Use(telemetry.MetricsMiddleware(metrics))

	routes.SetupRoutes(router, h, limiter, tel)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting the scoring server",
			"port", cfg.Port,
			"version", handlers.ServiceVersion,
			"artifact_version", adapter.Version(),
			"statistic", cfg.MonitorStatistic)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("Shutting down the scoring server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server exited with an error", "error", err)
		os.Exit(1)
	}
}

// openLedger opens the outcome ledger per configuration. The literal path
// "memory" selects Badger's in-memory mode, used in development and tests.
func openLedger(cfg Config) (*ledger.BadgerLedger, error) {
	lcfg := ledger.DefaultConfig()
	if cfg.LedgerPath == "memory" {
		lcfg = ledger.InMemoryConfig()
	} else {
		lcfg.Path = cfg.LedgerPath
	}
	lcfg.Logger = slog.Default()
	return ledger.NewBadgerLedger(lcfg)
}

// registerGauges wires the observable gauges to their live sources. A
// failed registration costs one gauge, not the service, so it is logged
// and startup continues.
func registerGauges(meter metric.Meter, metrics *telemetry.Metrics, store ledger.Ledger,
	adapter *artifact.Adapter, mon *monitor.Monitor, statisticName string) {

	if _, err := metrics.RegisterLedgerPending(meter, func() int64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := store.PendingCount(ctx)
		if err != nil {
			return 0
		}
		return n
	}); err != nil {
		slog.Warn("Ledger pending gauge registration failed", "error", err)
	}

	if _, err := metrics.RegisterArtifactInfo(meter, adapter.Version); err != nil {
		slog.Warn("Artifact info gauge registration failed", "error", err)
	}

	if _, err := metrics.RegisterDriftStatistic(meter, statisticName, mon.StatisticValue); err != nil {
		slog.Warn("Drift statistic gauge registration failed", "error", err)
	}
}

// recordWatcherReload counts watcher-driven reload attempts under the same
// series the reload endpoint uses.
func recordWatcherReload(metrics *telemetry.Metrics, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ArtifactReloadsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("status", status)))
}

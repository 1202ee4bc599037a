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

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/webapk-bot/webapk/internal/artifact"
	"github.com/webapk-bot/webapk/internal/build"
	"github.com/webapk-bot/webapk/internal/build/webapk"
	"github.com/webapk-bot/webapk/internal/buildlock"
	"github.com/webapk-bot/webapk/internal/chat"
	"github.com/webapk-bot/webapk/internal/chat/telegram"
	"github.com/webapk-bot/webapk/internal/flow"
	"github.com/webapk-bot/webapk/internal/history"
	historypg "github.com/webapk-bot/webapk/internal/history/pg"
	"github.com/webapk-bot/webapk/internal/metrics"
	reportamqp "github.com/webapk-bot/webapk/internal/report/amqp"
	"github.com/webapk-bot/webapk/internal/run/runpg"
	"github.com/webapk-bot/webapk/internal/run/runs3"
	"github.com/webapk-bot/webapk/internal/server"
	"github.com/webapk-bot/webapk/internal/session"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := parseConfig(os.Environ())
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if cfg.Development {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	lock := buildlock.New(&cfg.Lock, clockwork.NewRealClock(), logger, recorder)
	lock.Start()
	defer lock.Stop()

	sessions := session.NewStore()
	gateway := telegram.NewClient(cfg.BotToken, cfg.BotAPIURL)
	executor := webapk.NewExecutor(&cfg.Executor, logger)

	orchestrator := build.NewOrchestrator(&cfg.Build, lock, sessions, executor, gateway, logger, recorder)

	if cfg.AMQPConnectionString != "" {
		orchestrator.SetReportSink(reportamqp.NewSink(cfg.AMQPConnectionString))
	}
	var buildLister server.BuildLister
	if cfg.PostgresConnectionString != "" {
		db, err := runpg.NewPool(ctx, cfg.PostgresConnectionString)
		if err != nil {
			return err
		}
		defer db.Close()
		database := historypg.NewDatabase(db)
		orchestrator.SetHistoryRecorder(history.NewRecorder(database))
		buildLister = database
	}
	if cfg.S3ConnectionString != "" {
		s3Client, err := runs3.NewClient(cfg.S3ConnectionString)
		if err != nil {
			return err
		}
		orchestrator.SetArtifactArchiver(artifact.NewArchive(s3Client, cfg.S3Bucket))
	}

	handler := flow.NewHandler(&cfg.Flow, sessions, lock, orchestrator, gateway, logger)

	adminServer := server.New(&cfg.Server, logger, lock, registry, buildLister)
	go func() {
		logger.Info("starting admin server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = adminServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting bot")
	gateway.Poll(ctx, logger, func(u chat.Update) {
		handler.HandleUpdate(ctx, u)
	})
	logger.Info("stopping bot")

	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docsql/docsql/internal/api"
	"github.com/docsql/docsql/internal/auth"
	"github.com/docsql/docsql/internal/config"
	"github.com/docsql/docsql/internal/connection"
	"github.com/docsql/docsql/internal/export"
	"github.com/docsql/docsql/internal/export/sqltable"
	"github.com/docsql/docsql/internal/observability"
	s3store "github.com/docsql/docsql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("docsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	conn, err := connection.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to connect to document store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:      logger,
		Statements:  conn,
		ObjectStore: objectStore,
		Readiness: api.CombineReadinessChecks(
			conn.Ping,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}

	if strings.TrimSpace(cfg.Sink.DSN) != "" {
		sinkDB, err := sqltable.Open(context.Background(), sqltable.DBConfig{
			Driver:       cfg.Sink.Driver,
			DSN:          cfg.Sink.DSN,
			MaxOpenConns: cfg.Sink.MaxOpenConns,
		})
		if err != nil {
			logger.Error("failed to open table sink db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = sinkDB.Close() }()
		deps.TableSinks = func(table string) (export.Sink, error) {
			return sqltable.NewSink(sinkDB, cfg.Sink.Driver, table)
		}
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("database", conn.Database()),
			slog.String("strategy", conn.Strategy().String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

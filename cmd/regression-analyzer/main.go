package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	dynamodbRepo "github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
	"github.com/dreschagin/perf-audit-history/internal/regressionanalyzer"
	"github.com/dreschagin/perf-audit-history/pkg/config"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info(
		"Starting regression analyzer",
		"interval", cfg.Analyzer.Interval.String(),
		"port", cfg.Analyzer.Port,
		"history_backend", cfg.Storage.HistoryBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var history repository.HistoryRepository
	switch cfg.Storage.HistoryBackend {
	case config.BackendPostgres:
		db, openErr := postgres.Open(ctx, postgres.PoolConfig{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		})
		if openErr != nil {
			log.Error("Failed to connect to database", openErr)
			os.Exit(1)
		}
		defer db.Close()
		history = postgres.NewHistoryRepository(db)
	case config.BackendDynamo:
		repo, initErr := dynamodbRepo.NewHistoryRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableHistory,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			StrongReads:     cfg.Dynamo.StrongReads,
		})
		if initErr != nil {
			log.Error("Failed to initialize DynamoDB history", initErr)
			os.Exit(1)
		}
		history = repo
	default:
		// История в памяти принадлежит процессу API и отсюда не видна
		log.Error("Regression analyzer requires a shared history backend", nil,
			"history_backend", cfg.Storage.HistoryBackend)
		os.Exit(1)
	}

	service := regressionanalyzer.NewService(history, cfg.Ingest.RegressionThreshold, cfg.Analyzer.StaleAfter)
	runner := regressionanalyzer.NewRunner(service, log, cfg.Analyzer.Interval, cfg.Analyzer.Timeout)
	handler := regressionanalyzer.NewHandler(runner)

	if _, err := runner.RunOnce(ctx); err != nil {
		log.Error("Initial analyzer cycle failed", err)
	}

	go runner.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Analyzer.Port,
		Handler:      middleware.Recovery(log)(middleware.Logger(log)(handler.Routes())),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Analyzer.Timeout + 5*time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("Regression analyzer HTTP server started", "port", cfg.Analyzer.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Regression analyzer HTTP server failed", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Regression analyzer HTTP server shutdown failed", err)
	}

	log.Info("Regression analyzer stopped")
}

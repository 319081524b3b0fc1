package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Application
	applicationPort "github.com/dreschagin/perf-audit-history/internal/application/port"
	"github.com/dreschagin/perf-audit-history/internal/application/usecase"

	// Domain
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/schema"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"

	// Infrastructure
	redisCache "github.com/dreschagin/perf-audit-history/internal/infrastructure/cache/redis"
	natsInfra "github.com/dreschagin/perf-audit-history/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/observability/cloudwatch"
	prom "github.com/dreschagin/perf-audit-history/internal/infrastructure/observability/prometheus"
	dynamodbRepo "github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/perf-audit-history/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/perf-audit-history/internal/interfaces/http"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/handler"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/perf-audit-history/pkg/config"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting audit history API",
		"history_backend", cfg.Storage.HistoryBackend,
		"detail_backend", cfg.Storage.DetailBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readiness := make(map[string]handler.ReadinessCheck)

	// 3. Подключаемся к БД, если она нужна хотя бы одному хранилищу
	var db *sql.DB
	if cfg.UsesPostgres() {
		db, err = postgres.Open(ctx, postgres.PoolConfig{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			log.Error("Failed to connect to database", err)
			os.Exit(1)
		}
		defer db.Close()
		readiness["postgres"] = db.PingContext
		log.Info("Database connected successfully")
	}

	// 4. Dependency Injection - Infrastructure Layer

	history, err := buildHistoryRepository(ctx, cfg, db)
	if err != nil {
		log.Error("Failed to initialize history repository", err)
		os.Exit(1)
	}

	details, err := buildDetailRepository(ctx, cfg, db)
	if err != nil {
		log.Error("Failed to initialize report detail storage", err)
		os.Exit(1)
	}

	// Кеш чтения истории
	var cache applicationPort.Cache
	if cfg.Redis.Enabled {
		cacheImpl, initErr := redisCache.NewRedisCache(redisCache.Options{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Redis.TTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if initErr != nil {
			log.Warn("Failed to connect to Redis, continuing without cache", "error", initErr.Error())
		} else {
			cache = cacheImpl
			defer cacheImpl.Close()
			readiness["redis"] = cacheImpl.Ping
			log.Info("Redis cache initialized", "ttl", cfg.Redis.TTL.String())
		}
	} else {
		log.Warn("Redis cache is disabled")
	}

	// Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prom.New(registry)

	// 4.5. CloudWatch Integration

	// CloudWatch Metrics Publisher
	var metricsPublisher *cloudwatch.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		metricsPublisher, err = cloudwatch.NewMetricsPublisher(ctx,
			cloudwatch.MetricsPublisherConfig{
				Namespace:         cfg.CloudWatch.MetricsNamespace,
				Region:            cfg.CloudWatch.Region,
				Endpoint:          cfg.CloudWatch.Endpoint,
				AccessKeyID:       cfg.CloudWatch.AccessKeyID,
				SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
				DefaultDimensions: cfg.CloudWatch.MetricsDimensions,
				BufferSize:        cfg.CloudWatch.MetricsBufferSize,
				FlushInterval:     cfg.CloudWatch.MetricsFlushInterval,
			}, log)
		if err != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", err)
			os.Exit(1)
		}
		log.Info("CloudWatch metrics publisher initialized")
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	// CloudWatch Logs Publisher
	var logsPublisher *cloudwatch.LogsPublisher
	if cfg.CloudWatch.LogsEnabled {
		logsPublisher, err = cloudwatch.NewLogsPublisher(ctx,
			cloudwatch.LogsPublisherConfig{
				LogGroupName:    cfg.CloudWatch.LogGroupName,
				LogStreamName:   cfg.CloudWatch.LogStreamName,
				Region:          cfg.CloudWatch.Region,
				Endpoint:        cfg.CloudWatch.Endpoint,
				AccessKeyID:     cfg.CloudWatch.AccessKeyID,
				SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
				BufferSize:      cfg.CloudWatch.LogsBufferSize,
				FlushInterval:   cfg.CloudWatch.LogsFlushInterval,
				AutoCreate:      true,
			})
		if err != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", err)
			os.Exit(1)
		}
		log.SetPublisher(cloudwatch.NewLoggerSink(logsPublisher, "audit-history-api"))
		log.Info("CloudWatch logs publisher initialized")
	} else {
		log.Warn("CloudWatch logs publishing is disabled")
	}

	// 4.6. NATS Event Publisher
	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewNATSPublisher(natsInfra.Options{
			URL:           cfg.NATS.URL,
			StreamName:    cfg.NATS.StreamName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxAge:        cfg.NATS.StreamMaxAge,
		}, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL, "stream", cfg.NATS.StreamName)
		}
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	// 5. Dependency Injection - Domain Layer

	schemas := schema.NewRegistry()
	selector := service.NewAttemptSelector()
	resolver := service.NewProfileResolver()
	aggregator := service.NewTrendAggregator()
	validator := service.NewSummaryValidator()

	// 6. Dependency Injection - Application Layer (Use Cases)

	appendHistoryUC := usecase.NewAppendHistoryUseCase(history, validator, cache, log)

	var runMetrics applicationPort.MetricsPublisher
	if metricsPublisher != nil {
		runMetrics = metricsPublisher
	}

	ingestRunUC := usecase.NewIngestRunUseCase(
		schemas,
		selector,
		resolver,
		aggregator,
		history,
		details,
		appendHistoryUC,
		eventPublisher, // nil, если NATS выключен
		runMetrics,     // nil, если CloudWatch выключен
		metrics,
		usecase.IngestRunConfig{
			MaxAttempts:         cfg.Ingest.MaxAttempts,
			Concurrency:         cfg.Ingest.Concurrency,
			RegressionThreshold: cfg.Ingest.RegressionThreshold,
			SubjectPrefix:       cfg.NATS.SubjectPrefix,
		},
		log,
	)

	getTrendUC := usecase.NewGetTrendUseCase(history, aggregator, cache, log)
	getLatestUC := usecase.NewGetLatestUseCase(history, cache, log)
	getReportDetailUC := usecase.NewGetReportDetailUseCase(details)

	// 7. Dependency Injection - Interfaces Layer (HTTP Handlers)

	auditAPIHandler := handler.NewAuditAPIHandler(
		ingestRunUC,
		getTrendUC,
		getLatestUC,
		getReportDetailUC,
		cfg.Server.MaxBodyBytes,
		log,
	)
	healthHandler := handler.NewHealthHandler(readiness, log)
	limiter := middleware.NewIPRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)

	router := httpInterface.NewRouter(
		auditAPIHandler,
		healthHandler,
		limiter,
		metrics,
		cfg.Security,
		log,
	)

	// 8. Запускаем фоновые процессы

	go limiter.Run(ctx, time.Minute)

	// 9. Настраиваем HTTP сервер

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Канал для получения сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Запускаем сервер в отдельной goroutine
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 10. Ожидаем сигнал для graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Сначала дожидаемся текущих запросов, затем сбрасываем буферы
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	if metricsPublisher != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := metricsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	log.Info("Server stopped gracefully")

	if logsPublisher != nil {
		log.SetPublisher(nil)
		if err := logsPublisher.Close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush CloudWatch logs: %v\n", err)
		}
	}
}

func buildHistoryRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.HistoryRepository, error) {
	switch cfg.Storage.HistoryBackend {
	case config.BackendPostgres:
		return postgres.NewHistoryRepository(db), nil
	case config.BackendDynamo:
		return dynamodbRepo.NewHistoryRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableHistory,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			StrongReads:     cfg.Dynamo.StrongReads,
		})
	case config.BackendMemory:
		return memory.NewHistoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Storage.HistoryBackend)
	}
}

func buildDetailRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.ReportDetailRepository, error) {
	switch cfg.Storage.DetailBackend {
	case config.BackendPostgres:
		return postgres.NewDetailRepository(db), nil
	case config.BackendS3:
		return s3storage.NewReportStore(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			KeyPrefix:       cfg.S3.KeyPrefix,
		})
	case config.BackendMemory:
		return memory.NewDetailRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported detail backend %q", cfg.Storage.DetailBackend)
	}
}

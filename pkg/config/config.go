package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
	BackendS3       = "s3"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	S3         S3Config
	Dynamo     DynamoConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	Ingest     IngestConfig
	Analyzer   AnalyzerConfig
	Security   SecurityConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// StorageConfig выбирает backend для истории и для полных отчетов
type StorageConfig struct {
	HistoryBackend string
	DetailBackend  string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type DynamoConfig struct {
	TableHistory    string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
	StreamName    string
	StreamMaxAge  time.Duration
}

type CloudWatchConfig struct {
	MetricsEnabled       bool
	LogsEnabled          bool
	Region               string
	Endpoint             string
	AccessKeyID          string
	SecretAccessKey      string
	MetricsNamespace     string
	MetricsDimensions    map[string]string
	MetricsBufferSize    int
	MetricsFlushInterval time.Duration
	LogGroupName         string
	LogStreamName        string
	LogsBufferSize       int
	LogsFlushInterval    time.Duration
}

type IngestConfig struct {
	MaxAttempts         int
	Concurrency         int
	RegressionThreshold float64
}

// AnalyzerConfig настраивает периодический анализ регрессий
type AnalyzerConfig struct {
	Port       string
	Interval   time.Duration
	Timeout    time.Duration
	StaleAfter time.Duration
}

type SecurityConfig struct {
	AuthEnabled    bool
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	maxBodyMB, err := strconv.Atoi(getEnv("SERVER_MAX_BODY_MB", "32"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_MAX_BODY_MB: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	redisTTL, err := time.ParseDuration(getEnv("REDIS_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_TTL: %w", err)
	}

	metricsFlush, err := time.ParseDuration(getEnv("CLOUDWATCH_METRICS_FLUSH_INTERVAL", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_METRICS_FLUSH_INTERVAL: %w", err)
	}

	logsFlush, err := time.ParseDuration(getEnv("CLOUDWATCH_LOGS_FLUSH_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_LOGS_FLUSH_INTERVAL: %w", err)
	}

	maxAttempts, err := strconv.Atoi(getEnv("INGEST_MAX_ATTEMPTS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_MAX_ATTEMPTS: %w", err)
	}

	concurrency, err := strconv.Atoi(getEnv("INGEST_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CONCURRENCY: %w", err)
	}

	regressionThreshold, err := strconv.ParseFloat(getEnv("INGEST_REGRESSION_THRESHOLD", "0.05"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_REGRESSION_THRESHOLD: %w", err)
	}

	streamMaxAge, err := time.ParseDuration(getEnv("NATS_STREAM_MAX_AGE", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_AGE: %w", err)
	}

	analyzerInterval, err := time.ParseDuration(getEnv("ANALYZER_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZER_INTERVAL: %w", err)
	}

	analyzerTimeout, err := time.ParseDuration(getEnv("ANALYZER_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZER_TIMEOUT: %w", err)
	}

	staleAfter, err := time.ParseDuration(getEnv("ANALYZER_STALE_AFTER", "48h"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZER_STALE_AFTER: %w", err)
	}

	rateLimitRPS, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	rateLimitBurst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    int64(maxBodyMB) * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "audit_history"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Storage: StorageConfig{
			HistoryBackend: strings.ToLower(getEnv("HISTORY_BACKEND", BackendPostgres)),
			DetailBackend:  strings.ToLower(getEnv("DETAIL_BACKEND", BackendPostgres)),
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "audit-details"),
		},
		Dynamo: DynamoConfig{
			TableHistory:    getEnv("DYNAMODB_TABLE_HISTORY", "audit_history"),
			Region:          getEnv("DYNAMODB_REGION", "us-east-1"),
			Endpoint:        getEnv("DYNAMODB_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMODB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMODB_SECRET_ACCESS_KEY", ""),
			StrongReads:     getEnvBool("DYNAMODB_STRONG_READS", true),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			TTL:          redisTTL,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "audit"),
			StreamName:    getEnv("NATS_STREAM", "AUDIT_RUNS"),
			StreamMaxAge:  streamMaxAge,
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:       getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:          getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:               getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:             getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:          getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			MetricsNamespace:     getEnv("CLOUDWATCH_METRICS_NAMESPACE", "PerfAuditHistory/Runs"),
			MetricsDimensions:    parseDimensions(getEnv("CLOUDWATCH_METRICS_DIMENSIONS", "")),
			MetricsBufferSize:    getEnvInt("CLOUDWATCH_METRICS_BUFFER_SIZE", 100),
			MetricsFlushInterval: metricsFlush,
			LogGroupName:         getEnv("CLOUDWATCH_LOG_GROUP", "/perf-audit-history/api"),
			LogStreamName:        getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("local")),
			LogsBufferSize:       getEnvInt("CLOUDWATCH_LOGS_BUFFER_SIZE", 50),
			LogsFlushInterval:    logsFlush,
		},
		Ingest: IngestConfig{
			MaxAttempts:         maxAttempts,
			Concurrency:         concurrency,
			RegressionThreshold: regressionThreshold,
		},
		Analyzer: AnalyzerConfig{
			Port:       getEnv("ANALYZER_PORT", "8081"),
			Interval:   analyzerInterval,
			Timeout:    analyzerTimeout,
			StaleAfter: staleAfter,
		},
		Security: SecurityConfig{
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}

	switch c.Storage.HistoryBackend {
	case BackendMemory, BackendPostgres, BackendDynamo:
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND: %s", c.Storage.HistoryBackend)
	}

	switch c.Storage.DetailBackend {
	case BackendMemory, BackendPostgres, BackendS3:
	default:
		return fmt.Errorf("unsupported DETAIL_BACKEND: %s", c.Storage.DetailBackend)
	}

	if c.Storage.DetailBackend == BackendS3 && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when DETAIL_BACKEND=s3")
	}

	if c.Analyzer.Interval < 5*time.Second {
		return fmt.Errorf("ANALYZER_INTERVAL must be >= 5s")
	}

	if c.Ingest.MaxAttempts <= 0 {
		return fmt.Errorf("INGEST_MAX_ATTEMPTS must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("INGEST_CONCURRENCY must be positive")
	}
	if c.Ingest.RegressionThreshold < 0 || c.Ingest.RegressionThreshold > 1 {
		return fmt.Errorf("INGEST_REGRESSION_THRESHOLD must be within [0,1]")
	}

	return nil
}

// UsesPostgres сообщает, нужен ли процессу пул соединений с БД
func (c *Config) UsesPostgres() bool {
	return c.Storage.HistoryBackend == BackendPostgres || c.Storage.DetailBackend == BackendPostgres
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// parseDimensions разбирает строку вида "Environment=prod,Team=web"
func parseDimensions(raw string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

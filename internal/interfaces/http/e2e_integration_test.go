//go:build integration
// +build integration

package http

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/dreschagin/perf-audit-history/internal/application/dto"
	"github.com/dreschagin/perf-audit-history/internal/application/usecase"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
	"github.com/dreschagin/perf-audit-history/internal/domain/schema"
	"github.com/dreschagin/perf-audit-history/internal/domain/service"
	dynamodbRepo "github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/perf-audit-history/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/perf-audit-history/internal/infrastructure/storage/s3"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/handler"
	"github.com/dreschagin/perf-audit-history/internal/interfaces/http/middleware"
	"github.com/dreschagin/perf-audit-history/pkg/config"
	"github.com/dreschagin/perf-audit-history/pkg/logger"
)

const (
	integrationToken = "integration-token"
)

type integrationEnv struct {
	postgresDSN     string
	s3Endpoint      string
	s3Region        string
	s3AccessKey     string
	s3SecretKey     string
	s3Bucket        string
	s3UsePathStyle  bool
	dynamoEndpoint  string
	dynamoRegion    string
	dynamoAccessKey string
	dynamoSecretKey string
	dynamoTable     string
}

func loadIntegrationEnv() integrationEnv {
	return integrationEnv{
		postgresDSN:     getenv("INTEGRATION_POSTGRES_DSN", "host=localhost port=5432 user=postgres password=postgres dbname=audit_history sslmode=disable"),
		s3Endpoint:      getenv("INTEGRATION_S3_ENDPOINT", "http://localhost:9000"),
		s3Region:        getenv("INTEGRATION_S3_REGION", "us-east-1"),
		s3AccessKey:     getenv("INTEGRATION_S3_ACCESS_KEY", "minioadmin"),
		s3SecretKey:     getenv("INTEGRATION_S3_SECRET_KEY", "minioadmin"),
		s3Bucket:        getenv("INTEGRATION_S3_BUCKET", "audit-reports-e2e"),
		s3UsePathStyle:  true,
		dynamoEndpoint:  getenv("INTEGRATION_DYNAMO_ENDPOINT", "http://localhost:8000"),
		dynamoRegion:    getenv("INTEGRATION_DYNAMO_REGION", "us-east-1"),
		dynamoAccessKey: getenv("INTEGRATION_DYNAMO_ACCESS_KEY", "dynamo"),
		dynamoSecretKey: getenv("INTEGRATION_DYNAMO_SECRET_KEY", "dynamo"),
		dynamoTable:     getenv("INTEGRATION_DYNAMO_TABLE", "audit_history_e2e"),
	}
}

func TestE2EIntegrationPostgresHistory(t *testing.T) {
	env := loadIntegrationEnv()

	db := connectPostgres(t, env.postgresDSN)
	t.Cleanup(func() { _ = db.Close() })
	applyMigrations(t, db)
	cleanupAudits(t, db)

	server := integrationServer(t, postgres.NewHistoryRepository(db), postgres.NewDetailRepository(db))
	exerciseHistory(t, server, "shop")

	readyResp := doRequest(t, server.Client(), http.MethodGet, server.URL+"/readyz", nil, nil)
	if readyResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for readyz, got %d", readyResp.StatusCode)
	}
	readyResp.Body.Close()
}

func TestE2EIntegrationDynamoHistoryWithS3Details(t *testing.T) {
	env := loadIntegrationEnv()
	ctx := context.Background()

	ensureS3Bucket(t, ctx, env)
	ensureDynamoTable(t, ctx, env)

	history, err := dynamodbRepo.NewHistoryRepository(ctx, dynamodbRepo.Config{
		TableName:       env.dynamoTable,
		Region:          env.dynamoRegion,
		Endpoint:        env.dynamoEndpoint,
		AccessKeyID:     env.dynamoAccessKey,
		SecretAccessKey: env.dynamoSecretKey,
		StrongReads:     true,
	})
	if err != nil {
		t.Fatalf("init dynamodb repo: %v", err)
	}

	details, err := s3storage.NewReportStore(ctx, s3storage.Config{
		Bucket:          env.s3Bucket,
		Region:          env.s3Region,
		Endpoint:        env.s3Endpoint,
		AccessKeyID:     env.s3AccessKey,
		SecretAccessKey: env.s3SecretKey,
		UsePathStyle:    env.s3UsePathStyle,
		KeyPrefix:       "e2e",
	})
	if err != nil {
		t.Fatalf("init s3 report store: %v", err)
	}

	// Таблица не очищается между запусками, поэтому сайт уникален
	server := integrationServer(t, history, details)
	exerciseHistory(t, server, "shop-"+uuid.NewString()[:8])
}

// exerciseHistory проходит весь цикл: прием, отказ по порядку, история, детали
func exerciseHistory(t *testing.T, server *httptest.Server, siteID string) {
	t.Helper()
	client := server.Client()
	headers := map[string]string{"Authorization": "Bearer " + integrationToken}
	site := map[string]interface{}{"site_id": siteID}

	var detailID string
	for i, score := range []float64{0.92, 0.61} {
		fetchTime := time.Date(2024, 5, 1+i, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
		resp := doRequest(t, client, http.MethodPost, server.URL+"/api/v1/runs",
			ingestBody(t, int64(i+1), site, lighthouseReport("6.4.1", fetchTime, score)), headers)
		expectStatus(t, resp, http.StatusCreated)

		var result dto.RunResultDTO
		decodeJSON(t, resp, &result)
		detailID = result.Summary.DetailID
		if i == 1 && result.Regression == nil {
			t.Fatal("expected regression on second run")
		}
	}

	resp := doRequest(t, client, http.MethodPost, server.URL+"/api/v1/runs",
		ingestBody(t, 1, site, lighthouseReport("6.4.1", "2024-05-03T10:00:00Z", 0.9)), headers)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	query := url.Values{
		"site_id":      {siteID},
		"page_id":      {"home"},
		"device":       {"mobile"},
		"tool_version": {"6.4.1"},
	}
	resp = doRequest(t, client, http.MethodGet, server.URL+"/api/v1/trend?"+query.Encode(), nil, headers)
	expectStatus(t, resp, http.StatusOK)

	var trend dto.TrendDTO
	decodeJSON(t, resp, &trend)
	if len(trend.Runs) != 2 || trend.Runs[0].RunID != 1 || trend.Runs[1].RunID != 2 {
		t.Fatalf("unexpected trend: %+v", trend.Runs)
	}

	resp = doRequest(t, client, http.MethodGet, server.URL+"/api/v1/latest?"+query.Encode(), nil, headers)
	expectStatus(t, resp, http.StatusOK)

	var latest dto.AuditSummaryDTO
	decodeJSON(t, resp, &latest)
	if latest.RunID != 2 || latest.DetailID != detailID {
		t.Fatalf("unexpected latest: %+v", latest)
	}

	resp = doRequest(t, client, http.MethodGet, server.URL+"/api/v1/details/"+detailID, nil, headers)
	expectStatus(t, resp, http.StatusOK)

	var detail map[string]interface{}
	decodeJSON(t, resp, &detail)
	if detail["overallScore"] != 0.61 {
		t.Fatalf("unexpected detail score %v", detail["overallScore"])
	}
}

func integrationServer(t *testing.T, history repository.HistoryRepository, details repository.ReportDetailRepository) *httptest.Server {
	t.Helper()
	log := logger.New("error")

	aggregator := service.NewTrendAggregator()
	appender := usecase.NewAppendHistoryUseCase(history, service.NewSummaryValidator(), nil, log)
	ingestUC := usecase.NewIngestRunUseCase(
		schema.NewRegistry(),
		service.NewAttemptSelector(),
		service.NewProfileResolver(),
		aggregator,
		history,
		details,
		appender,
		nil,
		nil,
		nil,
		usecase.IngestRunConfig{MaxAttempts: 5, Concurrency: 2, RegressionThreshold: 0.1},
		log,
	)

	auditHandler := handler.NewAuditAPIHandler(
		ingestUC,
		usecase.NewGetTrendUseCase(history, aggregator, nil, log),
		usecase.NewGetLatestUseCase(history, nil, log),
		usecase.NewGetReportDetailUseCase(details),
		0,
		log,
	)

	readiness := map[string]handler.ReadinessCheck{
		"history": func(ctx context.Context) error {
			_, err := history.ListSlots(ctx)
			return err
		},
	}

	router := NewRouter(
		auditHandler,
		handler.NewHealthHandler(readiness, log),
		middleware.NewIPRateLimiter(100, 100),
		nil,
		config.SecurityConfig{AuthEnabled: true, AuthToken: integrationToken},
		log,
	)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server
}

func connectPostgres(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	return db
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "infrastructure", "persistence", "postgres", "migrations")
	paths := []string{
		filepath.Join(dir, "001_init.sql"),
		filepath.Join(dir, "002_indexes.sql"),
		filepath.Join(dir, "003_profile_snapshot.sql"),
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read migration %s: %v", path, err)
		}
		sqlText := stripGooseDirectives(string(raw))
		if strings.TrimSpace(sqlText) == "" {
			continue
		}
		if _, err := db.Exec(sqlText); err != nil {
			t.Fatalf("apply migration %s: %v", path, err)
		}
	}
}

func stripGooseDirectives(raw string) string {
	lines := strings.Split(raw, "\n")
	filtered := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- +goose") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}

func cleanupAudits(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE audit_summaries, audit_heads, report_details"); err != nil {
		t.Fatalf("cleanup audit tables: %v", err)
	}
}

func ensureS3Bucket(t *testing.T, ctx context.Context, env integrationEnv) {
	t.Helper()
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(env.s3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			env.s3AccessKey,
			env.s3SecretKey,
			"",
		)),
	)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}
	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = &env.s3Endpoint
		options.UsePathStyle = env.s3UsePathStyle
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &env.s3Bucket,
	})
	if err != nil && !isBucketExistsError(err) {
		t.Fatalf("create bucket: %v", err)
	}
}

func isBucketExistsError(err error) bool {
	var alreadyOwned *s3.BucketAlreadyOwnedByYou
	var alreadyExists *s3.BucketAlreadyExists
	if errors.As(err, &alreadyOwned) || errors.As(err, &alreadyExists) {
		return true
	}
	if strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") || strings.Contains(err.Error(), "BucketAlreadyExists") {
		return true
	}
	return false
}

func ensureDynamoTable(t *testing.T, ctx context.Context, env integrationEnv) {
	t.Helper()
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(env.dynamoRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			env.dynamoAccessKey,
			env.dynamoSecretKey,
			"",
		)),
	)
	if err != nil {
		t.Fatalf("load dynamo config: %v", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		options.BaseEndpoint = &env.dynamoEndpoint
	})

	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &env.dynamoTable,
	})
	if err == nil {
		return
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &env.dynamoTable,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: stringPtr("PK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: stringPtr("SK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: stringPtr("PK"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: stringPtr("SK"), KeyType: ddbtypes.KeyTypeRange},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		t.Fatalf("create dynamodb table: %v", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: &env.dynamoTable}, 30*time.Second); err != nil {
		t.Fatalf("wait for table: %v", err)
	}
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func stringPtr(value string) *string {
	return &value
}

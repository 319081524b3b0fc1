package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
)

const contentTypeJSON = "application/json"

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ReportStore реализует repository.ReportDetailRepository поверх S3-совместимого хранилища.
// Каждый отчет - отдельный JSON-объект, записываемый один раз.
type ReportStore struct {
	client    objectAPI
	bucket    string
	keyPrefix string
}

func NewReportStore(ctx context.Context, cfg Config) (*ReportStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3 access key id and secret are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ru-central1"
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://storage.yandexcloud.net"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		options.BaseEndpoint = &cfg.Endpoint
		options.UsePathStyle = cfg.UsePathStyle
	})

	return newReportStore(client, cfg.Bucket, cfg.KeyPrefix), nil
}

func newReportStore(client objectAPI, bucket, keyPrefix string) *ReportStore {
	prefix := strings.Trim(strings.TrimSpace(keyPrefix), "/")
	if prefix == "" {
		prefix = "audit-details"
	}
	return &ReportStore{
		client:    client,
		bucket:    strings.TrimSpace(bucket),
		keyPrefix: prefix,
	}
}

// Save записывает отчет; существующий объект не перезаписывается
func (s *ReportStore) Save(ctx context.Context, id string, report *entity.CanonicalReport) error {
	key, err := s.objectKey(id)
	if err != nil {
		return err
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	contentType := contentTypeJSON
	ifNoneMatch := "*"
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
		IfNoneMatch: &ifNoneMatch,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("report %s: %w", id, repository.ErrConflict)
		}
		return fmt.Errorf("put object failed: %w", err)
	}

	return nil
}

// FindByID читает отчет по идентификатору
func (s *ReportStore) FindByID(ctx context.Context, id string) (*entity.CanonicalReport, error) {
	key, err := s.objectKey(id)
	if err != nil {
		return nil, err
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("report %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("get object failed: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read object failed: %w", err)
	}

	var report entity.CanonicalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// objectKey раскладывает объекты по двухсимвольным префиксам
func (s *ReportStore) objectKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid report id %q", id)
	}

	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return fmt.Sprintf("%s/%s/%s.json", s.keyPrefix, shard, id), nil
}

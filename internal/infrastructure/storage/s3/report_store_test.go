package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dreschagin/perf-audit-history/internal/domain/entity"
	"github.com/dreschagin/perf-audit-history/internal/domain/repository"
)

type fakeObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, exists := f.objects[*in.Key]; exists && in.IfNoneMatch != nil {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestReportStore_SaveAndFind(t *testing.T) {
	objects := newFakeObjects()
	store := newReportStore(objects, "bucket", "/details/")
	ctx := context.Background()

	report := &entity.CanonicalReport{
		ToolVersion:  "12.0.0",
		RequestedURL: "https://example.com/",
		FetchTime:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		OverallScore: 0.91,
	}
	if err := store.Save(ctx, "abcdef", report); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, ok := objects.objects["details/ab/abcdef.json"]; !ok {
		t.Fatalf("unexpected object keys: %v", objects.objects)
	}
	if objects.types["details/ab/abcdef.json"] != contentTypeJSON {
		t.Fatal("expected json content type")
	}

	got, err := store.FindByID(ctx, "abcdef")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.OverallScore != 0.91 || got.ToolVersion != "12.0.0" {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestReportStore_Errors(t *testing.T) {
	store := newReportStore(newFakeObjects(), "bucket", "")
	ctx := context.Background()
	report := &entity.CanonicalReport{ToolVersion: "12.0.0"}

	if err := store.Save(ctx, "id-1", report); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "id-1", report); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Save(ctx, "../escape", report); err == nil {
		t.Fatal("expected error for id with path separator")
	}
}

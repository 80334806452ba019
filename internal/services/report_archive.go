package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/harrissondutra/fitOS-sub014/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ReportArchive keeps run summaries so failed tenants can be reviewed and
// retried after the process exits.
type ReportArchive interface {
	Archive(ctx context.Context, summary *models.RunSummary) (string, error)
}

type minioReportArchive struct {
	client *minio.Client
	bucket string
}

func NewMinioReportArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (ReportArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, err
	}
	return &minioReportArchive{client: client, bucket: bucket}, nil
}

// ObjectName is the archive key of a run.
func ObjectName(runID string) string {
	return "migrations/" + runID + ".json"
}

func (a *minioReportArchive) Archive(ctx context.Context, summary *models.RunSummary) (string, error) {
	if err := a.ensureBucketExists(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", a.bucket, err)
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	name := ObjectName(summary.RunID)
	_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return name, nil
}

func (a *minioReportArchive) ensureBucketExists(ctx context.Context) error {
	found, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !found {
		return a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

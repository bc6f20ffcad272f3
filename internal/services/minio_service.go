package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"stockroom/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// TagArchiver keeps a copy of every tag that reaches a terminal state
type TagArchiver interface {
	Archive(ctx context.Context, tag *models.Tag) error
	EnsureBucketExists(ctx context.Context) error
	// Ping checks that the archive bucket is reachable and exists
	Ping(ctx context.Context) error
}

// objectStore is the subset of *minio.Client the archiver uses
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

type minioTagArchiver struct {
	client objectStore
	bucket string
}

func NewMinioTagArchiver(endpoint, accessKey, secretKey, bucket string, useSSL bool) (TagArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioTagArchiver{client: client, bucket: bucket}, nil
}

// ArchiveObjectName places a tag under the month it was closed
func ArchiveObjectName(tag *models.Tag) string {
	closed := tag.UpdatedAt
	switch {
	case tag.FulfilledAt != nil:
		closed = *tag.FulfilledAt
	case tag.CancelledAt != nil:
		closed = *tag.CancelledAt
	}
	if closed.IsZero() {
		closed = time.Now()
	}
	closed = closed.UTC()
	return fmt.Sprintf("tags/%04d/%02d/%s.json", closed.Year(), int(closed.Month()), tag.ID)
}

func (m *minioTagArchiver) Archive(ctx context.Context, tag *models.Tag) error {
	if !tag.IsTerminal() {
		return fmt.Errorf("tag %s is %s, only closed tags are archived", tag.ID, tag.Status)
	}
	data, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("failed to marshal tag: %w", err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, ArchiveObjectName(tag), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioTagArchiver) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *minioTagArchiver) Ping(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

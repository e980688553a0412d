package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"TrackForge/config"
	"TrackForge/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the bucket exists.
func InitMinio(cfg *config.Config) error {
	logger.Info("Connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO client initialized")
	return nil
}

// GetMinioClient returns the shared MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// BlobStore is the durable bytes-by-path collaborator. Each generation
// writes a fresh path, so writes never conflict.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	UploadFile(ctx context.Context, objectPath, localPath, contentType string) error
	Download(ctx context.Context, objectPath, localPath string) error
	Remove(ctx context.Context, objectPath string) error
}

// minioBlobStore implements BlobStore against the shared MinIO client.
type minioBlobStore struct {
	bucket string
}

// NewMinioBlobStore creates a BlobStore bound to the configured bucket.
// InitMinio must have been called first.
func NewMinioBlobStore(bucket string) BlobStore {
	return &minioBlobStore{bucket: bucket}
}

// Upload stores bytes under objectPath.
func (s *minioBlobStore) Upload(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	_, err := client.PutObject(ctx, s.bucket, objectPath, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to MinIO: %w", objectPath, err)
	}
	return nil
}

// UploadFile stores a local file under objectPath.
func (s *minioBlobStore) UploadFile(ctx context.Context, objectPath, localPath, contentType string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	_, err := client.FPutObject(ctx, s.bucket, objectPath, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %s to MinIO: %w", localPath, err)
	}
	return nil
}

// Download fetches objectPath into localPath.
func (s *minioBlobStore) Download(ctx context.Context, objectPath, localPath string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create local directory for %s: %w", localPath, err)
	}

	if err := client.FGetObject(ctx, s.bucket, objectPath, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s from MinIO: %w", objectPath, err)
	}
	return nil
}

// Remove deletes objectPath.
func (s *minioBlobStore) Remove(ctx context.Context, objectPath string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	if err := client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s from MinIO: %w", objectPath, err)
	}
	return nil
}

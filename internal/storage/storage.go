// Package storage issues presigned upload URLs for training images and
// checks that submitted image keys exist in the bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/internal/config"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxUploadsPerRequest bounds how many URLs one request may ask for.
const MaxUploadsPerRequest = 40

// ErrUnsupportedContentType is returned for image formats training cannot use.
var ErrUnsupportedContentType = errors.New("unsupported content type")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageStore is what the API needs from object storage.
type ImageStore interface {
	PresignUploads(ctx context.Context, userID uuid.UUID, count int, contentType string) ([]models.UploadTarget, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// MinIOStorage implements ImageStore on a MinIO (or any S3-compatible) bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

var _ ImageStore = (*MinIOStorage)(nil)

// NewMinIOStorage creates a client for the configured endpoint. It does not
// contact the server.
func NewMinIOStorage(cfg config.StorageConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio client: %w", err)
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket, expiry: cfg.UploadURLExpiry}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	slog.Info("bucket created", "bucket", s.bucket)
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// PresignUploads returns count presigned PUT URLs under the user's prefix.
func (s *MinIOStorage) PresignUploads(ctx context.Context, userID uuid.UUID, count int, contentType string) ([]models.UploadTarget, error) {
	ext, ok := extensions[strings.ToLower(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	if count < 1 || count > MaxUploadsPerRequest {
		return nil, fmt.Errorf("count must be between 1 and %d, got %d", MaxUploadsPerRequest, count)
	}

	expiresAt := time.Now().Add(s.expiry).UTC()
	targets := make([]models.UploadTarget, 0, count)
	for i := 0; i < count; i++ {
		key := UserPrefix(userID) + uuid.NewString() + ext
		u, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", key, err)
		}
		targets = append(targets, models.UploadTarget{
			Key:       key,
			UploadURL: u.String(),
			ExpiresAt: expiresAt,
		})
	}
	return targets, nil
}

// Exists reports whether an object was uploaded under key.
func (s *MinIOStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

// UserPrefix is the key prefix every upload of userID lives under.
func UserPrefix(userID uuid.UUID) string {
	return "uploads/" + userID.String() + "/"
}

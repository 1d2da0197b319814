package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/mocklens/internal/config"
)

// ErrNotConfigured is returned when S3 mirroring is not configured.
var ErrNotConfigured = errors.New("object storage not configured")

// Mirror copies uploads to object storage and hands out download links.
type Mirror interface {
	Put(ctx context.Context, ref string, data []byte, mediaType string) error
	Remove(ctx context.Context, ref string) error
	// PresignedURL returns ErrNotConfigured when no object storage is set up.
	PresignedURL(ctx context.Context, ref string) (url string, expiry time.Time, err error)
}

// s3Client defines the minimal minio.Client operations used by S3Mirror.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, bucket, objectName string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

// minioClientWrapper adapts *minio.Client to s3Client.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (w *minioClientWrapper) RemoveObject(ctx context.Context, bucket, objectName string) error {
	return w.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{})
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Mirror mirrors uploads to an S3-compatible bucket.
type S3Mirror struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

// Put uploads one image.
func (m *S3Mirror) Put(ctx context.Context, ref string, data []byte, mediaType string) error {
	if err := m.client.PutObject(ctx, m.bucket, objectKey(ref), data, mediaType); err != nil {
		return fmt.Errorf("upload image to S3: %w", err)
	}
	return nil
}

// Remove deletes one image.
func (m *S3Mirror) Remove(ctx context.Context, ref string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey(ref)); err != nil {
		return fmt.Errorf("remove image from S3: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for an image.
func (m *S3Mirror) PresignedURL(ctx context.Context, ref string) (string, time.Time, error) {
	presigned, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey(ref), m.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(m.urlExpiry), nil
}

// NoopMirror is used when S3 storage is not configured.
type NoopMirror struct{}

// Put is a no-op.
func (NoopMirror) Put(ctx context.Context, ref string, data []byte, mediaType string) error {
	return nil
}

// Remove is a no-op.
func (NoopMirror) Remove(ctx context.Context, ref string) error { return nil }

// PresignedURL returns ErrNotConfigured.
func (NoopMirror) PresignedURL(ctx context.Context, ref string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewMirror returns NoopMirror when no bucket is configured, S3Mirror otherwise.
func NewMirror(cfg config.S3Config) (Mirror, error) {
	if cfg.Bucket == "" {
		return NoopMirror{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Mirror{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// objectKey returns the S3 object key for an upload.
func objectKey(ref string) string {
	return "uploads/" + ref
}

package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dodoapp/lullaby-backend/internal/config"
)

// MinioStorage stores blobs in any S3 compatible service.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	endpoint   string
	useSSL     bool
	publicBase string
}

func NewMinioStorage(cfg config.StorageConfig) (*MinioStorage, error) {
	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, wrap("create minio client", cfg.MinioEndpoint, err)
	}
	return &MinioStorage{
		client:     cli,
		bucket:     cfg.Bucket,
		endpoint:   cfg.MinioEndpoint,
		useSSL:     cfg.MinioUseSSL,
		publicBase: cfg.MinioPublicBase,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return wrap("check bucket", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return wrap("make bucket", m.bucket, err)
	}
	return nil
}

func (m *MinioStorage) Upload(ctx context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return wrap("read upload data", path, err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, path, bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return wrap("upload", path, err)
	}
	return nil
}

func (m *MinioStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrap("download", path, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, wrap("download", path, ErrObjectNotFound)
		}
		return nil, wrap("download", path, err)
	}
	return obj, nil
}

func (m *MinioStorage) Delete(ctx context.Context, path string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return wrap("delete", path, err)
	}
	return nil
}

func (m *MinioStorage) PublicURL(path string) string {
	if m.publicBase != "" {
		return strings.TrimRight(m.publicBase, "/") + "/" + path
	}
	scheme := "http://"
	if m.useSSL {
		scheme = "https://"
	}
	return scheme + m.endpoint + "/" + m.bucket + "/" + path
}

func (m *MinioStorage) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, path, ttl, url.Values{})
	if err != nil {
		return "", wrap("presign", path, err)
	}
	return u.String(), nil
}

// Package minio stores batch instruction files and their parsed results in
// MinIO or any S3-compatible object store.
package minio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/sigparse/internal/config"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ObjectAPI is the subset of the MinIO SDK used here.
type ObjectAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
}

type sdkAPI struct {
	*minio.Client
}

func (a sdkAPI) GetObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
}

// resultRetentionDays expires parsed outputs under the result prefix.
const resultRetentionDays = 30

var ErrClientClosed = errors.New(errors.ErrCodeInternal, "minio client is closed")

// Client wraps the SDK with bucket bootstrap and health checks.
type Client struct {
	api    ObjectAPI
	cfg    config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects, verifies credentials and creates the default bucket
// when missing.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	sdk, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	c := NewClientWithAPI(sdkAPI{sdk}, cfg, log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}
	if cfg.Bucket != "" {
		if err := c.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, err
		}
		c.setupLifecycle(ctx)
	}

	log.Info("minio client connected", logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api ObjectAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{api: api, cfg: cfg, logger: log}
}

// EnsureBucket creates bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket "+bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", bucket))
	return nil
}

func (c *Client) setupLifecycle(ctx context.Context) {
	if c.cfg.ResultPrefix == "" {
		return
	}
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{{
		ID:     "parsed-results-expiry",
		Status: "Enabled",
		Expiration: lifecycle.Expiration{
			Days: lifecycle.ExpirationDays(resultRetentionDays),
		},
		Prefix: c.cfg.ResultPrefix,
	}}
	if err := c.api.SetBucketLifecycle(ctx, c.cfg.Bucket, lc); err != nil {
		c.logger.Warn("failed to set lifecycle for result prefix", logging.String("bucket", c.cfg.Bucket), logging.Err(err))
	}
}

// HealthCheck lists buckets and confirms the default bucket exists.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	if _, err := c.api.ListBuckets(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if c.cfg.Bucket == "" {
		return nil
	}
	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		return errors.Newf(errors.ErrCodeServiceUnavailable, "bucket %s missing", c.cfg.Bucket)
	}
	return nil
}

// DefaultBucket is the configured bucket.
func (c *Client) DefaultBucket() string {
	return c.cfg.Bucket
}

// ResultPrefix is the configured key prefix for parsed outputs.
func (c *Client) ResultPrefix() string {
	return c.cfg.ResultPrefix
}

// Close marks the client closed. The SDK holds no persistent connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

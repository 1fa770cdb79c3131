package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Store reads and writes whole objects. It satisfies parsing.ObjectStore.
type Store struct {
	client *Client
	logger logging.Logger
}

// NewStore wraps client.
func NewStore(client *Client, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{client: client, logger: log}
}

// Get downloads an object. A missing object yields ErrCodeNotFound.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, errors.InvalidParam("bucket and key are required")
	}
	obj, err := s.client.api.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, mapError(err, bucket, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, bucket, key)
	}
	s.logger.Debug("object downloaded", logging.String("bucket", bucket), logging.String("key", key), logging.Int("bytes", len(data)))
	return data, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if bucket == "" || key == "" {
		return errors.InvalidParam("bucket and key are required")
	}
	_, err := s.client.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload failed")
	}
	s.logger.Debug("object uploaded", logging.String("bucket", bucket), logging.String("key", key), logging.Int("bytes", len(data)))
	return nil
}

// List returns the objects under prefix.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list failed")
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	return out, nil
}

func mapError(err error, bucket, key string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.New(errors.ErrCodeNotFound, "object not found").WithDetail(bucket + "/" + key).WithCause(err)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, "download failed")
}

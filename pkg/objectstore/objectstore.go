// Package objectstore provides the few object storage calls the upload credential check
// needs, on top of the S3-compatible API, Google Cloud Storage or Azure Blob Storage.
package objectstore

import (
	"context"
	"fmt"
	"time"
)

type Backend string

const (
	BackendS3    Backend = "s3"
	BackendGCS   Backend = "gcs"
	BackendAzure Backend = "azure"
)

// ObjectInfo is the subset of object metadata returned by HeadObject.
type ObjectInfo struct {
	Size         int64
	ETag         string
	LastModified time.Time
}

// Store is implemented by every backend. Missing objects and buckets are reported as
// core.KindNotFound errors.
type Store interface {
	Namespace(ctx context.Context) (string, error)
	HeadObject(ctx context.Context, namespace, bucket, object string) (*ObjectInfo, error)
	PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error
	DeleteObject(ctx context.Context, namespace, bucket, object string) error
	GetBucketMetadata(ctx context.Context, namespace, bucket string) (map[string]string, error)
}

// Config selects and configures a backend for one identity.
type Config struct {
	Backend   Backend
	Endpoint  string
	Region    string
	Namespace string
	AccessKey string
	SecretKey string
	Account   string
}

// New builds the Store described by cfg.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3, "":
		return NewS3Store(ctx, cfg)
	case BackendGCS:
		return NewGCSStore(ctx, cfg)
	case BackendAzure:
		return NewAzureStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

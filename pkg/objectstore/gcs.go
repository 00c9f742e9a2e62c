package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudctl/cloudctl/pkg/core"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSStore is backed by Google Cloud Storage. The namespace is the project id.
type GCSStore struct {
	sc      *storage.Client
	project string
}

func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	opts := []option.ClientOption{}
	if cfg.Endpoint != "" {
		// Emulators do not authenticate.
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCSStore{
		sc:      client,
		project: cfg.Namespace,
	}, nil
}

func (s *GCSStore) Namespace(_ context.Context) (string, error) {
	if s.project == "" {
		return "", core.Validation("GetNamespace", "no project configured for the gcs backend")
	}
	return s.project, nil
}

func (s *GCSStore) HeadObject(ctx context.Context, namespace, bucket, object string) (*ObjectInfo, error) {
	attrs, err := s.sc.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, classifyGCSError("HeadObject", err)
	}
	return &ObjectInfo{
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		LastModified: attrs.Updated,
	}, nil
}

func (s *GCSStore) PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error {
	wc := s.sc.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := wc.Write(body); err != nil {
		_ = wc.Close()
		return classifyGCSError("PutObject", err)
	}
	if err := wc.Close(); err != nil {
		return classifyGCSError("PutObject", err)
	}
	return nil
}

func (s *GCSStore) DeleteObject(ctx context.Context, namespace, bucket, object string) error {
	if err := s.sc.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		return classifyGCSError("DeleteObject", err)
	}
	return nil
}

// GetBucketMetadata returns the bucket location and labels.
func (s *GCSStore) GetBucketMetadata(ctx context.Context, namespace, bucket string) (map[string]string, error) {
	attrs, err := s.sc.Bucket(bucket).Attrs(ctx)
	if err != nil {
		return nil, classifyGCSError("GetBucket", err)
	}

	metadata := map[string]string{"location": attrs.Location}
	for k, v := range attrs.Labels {
		metadata[k] = v
	}
	return metadata, nil
}

func classifyGCSError(op string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return core.NotFound(op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return core.FromStatus(op, gerr.Code, err)
	}

	if errors.Is(err, context.Canceled) {
		return core.Cancelled(op, err)
	}
	return core.Other(op, err)
}

package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudctl/cloudctl/pkg/core"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore is backed by Azure Blob Storage. Buckets map onto containers and the
// namespace is the storage account.
type AzureStore struct {
	client  *azblob.Client
	account string
}

// NewAzureStore uses a shared key when one is configured and the default Azure
// credential chain otherwise.
func NewAzureStore(cfg Config) (*AzureStore, error) {
	if cfg.Account == "" {
		return nil, core.Validation("NewAzureStore", "storage account is required for the azure backend")
	}

	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.SecretKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.SecretKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}

	return NewAzureStoreWithClient(client, cfg.Account), nil
}

func NewAzureStoreWithClient(client *azblob.Client, account string) *AzureStore {
	return &AzureStore{client: client, account: account}
}

func (s *AzureStore) Namespace(_ context.Context) (string, error) {
	return s.account, nil
}

func (s *AzureStore) HeadObject(ctx context.Context, namespace, bucket, object string) (*ObjectInfo, error) {
	props, err := s.client.ServiceClient().NewContainerClient(bucket).NewBlobClient(object).GetProperties(ctx, nil)
	if err != nil {
		return nil, classifyAzureError("HeadObject", err)
	}

	info := &ObjectInfo{}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	return info, nil
}

func (s *AzureStore) PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error {
	if _, err := s.client.UploadBuffer(ctx, bucket, object, body, nil); err != nil {
		return classifyAzureError("PutObject", err)
	}
	return nil
}

func (s *AzureStore) DeleteObject(ctx context.Context, namespace, bucket, object string) error {
	if _, err := s.client.DeleteBlob(ctx, bucket, object, nil); err != nil {
		return classifyAzureError("DeleteObject", err)
	}
	return nil
}

// GetBucketMetadata returns the user metadata of the container.
func (s *AzureStore) GetBucketMetadata(ctx context.Context, namespace, bucket string) (map[string]string, error) {
	props, err := s.client.ServiceClient().NewContainerClient(bucket).GetProperties(ctx, nil)
	if err != nil {
		return nil, classifyAzureError("GetBucket", err)
	}

	metadata := map[string]string{}
	for k, v := range props.Metadata {
		if v != nil {
			metadata[k] = *v
		}
	}
	return metadata, nil
}

func classifyAzureError(op string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return core.NotFound(op, err)
	}

	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return core.FromStatus(op, re.StatusCode, err)
	}

	if errors.Is(err, context.Canceled) {
		return core.Cancelled(op, err)
	}
	return core.Other(op, err)
}

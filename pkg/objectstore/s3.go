package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudctl/cloudctl/pkg/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const s3CompatEndpointFormat = "https://%s.compat.objectstorage.%s.oraclecloud.com"

type s3ClientAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

type s3UploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store talks to the S3-compatible object storage API. The namespace is part of the
// endpoint host, so it has to be known up front.
type S3Store struct {
	client    s3ClientAPI
	uploader  s3UploaderAPI
	namespace string
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Namespace == "" {
		return nil, core.Validation("NewS3Store", "namespace is required for the s3 backend")
	}
	if cfg.Region == "" && cfg.Endpoint == "" {
		return nil, core.Validation("NewS3Store", "either region or endpoint is required for the s3 backend")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(s3CompatEndpointFormat, cfg.Namespace, cfg.Region)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:    client,
		uploader:  manager.NewUploader(client),
		namespace: cfg.Namespace,
	}, nil
}

func (s *S3Store) Namespace(_ context.Context) (string, error) {
	return s.namespace, nil
}

func (s *S3Store) HeadObject(ctx context.Context, namespace, bucket, object string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return nil, classifyS3Error("HeadObject", err)
	}

	info := &ObjectInfo{
		Size: aws.ToInt64(out.ContentLength),
		ETag: aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) PutObject(ctx context.Context, namespace, bucket, object string, body []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return classifyS3Error("PutObject", err)
	}
	return nil
}

func (s *S3Store) DeleteObject(ctx context.Context, namespace, bucket, object string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	}); err != nil {
		return classifyS3Error("DeleteObject", err)
	}
	return nil
}

// GetBucketMetadata returns the bucket region and its tags.
func (s *S3Store) GetBucketMetadata(ctx context.Context, namespace, bucket string) (map[string]string, error) {
	head, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return nil, classifyS3Error("GetBucket", err)
	}

	metadata := map[string]string{}
	if region := aws.ToString(head.BucketRegion); region != "" {
		metadata["region"] = region
	}

	tagging, err := s.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchTagSet" {
			return metadata, nil
		}
		return nil, classifyS3Error("GetBucket", err)
	}
	for _, tag := range tagging.TagSet {
		metadata[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return metadata, nil
}

func classifyS3Error(op string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return core.FromStatus(op, re.HTTPStatusCode(), err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return core.NotFound(op, err)
		}
	}

	if errors.Is(err, context.Canceled) {
		return core.Cancelled(op, err)
	}
	return core.Other(op, err)
}

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/cloudctl/cloudctl/pkg/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	headObject       func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	deleteObject     func(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	headBucket       func(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	getBucketTagging func(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return m.headObject(ctx, params, optFns...)
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return m.deleteObject(ctx, params, optFns...)
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return m.headBucket(ctx, params, optFns...)
}

func (m *mockS3Client) GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	return m.getBucketTagging(ctx, params, optFns...)
}

type mockS3Uploader struct {
	b   *bytes.Buffer
	key string
	err error
}

func (m *mockS3Uploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	m.b = new(bytes.Buffer)
	m.key = aws.ToString(input.Key)
	if _, err := io.Copy(m.b, input.Body); err != nil {
		return nil, err
	}
	return nil, m.err
}

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{
				Response: &http.Response{
					StatusCode: status,
				},
			},
			Err: errors.New(http.StatusText(status)),
		},
	}
}

func TestS3Store_HeadObject(t *testing.T) {
	tests := []struct {
		name     string
		head     func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
		wantKind core.Kind
		wantErr  bool
		wantSize int64
	}{
		{
			name: "existing object",
			head: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return &s3.HeadObjectOutput{ContentLength: aws.Int64(23), ETag: aws.String(`"abc"`)}, nil
			},
			wantSize: 23,
		},
		{
			name: "missing object",
			head: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return nil, responseError(http.StatusNotFound)
			},
			wantErr:  true,
			wantKind: core.KindNotFound,
		},
		{
			name: "forbidden",
			head: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return nil, responseError(http.StatusForbidden)
			},
			wantErr:  true,
			wantKind: core.KindOther,
		},
		{
			name: "api error code",
			head: func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
			},
			wantErr:  true,
			wantKind: core.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3Store{client: &mockS3Client{headObject: tt.head}, namespace: "axaxnpcrorw5"}
			info, err := s.HeadObject(context.Background(), "axaxnpcrorw5", "ingest", "probe")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, core.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, info.Size)
			assert.Equal(t, `"abc"`, info.ETag)
		})
	}
}

func TestS3Store_PutObject(t *testing.T) {
	u := &mockS3Uploader{}
	s := &S3Store{uploader: u}

	require.NoError(t, s.PutObject(context.Background(), "ns", "ingest", "probe", []byte("Bulk Data Transfer Test")))
	assert.Equal(t, "Bulk Data Transfer Test", u.b.String())
	assert.Equal(t, "probe", u.key)

	u.err = responseError(http.StatusForbidden)
	err := s.PutObject(context.Background(), "ns", "ingest", "probe", []byte("x"))
	require.Error(t, err)
	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusForbidden, cerr.StatusCode)
}

func TestS3Store_DeleteObject(t *testing.T) {
	var deleted string
	s := &S3Store{client: &mockS3Client{
		deleteObject: func(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
			deleted = aws.ToString(params.Key)
			return &s3.DeleteObjectOutput{}, nil
		},
	}}
	require.NoError(t, s.DeleteObject(context.Background(), "ns", "ingest", "probe"))
	assert.Equal(t, "probe", deleted)
}

func TestS3Store_GetBucketMetadata(t *testing.T) {
	headBucket := func(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
		return &s3.HeadBucketOutput{BucketRegion: aws.String("us-phoenix-1")}, nil
	}

	t.Run("with tags", func(t *testing.T) {
		s := &S3Store{client: &mockS3Client{
			headBucket: headBucket,
			getBucketTagging: func(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
				return &s3.GetBucketTaggingOutput{TagSet: []types.Tag{{Key: aws.String("team"), Value: aws.String("migration")}}}, nil
			},
		}}
		md, err := s.GetBucketMetadata(context.Background(), "ns", "ingest")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"region": "us-phoenix-1", "team": "migration"}, md)
	})

	t.Run("without tags", func(t *testing.T) {
		s := &S3Store{client: &mockS3Client{
			headBucket: headBucket,
			getBucketTagging: func(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "NoSuchTagSet"}
			},
		}}
		md, err := s.GetBucketMetadata(context.Background(), "ns", "ingest")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"region": "us-phoenix-1"}, md)
	})

	t.Run("missing bucket", func(t *testing.T) {
		s := &S3Store{client: &mockS3Client{
			headBucket: func(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
				return nil, responseError(http.StatusNotFound)
			},
		}}
		_, err := s.GetBucketMetadata(context.Background(), "ns", "ingest")
		assert.True(t, core.IsNotFound(err))
	})
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(context.Background(), Config{Region: "us-phoenix-1"})
	assert.True(t, core.IsValidation(err))

	_, err = NewS3Store(context.Background(), Config{Namespace: "ns"})
	assert.True(t, core.IsValidation(err))
}

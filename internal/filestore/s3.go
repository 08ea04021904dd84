package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/esignhq/esign/internal/esignerr"
)

// S3Store is the optional object-storage Store backend (spec.md §6 names
// local disk as the default; this is selected when config sets a bucket),
// grounded on rendis-doc-assembly's storage/s3 adapter.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store for bucket in region, optionally against a
// custom endpoint (S3-compatible services such as MinIO).
func NewS3Store(ctx context.Context, bucket, region, endpoint string) (*S3Store, error) {
	if bucket == "" {
		return nil, esignerr.Errorf(esignerr.StorageError, "filestore.NewS3Store", "bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "filestore.NewS3Store", fmt.Errorf("load aws config: %w", err))
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg, opts...),
		bucket: bucket,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	key := uuid.NewString() + ".pdf"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", esignerr.New(esignerr.StorageError, "filestore.S3Store.Put", fmt.Errorf("put object: %w", err))
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, esignerr.New(esignerr.NotFound, "filestore.S3Store.Get", fmt.Errorf("get object: %w", err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, esignerr.New(esignerr.StorageError, "filestore.S3Store.Get", fmt.Errorf("read body: %w", err))
	}
	return data, nil
}

package evidence

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3BlobStore keeps evidence blobs in an S3 bucket, keyed by digest.
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures an S3BlobStore.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
	Prefix   string // optional key prefix
}

func NewS3BlobStore(ctx context.Context, cfg S3Config) (*S3BlobStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Path-style addressing is required by MinIO and LocalStack.
			o.UsePathStyle = true
		}
	})

	return &S3BlobStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3BlobStore) Put(ctx context.Context, data []byte) (string, error) {
	address := Address(data)
	key := s.key(address)

	// Content addressing makes Put idempotent.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return address, nil
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("s3 put: %w", err)
	}
	return address, nil
}

func (s *S3BlobStore) Get(ctx context.Context, address string) ([]byte, error) {
	if _, err := parseAddress(address); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(address)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", address, err)
	}
	defer func() { _ = out.Body.Close() }()
	return readAll(out.Body)
}

func (s *S3BlobStore) Exists(ctx context.Context, address string) (bool, error) {
	if _, err := parseAddress(address); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(address)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, address string) error {
	if _, err := parseAddress(address); err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(address)),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", address, err)
	}
	return nil
}

func (s *S3BlobStore) key(address string) string {
	digest, _ := parseAddress(address)
	return s.prefix + digest + ".blob"
}

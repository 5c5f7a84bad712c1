package storage

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/tracing"
	"github.com/customeros/mailintake/services/storage/aws_client"
)

// ObjectStorageService implements StorageService on top of an S3 compatible bucket.
type ObjectStorageService struct {
	client     aws_client.S3Client
	bucketName string
	backend    enum.StorageBackend
}

// ObjectStorageConfig holds configuration for object storage
type ObjectStorageConfig struct {
	BucketName string
	// Backend is recorded on attachment rows, "s3" or "r2".
	Backend enum.StorageBackend
}

func NewObjectStorageService(client aws_client.S3Client, config ObjectStorageConfig) interfaces.StorageService {
	return &ObjectStorageService{
		client:     client,
		bucketName: config.BucketName,
		backend:    config.Backend,
	}
}

func (s *ObjectStorageService) Name() string {
	return string(s.backend)
}

// Upload stores data in object storage
func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("bucket", s.bucketName)

	if err := validateKey(key); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	uploadInput := s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	err := s.client.Upload(ctx, uploadInput)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// Download retrieves data from object storage
func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateKey(key); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	content, err := s.client.Download(ctx, s.bucketName, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return content, nil
}

// Delete removes an object from storage
func (s *ObjectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validateKey(key); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err := s.client.Delete(ctx, s.bucketName, key)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

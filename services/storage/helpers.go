package storage

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/pkg/errors"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/services/storage/aws_client"
)

// NewS3StorageService creates a StorageService configured for AWS S3 or any
// S3 compatible endpoint.
func NewS3StorageService(awsRegion, endpoint, accessKeyID, accessKeySecret, bucketName string) (interfaces.StorageService, error) {
	awsConfig := &aws.Config{
		Region: aws.String(awsRegion),
	}
	if accessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(accessKeyID, accessKeySecret, "")
	}
	if endpoint != "" {
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	s3Client, err := aws_client.NewS3Client(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create s3 client")
	}

	return NewObjectStorageService(s3Client, ObjectStorageConfig{
		BucketName: bucketName,
		Backend:    enum.StorageS3,
	}), nil
}

// NewR2StorageService creates a StorageService configured for Cloudflare R2
func NewR2StorageService(accountID, accessKeyID, accessKeySecret, bucketName string) (interfaces.StorageService, error) {
	r2Client, err := aws_client.NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create r2 client")
	}

	return NewObjectStorageService(r2Client, ObjectStorageConfig{
		BucketName: bucketName,
		Backend:    enum.StorageR2,
	}), nil
}

// NewStorageService picks the attachment backend named in the config.
func NewStorageService(cfg *config.StorageConfig) (interfaces.StorageService, error) {
	switch cfg.Backend {
	case "", enum.StorageFilesystem:
		return NewFilesystemStorageService(cfg.Root)
	case enum.StorageS3:
		return NewS3StorageService(cfg.S3Region, cfg.S3Endpoint, cfg.S3AccessKeyID, cfg.S3SecretAccessKey, cfg.EmailAttachmentBucket)
	case enum.StorageR2:
		if cfg.R2AccountID == "" {
			return nil, errors.New("r2 storage requires CLOUDFLARE_R2_ACCOUNT_ID")
		}
		return NewR2StorageService(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.EmailAttachmentBucket)
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
)

// ObjectStore holds product images by key
type ObjectStore interface {
	Put(ctx context.Context, key string, fileHeader *multipart.FileHeader) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// S3Store keeps images in a private bucket and hands out presigned URLs
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	urlTTL  time.Duration
}

var objectStoreInstance ObjectStore

// InitObjectStore picks S3 when a bucket is configured and the local upload
// directory otherwise.
func InitObjectStore(ctx context.Context) (ObjectStore, error) {
	cfg := appConfig.GetConfig()
	if cfg.AWSS3Bucket == "" {
		logger.Info("S3 bucket not configured, storing images on disk", zap.String("dir", utils.UploadDir))
		objectStoreInstance = NewDiskStore(utils.UploadDir)
		return objectStoreInstance, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	objectStoreInstance = NewS3Store(s3.NewFromConfig(awsConfig), cfg.AWSS3Bucket)
	return objectStoreInstance, nil
}

// NewS3Store creates a store over client. Keys live under "products/".
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  "products/",
		urlTTL:  time.Hour,
	}
}

// GetObjectStore returns the initialized object store
func GetObjectStore() ObjectStore {
	return objectStoreInstance
}

// SetObjectStore sets the object store (primarily for testing)
func SetObjectStore(store ObjectStore) {
	objectStoreInstance = store
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, path.Base(key))
}

// Put uploads the file under key
func (s *S3Store) Put(ctx context.Context, key string, fileHeader *multipart.FileHeader) error {
	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Warn("Failed to close uploaded file", zap.Error(closeErr))
		}
	}()

	contentType, _ := utils.ImageContentType(fileHeader.Filename)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// URL returns a presigned GET URL valid for one hour
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlTTL
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return request.URL, nil
}

// Delete removes the object stored under key
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

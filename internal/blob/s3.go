package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config selects the bucket images go to.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint (MinIO, localstack).
	Endpoint string
	// PublicURL is the base URL objects are served from; defaults to the
	// virtual-hosted bucket URL.
	PublicURL string
}

// S3Store uploads blobs to an S3 bucket.
type S3Store struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	publicURL string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}

	public := cfg.PublicURL
	if public == "" {
		public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &S3Store{
		client:    s3.New(sess),
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(public, "/") + "/",
	}, nil
}

func (s *S3Store) Save(ctx context.Context, key, contentType string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Delete removes the object; S3 reports success for missing keys too.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	return s.publicURL + key
}

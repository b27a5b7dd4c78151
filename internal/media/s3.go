package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	// "http://127.0.0.1:9000" for minio; empty for AWS.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL prefixes object keys in returned URLs. Defaults to
	// <endpoint>/<bucket>.
	PublicURL string
}

type S3Storage struct {
	uploader  *manager.Uploader
	bucket    string
	publicURL string
}

// Connect builds an S3 client for cfg. A custom endpoint switches to
// path-style addressing.
func Connect(cfg S3Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
	})
}

func NewS3Storage(client *s3.Client, cfg S3Config) *S3Storage {
	public := strings.TrimSuffix(cfg.PublicURL, "/")
	if public == "" {
		endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		public = endpoint + "/" + cfg.Bucket
	}
	return &S3Storage{
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		publicURL: public,
	}
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't upload %s to bucket %s, details: %w", key, s.bucket, err)
	}
	return &Object{
		Key:  key,
		URL:  s.publicURL + "/" + key,
		Size: int64(len(data)),
	}, nil
}

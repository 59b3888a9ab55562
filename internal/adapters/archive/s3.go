package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// S3API is the subset of *s3.Client used by the uploader.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores objects in an S3 bucket.
type S3Uploader struct {
	client  S3API
	bucket  string
	baseURL string
	log     logger.Logger
}

// NewS3 builds an S3 client from the default AWS credential chain.
func NewS3(ctx context.Context, cfg Config, opts ...Option) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket required for s3 driver", ErrInvalidConfig)
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", ErrInvalidConfig, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3WithClient(client, cfg, opts...)
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, cfg Config, opts ...Option) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket required for s3 driver", ErrInvalidConfig)
	}
	s := applyOptions(opts)
	return &S3Uploader{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: s3BaseURL(cfg),
		log:     s.log,
	}, nil
}

// s3BaseURL resolves the public prefix for objects in the bucket.
func s3BaseURL(cfg Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return cfg.PublicBaseURL
	case cfg.Endpoint != "" || cfg.PathStyle:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", regionOrDefault(cfg.Region))
		}
		return joinURL(endpoint, cfg.Bucket)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, regionOrDefault(cfg.Region))
	}
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, localPath, namespace string) (string, error) {
	start := time.Now()
	data, err := os.ReadFile(localPath)
	if err != nil {
		metrics.RecordUploadLatency(DriverS3, "error", metrics.Since(start))
		return "", fmt.Errorf("%w: read artifact: %w", ErrUpload, err)
	}

	key := objectKey(namespace, localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
		Metadata: map[string]string{
			"namespace": namespace,
		},
	})
	if err != nil {
		metrics.RecordUploadLatency(DriverS3, "error", metrics.Since(start))
		u.log.Error(ctx, "s3 put failed", logger.String("bucket", u.bucket), logger.String("key", key), logger.Error(err))
		return "", fmt.Errorf("%w: put %s: %w", ErrUpload, key, err)
	}
	metrics.RecordUploadLatency(DriverS3, "ok", metrics.Since(start))

	link := joinURL(u.baseURL, key)
	u.log.Info(ctx, "archived image", logger.String("url", link), logger.Int("bytes", len(data)))
	return link, nil
}

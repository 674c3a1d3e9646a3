// Package storage resolves evidence blobs (disbursement receipts, signed
// documents) kept in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	salesapp "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/shared"
	"github.com/casaviva/backoffice/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	defaultRegion     = "us-east-1"
	defaultEndpoint   = "http://localhost:9000"
	defaultPresignTTL = 15 * time.Minute
)

// ErrEvidenceNotFound is returned when a receipt key points at no object.
var ErrEvidenceNotFound = shared.NewKindError(shared.KindValidation, "EVIDENCE_NOT_FOUND", "The evidence file was not found in storage")

var _ salesapp.EvidenceResolver = (*S3Bucket)(nil)

// S3Bucket hands out presigned URLs for evidence in one bucket of an
// S3-compatible store (AWS S3, MinIO, RustFS).
type S3Bucket struct {
	client     *s3.Client
	presign    *s3.PresignClient
	name       string
	presignTTL time.Duration
	skipHead   bool
	logger     *zap.Logger
}

// S3Option configures an S3Bucket.
type S3Option func(*S3Bucket)

func WithLogger(logger *zap.Logger) S3Option {
	return func(b *S3Bucket) { b.logger = logger }
}

// WithoutExistenceCheck signs download URLs without first looking the
// object up.
func WithoutExistenceCheck() S3Option {
	return func(b *S3Bucket) { b.skipHead = true }
}

// NewS3Bucket builds a client for cfg. Nothing is contacted until the first
// call; EnsureBucket is the startup check.
func NewS3Bucket(ctx context.Context, cfg config.StorageConfig, opts ...S3Option) (*S3Bucket, error) {
	var missing []string
	for _, f := range [][2]string{{"bucket", cfg.Bucket}, {"access key", cfg.AccessKey}, {"secret key", cfg.SecretKey}} {
		if f[1] == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("storage %s is required", strings.Join(missing, ", "))
	}

	endpoint, err := endpointURL(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	b := &S3Bucket{
		client:     client,
		presign:    s3.NewPresignClient(client),
		name:       cfg.Bucket,
		presignTTL: cfg.PresignExpiration,
		logger:     zap.NewNop(),
	}
	if b.presignTTL <= 0 {
		b.presignTTL = defaultPresignTTL
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// endpointURL adds the scheme a bare host:port lacks.
func endpointURL(endpoint string, useSSL bool) (string, error) {
	switch {
	case endpoint == "":
		return defaultEndpoint, nil
	case strings.Contains(endpoint, "://"):
	case useSSL:
		endpoint = "https://" + endpoint
	default:
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid storage endpoint %q", endpoint)
	}
	return endpoint, nil
}

// Name returns the bucket name.
func (b *S3Bucket) Name() string {
	return b.name
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *S3Bucket) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("check bucket %s: %w", b.name, err)
	}

	b.logger.Info("Creating evidence bucket", zap.String("bucket", b.name))
	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.name)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %w", b.name, err)
	}
	return nil
}

// ResolveEvidenceURL returns a presigned GET URL for key. A key that names
// no object fails with ErrEvidenceNotFound unless the check is off.
func (b *S3Bucket) ResolveEvidenceURL(ctx context.Context, key string) (string, error) {
	key, err := CleanEvidenceKey(key)
	if err != nil {
		return "", err
	}

	if !b.skipHead {
		_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.name), Key: aws.String(key)})
		switch {
		case isNotFound(err):
			return "", ErrEvidenceNotFound.WithDetails(map[string]string{"receipt_key": key})
		case err != nil:
			return "", fmt.Errorf("look up evidence %s: %w", key, err)
		}
	}

	req, err := b.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: aws.String(b.name), Key: aws.String(key)},
		s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign evidence %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignEvidenceUpload returns a presigned PUT URL for key and when it
// stops working. Cashiers upload the receipt there before registering the
// payment that references it.
func (b *S3Bucket) PresignEvidenceUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	key, err := CleanEvidenceKey(key)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(b.presignTTL)
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign evidence upload %s: %w", key, err)
	}
	return req.URL, expiresAt, nil
}

// isNotFound recognises a missing bucket or object. HEAD responses carry no
// body, so some stores only report the bare status code.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

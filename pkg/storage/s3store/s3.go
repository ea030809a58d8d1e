// Package s3store stores media in an Amazon S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"babybot/pkg/config"
	"babybot/pkg/storage"
)

// PutObjectAPI is the part of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignAPI is the part of the S3 presign client used for download links.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store is a storage.Store backed by one bucket.
type Store struct {
	client    PutObjectAPI
	presigner PresignAPI
	bucket    string
	cdnURL    string
	timeout   time.Duration
	log       *slog.Logger

	statusOf func(*s3.PutObjectOutput) int
}

var _ storage.Store = (*Store)(nil)

// New loads AWS configuration for cfg and returns a Store. Static credentials
// are used when an access key is configured; otherwise the default chain.
func New(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, s3.NewPresignClient(client), cfg, log), nil
}

// NewWithClient builds a Store over existing clients.
func NewWithClient(client PutObjectAPI, presigner PresignAPI, cfg config.StorageConfig, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		client:    client,
		presigner: presigner,
		bucket:    cfg.Bucket,
		cdnURL:    cfg.CDNURL,
		timeout:   time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		log:       log.With("component", "storage.s3"),
		statusOf:  rawStatus,
	}
}

// PutStream uploads body. A known size is sent as Content-Length with an
// unsigned payload so the stream is never buffered; an unknown size is
// buffered first because S3 requires the length up front.
func (s *Store) PutStream(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.PutResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	var optFns []func(*s3.Options)
	if size >= 0 {
		input.Body = body
		input.ContentLength = aws.Int64(size)
		optFns = append(optFns, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	} else {
		buf, err := io.ReadAll(body)
		if err != nil {
			return storage.PutResult{}, fmt.Errorf("buffer content: %w", err)
		}
		size = int64(len(buf))
		input.Body = bytes.NewReader(buf)
		input.ContentLength = aws.Int64(size)
	}

	out, err := s.client.PutObject(ctx, input, optFns...)
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("put object %s: %w", key, err)
	}

	result := storage.PutResult{StatusCode: s.statusOf(out), Size: size}
	if out.ETag != nil {
		result.ETag = *out.ETag
	}

	s.log.Debug("Object stored", "key", key, "status", result.StatusCode, "bytes", size)
	return result, nil
}

// SignedURL presigns a GET for key.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL returns the CDN URL for key, or "" without a CDN.
func (s *Store) PublicURL(key string) string {
	if s.cdnURL == "" {
		return ""
	}
	return s.cdnURL + "/" + key
}

// rawStatus reads the HTTP status of the response S3 sent. It is 0 when the
// transport recorded no response.
func rawStatus(out *s3.PutObjectOutput) int {
	if out == nil {
		return 0
	}
	if resp, ok := awsmiddleware.GetRawResponse(out.ResultMetadata).(*smithyhttp.Response); ok && resp != nil {
		return resp.StatusCode
	}
	return 0
}

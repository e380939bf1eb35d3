package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Write logs every event in the batch.
func (s *LogSink) Write(ctx context.Context, events []Event) error {
	for _, ev := range events {
		s.logger.InfoContext(ctx, "ranking analytics",
			"event_id", ev.ID,
			"user_id", ev.UserID,
			"context", ev.Context,
			"experiment", ev.Experiment,
			"variant", ev.Variant,
			"pool_size", ev.PoolSize,
			"eligible_size", ev.EligibleSize,
			"returned", len(ev.Candidates),
			"degraded", ev.Degraded,
			"duration_ms", ev.DurationMS)
	}
	return nil
}

// PutObjectAPI is the subset of the S3 client the archive sink uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds configuration for the R2/S3 archive sink.
type S3Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Prefix          string
}

// S3Sink archives each batch as one NDJSON object.
type S3Sink struct {
	client  PutObjectAPI
	bucket  string
	prefix  string
	timeNow func() time.Time
}

// NewS3Sink creates an archive sink backed by an R2-compatible S3 client.
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("access key ID and secret access key are required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})
	return NewS3SinkWithClient(client, cfg.BucketName, cfg.Prefix), nil
}

// NewS3SinkWithClient creates an archive sink with the given client.
func NewS3SinkWithClient(client PutObjectAPI, bucket, prefix string) *S3Sink {
	if prefix == "" {
		prefix = "ranking"
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, timeNow: time.Now}
}

// objectKey returns <prefix>/YYYY/MM/DD/<uuid>.ndjson.
func (s *S3Sink) objectKey() string {
	now := s.timeNow().UTC()
	return path.Join(s.prefix, now.Format("2006/01/02"), uuid.NewString()+".ndjson")
}

// Write uploads the batch.
func (s *S3Sink) Write(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode analytics event: %w", err)
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey()),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/x-ndjson"),
		ContentLength: aws.Int64(int64(buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("failed to upload analytics batch: %w", err)
	}
	return nil
}

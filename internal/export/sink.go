package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	awsbackend "github.com/picklr-io/craftstack/providers/aws"
)

// Sink receives rendered outputs.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	String() string
}

// FileSink writes outputs to a local file, creating parent directories.
type FileSink struct {
	Path string
}

func (f *FileSink) Write(_ context.Context, data []byte) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write outputs to %s: %w", f.Path, err)
	}
	return nil
}

func (f *FileSink) String() string { return f.Path }

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads outputs to a single S3 object.
type S3Sink struct {
	api         S3API
	Bucket      string
	Key         string
	ContentType string
	Encrypt     bool
}

// NewS3Sink returns a sink backed by a real S3 client.
func NewS3Sink(ctx context.Context, bucket, key, region, profile string) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 sink requires a bucket")
	}
	cfg, err := awsbackend.LoadConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	return NewS3SinkWithClient(s3.NewFromConfig(cfg), bucket, key), nil
}

// NewS3SinkWithClient returns a sink that talks to api. An empty key
// defaults to "craftstack/outputs.json".
func NewS3SinkWithClient(api S3API, bucket, key string) *S3Sink {
	if key == "" {
		key = "craftstack/outputs.json"
	}
	return &S3Sink{api: api, Bucket: bucket, Key: key, ContentType: "application/json"}
}

func (s *S3Sink) Write(ctx context.Context, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.ContentType),
	}
	if s.Encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write outputs to %s: %w", s, err)
	}
	return nil
}

func (s *S3Sink) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// ContentTypeFor returns the MIME type used when storing f.
func ContentTypeFor(f Format) string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}
